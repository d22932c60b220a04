package domain

// Well-known integration platforms. The backend may report others.
const (
	PlatformNotion      = "notion"
	PlatformGoogleDrive = "google_drive"
	PlatformLinkedIn    = "linkedin"
)

// Integration mirrors an OAuth connection owned by the backend.
type Integration struct {
	Platform     string `json:"platform"`
	IsActive     bool   `json:"is_active"`
	AccountID    string `json:"account_id,omitempty"`
	AccountName  string `json:"account_name,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}
