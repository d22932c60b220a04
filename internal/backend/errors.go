package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrUnreachable reports a network or connection failure.
	ErrUnreachable = errors.New("unable to reach server")
	// ErrTimeout reports that the client stopped waiting. The backend may
	// still be working on the request.
	ErrTimeout = errors.New("request timed out; generation may still be processing")
	// ErrInvalidResponse reports a 2xx body that does not match its schema.
	ErrInvalidResponse = errors.New("backend: invalid response")
)

// APIError is an error reported by the backend. Error returns the server
// message verbatim.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsStillProcessing reports whether err is a client-side timeout rather than
// a failure.
func IsStillProcessing(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnreachable reports whether err is a connection failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// AsAPIError unwraps a backend-reported error.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// classifyTransport maps an error from http.Client.Do onto the taxonomy.
// Cancellation of the caller's context is passed through untouched.
func classifyTransport(parent context.Context, err error) error {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Code    string          `json:"code"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Code
		switch {
		case stringField(body.Error) != "":
			apiErr.Message = stringField(body.Error)
		case len(body.Error) > 0:
			var nested nestedError
			if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
				apiErr.Message = nested.Message
				if nested.Code != "" {
					apiErr.Code = nested.Code
				}
			}
		}
		if apiErr.Message == "" && strings.TrimSpace(body.Message) != "" {
			apiErr.Message = strings.TrimSpace(body.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = stringField(body.Detail)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("backend returned status %d", status)
	}
	return apiErr
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
