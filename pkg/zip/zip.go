// Package zip bundles artifacts into a single zip archive.
package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// Asset is one file inside an archive.
type Asset struct {
	Filename string
	MIME     string
	Source   string
	Data     []byte
	Modified time.Time
}

type manifestEntry struct {
	Filename string    `json:"filename"`
	MIME     string    `json:"mime,omitempty"`
	Source   string    `json:"source,omitempty"`
	Bytes    int       `json:"bytes"`
	Modified time.Time `json:"modified,omitempty"`
}

// ManifestName is the index written next to the assets.
const ManifestName = "manifest.json"

// ArchiveAssets writes assets plus a manifest.json describing them. Duplicate
// filenames get a numeric suffix.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	used := make(map[string]int, len(assets))
	manifest := make([]manifestEntry, 0, len(assets))

	for _, asset := range assets {
		name := uniqueName(used, safeName(asset.Filename))
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !asset.Modified.IsZero() {
			header.Modified = asset.Modified.UTC()
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
		manifest = append(manifest, manifestEntry{
			Filename: name,
			MIME:     asset.MIME,
			Source:   asset.Source,
			Bytes:    len(asset.Data),
			Modified: asset.Modified,
		})
	}

	w, err := zw.Create(ManifestName)
	if err != nil {
		return nil, fmt.Errorf("zip: create manifest: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("zip: write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func safeName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" || name == ManifestName {
		return "asset"
	}
	return name
}

func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
