package cache

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const base64Marker = ";base64,"

// EncodeDataURI inlines data as a base64 data URI.
func EncodeDataURI(mime string, data []byte) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI returns the payload and mime type of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("cache: invalid data uri prefix")
	}
	idx := strings.Index(uri, base64Marker)
	if idx < 0 {
		return nil, "", errors.New("cache: data uri missing base64 marker")
	}
	mime := strings.TrimPrefix(uri[:idx], "data:")
	if semi := strings.Index(mime, ";"); semi >= 0 {
		mime = mime[:semi]
	}
	raw, err := base64.StdEncoding.DecodeString(uri[idx+len(base64Marker):])
	if err != nil {
		return nil, "", fmt.Errorf("cache: decode data uri: %w", err)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return raw, mime, nil
}
