package models

import (
	"path/filepath"
	"strings"
)

// File is an in-memory file as received from an upload or rebuilt from the
// library. Files are held fully in memory.
type File struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Ext returns the lower-cased extension without the leading dot.
func (f *File) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
}

// Size returns the content length in bytes.
func (f *File) Size() int64 {
	return int64(len(f.Data))
}
