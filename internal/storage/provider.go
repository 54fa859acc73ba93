// Package storage defines the blob store that holds record content.
package storage

import (
	"strings"
	"time"
)

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Key       string
	Size      int64
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for library blob operations.
// Keys are slash-separated paths relative to the library root.
type Provider interface {
	// List returns every blob under dir (relative to the library root).
	List(dir string) ([]BlobInfo, error)
	// Read returns the raw bytes stored under key.
	Read(key string) ([]byte, error)
	// Write atomically stores content under key.
	Write(key string, content []byte) error
	// Delete removes the blob stored under key.
	Delete(key string) error
}

// BlobDir is the directory, relative to the library root, holding record content.
const BlobDir = "blobs"

// BlobKey returns the storage key for a record's content.
func BlobKey(id string) string {
	return BlobDir + "/" + id
}

// IDFromKey is the inverse of BlobKey. ok is false for keys outside BlobDir.
func IDFromKey(key string) (id string, ok bool) {
	dir, id, found := strings.Cut(key, "/")
	if !found || dir != BlobDir || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
