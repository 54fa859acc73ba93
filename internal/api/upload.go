package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/models"
)

// DefaultMaxUploadBytes bounds a single upload when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20 // 50 MB

// DefaultAccept lists the file name patterns accepted for upload.
var DefaultAccept = []string{
	"*.pdf", "*.docx", "*.doc", "*.txt", "*.html", "*.htm",
	"*.png", "*.jpg", "*.jpeg",
}

// UploadPolicy decides which multipart uploads are accepted.
type UploadPolicy struct {
	accept   []glob.Glob
	maxBytes int64
}

// NewUploadPolicy compiles the accept patterns. Patterns match the lower-cased
// base file name. An empty pattern list accepts every name.
func NewUploadPolicy(patterns []string, maxBytes int64) (*UploadPolicy, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	p := &UploadPolicy{maxBytes: maxBytes}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid accept pattern '%s': %w", pattern, err)
		}
		p.accept = append(p.accept, g)
	}
	return p, nil
}

// Accepts reports whether name may be uploaded.
func (p *UploadPolicy) Accepts(name string) bool {
	if len(p.accept) == 0 {
		return true
	}
	base := strings.ToLower(filepath.Base(name))
	for _, g := range p.accept {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// readUpload reads the multipart field "file" fully into memory.
func (p *UploadPolicy) readUpload(w http.ResponseWriter, r *http.Request) (*models.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBytes)

	if err := r.ParseMultipartForm(p.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrInvalidInput, p.maxBytes)
		}
		return nil, fmt.Errorf("%w: invalid multipart form", apperr.ErrInvalidInput)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing 'file' field in multipart form", apperr.ErrInvalidInput)
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean(header.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: filename is required", apperr.ErrInvalidInput)
	}
	if !p.Accepts(name) {
		return nil, fmt.Errorf("%w: %s is not an accepted file type", apperr.ErrUnsupportedFormat, name)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload", apperr.ErrInvalidInput)
	}
	return &models.File{
		Name:     name,
		MIMEType: codec.DeclaredType(header.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}
