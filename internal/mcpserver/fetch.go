package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/models"
)

const maxSourceSize = 50 << 20 // 50 MB

var (
	mimeToExt = map[string]string{
		"application/pdf": ".pdf",
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"text/plain":      ".txt",
		"text/html":       ".html",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// fetchSource loads a file from a data URI or an http(s) URL.
// filename overrides the name derived from the source.
func fetchSource(ctx context.Context, source, filename string) (*models.File, error) {
	var (
		f   *models.File
		err error
	)
	if strings.HasPrefix(source, "data:") {
		f, err = codec.DecodeDataURI(source, "")
	} else {
		f, err = fetchHTTP(ctx, source)
	}
	if err != nil {
		return nil, err
	}
	f.MIMEType = codec.DeclaredType(f.MIMEType)
	if len(f.Data) > maxSourceSize {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max %d)", apperr.ErrInvalidInput, len(f.Data), maxSourceSize)
	}

	if filename == "" {
		filename = filenameFromSource(source, mimeToExt[f.MIMEType])
	}
	f.Name = sanitizeFilename(filename)

	if err := validateMagicBytes(f.Data, strings.ToLower(filepath.Ext(f.Name))); err != nil {
		return nil, err
	}
	return f, nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) (*models.File, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", apperr.ErrInvalidInput, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme: %s (only data, http, https)", apperr.ErrInvalidInput, parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", apperr.ErrInvalidInput, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	return &models.File{MIMEType: codec.DeclaredType(resp.Header.Get("Content-Type")), Data: data}, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("%w: blocked host: %s", apperr.ErrInvalidInput, host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("%w: blocked host: loopback address %s", apperr.ErrInvalidInput, host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("%w: blocked host: cloud metadata address %s", apperr.ErrInvalidInput, host)
	}
	return nil
}

// filenameFromSource extracts a file name from a URL, falling back to a UUID.
func filenameFromSource(source, fallbackExt string) string {
	if fallbackExt == "" {
		fallbackExt = ".bin"
	}
	if strings.HasPrefix(source, "data:") {
		return uuid.New().String() + fallbackExt
	}
	parsed, err := url.Parse(source)
	if err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.New().String() + fallbackExt
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies that files named as PDF or image really are.
// Other extensions are not checked.
func validateMagicBytes(data []byte, ext string) error {
	switch ext {
	case ".pdf":
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			return fmt.Errorf("%w: content does not appear to be a PDF", apperr.ErrInvalidInput)
		}
	case ".png", ".jpg", ".jpeg":
		detected := strings.Split(http.DetectContentType(data), ";")[0]
		want := "image/png"
		if ext != ".png" {
			want = "image/jpeg"
		}
		if detected != want {
			return fmt.Errorf("%w: content does not match extension %s (detected: %s)", apperr.ErrInvalidInput, ext, detected)
		}
	}
	return nil
}
