package codec

import (
	"strings"

	"github.com/starford/quill/internal/models"
)

var extMIME = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// ResolveMIMEType picks the MIME type for a binary part: the declared type,
// then the extension table, then fallback.
func ResolveMIMEType(f *models.File, fallback string) string {
	if f.MIMEType != "" {
		return f.MIMEType
	}
	if m, ok := extMIME[f.Ext()]; ok {
		return m
	}
	return fallback
}

// DeclaredType normalises a Content-Type sent alongside a file. Parameters are
// dropped, and the generic type clients send when they do not know the file's
// type becomes empty so extension-based resolution applies.
func DeclaredType(ct string) string {
	ct = strings.TrimSpace(strings.Split(ct, ";")[0])
	if strings.EqualFold(ct, "application/octet-stream") {
		return ""
	}
	return ct
}
