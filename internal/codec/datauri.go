package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// DecodeDataURI parses a data:[<mediatype>][;base64],<data> URI into a File
// named name. The declared media type becomes the file's MIME type.
func DecodeDataURI(uri, name string) (*models.File, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("codec: %w: not a data URI", apperr.ErrInvalidInput)
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("codec: %w: data URI is missing the comma separator", apperr.ErrInvalidInput)
	}
	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("codec: %w: only base64 data URIs are supported", apperr.ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("codec: %w: invalid base64 data: %w", apperr.ErrInvalidInput, err)
		}
	}

	mimeType := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return &models.File{Name: name, MIMEType: mimeType, Data: data}, nil
}

// EncodeDataURI renders f the way a browser FileReader would.
func EncodeDataURI(f *models.File) string {
	mimeType := f.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
