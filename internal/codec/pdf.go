package codec

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/starford/quill/internal/models"
)

// IsPDF reports whether f looks like a PDF by declared type, extension or magic.
func IsPDF(f *models.File) bool {
	return f.MIMEType == "application/pdf" || f.Ext() == "pdf" || bytes.HasPrefix(f.Data, []byte("%PDF-"))
}

// PageCount returns the number of pages of a PDF held in memory.
func PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("codec: count pdf pages: malformed document: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err = api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("codec: count pdf pages: %w", err)
	}
	return n, nil
}
