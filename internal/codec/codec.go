// Package codec converts uploaded files into AI-ready parts and converts
// library blobs back into files or text.
package codec

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// Delimiters around extracted Word structure so a text consumer can find it
// inside a larger prompt.
const (
	StructureHeader = "[TEMPLATE STRUCTURE (HTML)]"
	StructureFooter = "[TEMPLATE STRUCTURE END]"
	structureNote   = "(Note to AI: The text above is the HTML structure of the user's template. Use this to understand the tables and sections.)"
)

// DefaultMIMEType is used for binary files whose type cannot be resolved.
const DefaultMIMEType = "application/pdf"

// Extractor turns a Word document into HTML that keeps headings,
// paragraphs and tables.
type Extractor interface {
	ToHTML(ctx context.Context, data []byte) (string, error)
}

// Codec is safe for concurrent use.
type Codec struct {
	extractor   Extractor
	defaultMIME string
}

// Option configures a Codec.
type Option func(*Codec)

// WithExtractor replaces the Word extractor. A nil extractor makes every
// .docx conversion fail with apperr.ErrExtraction.
func WithExtractor(e Extractor) Option {
	return func(c *Codec) { c.extractor = e }
}

// WithDefaultMIMEType overrides the last-resort MIME type for binary parts.
func WithDefaultMIMEType(mimeType string) Option {
	return func(c *Codec) {
		if mimeType != "" {
			c.defaultMIME = mimeType
		}
	}
}

// New creates a Codec with the built-in DOCX extractor.
func New(opts ...Option) *Codec {
	c := &Codec{
		extractor:   NewDocxExtractor(),
		defaultMIME: DefaultMIMEType,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToPart converts f into exactly one Part. Dispatch is by extension:
// docx is extracted to HTML, txt/html/htm are passed through verbatim,
// everything else is sent as base64 inline data.
func (c *Codec) ToPart(ctx context.Context, f *models.File) (models.Part, error) {
	if f == nil {
		return models.Part{}, fmt.Errorf("codec: %w: no file", apperr.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return models.Part{}, err
	}
	if len(f.Data) == 0 {
		return models.Part{}, fmt.Errorf("codec: %w: %s is empty, please choose another file", apperr.ErrExtraction, f.Name)
	}

	switch ext := f.Ext(); ext {
	case "docx":
		return c.docxPart(ctx, f)
	case "txt", "html", "htm":
		return models.TextPart(fmt.Sprintf("[TEMPLATE CONTENT (%s)]\n%s", strings.ToUpper(ext), f.Data)), nil
	default:
		return models.BinaryPart(
			base64.StdEncoding.EncodeToString(f.Data),
			ResolveMIMEType(f, c.defaultMIME),
		), nil
	}
}

func (c *Codec) docxPart(ctx context.Context, f *models.File) (models.Part, error) {
	if c.extractor == nil {
		return models.Part{}, fmt.Errorf("codec: %w: document parser is not ready, please refresh and try again", apperr.ErrExtraction)
	}
	out, err := c.extractor.ToHTML(ctx, f.Data)
	if err != nil {
		return models.Part{}, fmt.Errorf("codec: %w: failed to read the Word document %s, please try converting it to PDF: %w",
			apperr.ErrExtraction, f.Name, err)
	}
	if strings.TrimSpace(out) == "" {
		return models.Part{}, fmt.Errorf("codec: %w: could not extract content from the Word document %s, please try converting it to PDF",
			apperr.ErrExtraction, f.Name)
	}
	return models.TextPart(StructureHeader + "\n" + out + "\n" + StructureFooter + "\n\n" + structureNote), nil
}

// Encode returns the blob persisted for c.
func Encode(c models.Content) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("codec: %w: %w", apperr.ErrInvalidInput, err)
	}
	if c.Category == models.CategoryTemplate {
		return c.File.Data, nil
	}
	return []byte(c.Text), nil
}

// FromRecord rebuilds the content of a stored record. Templates come back as a
// File carrying the original name and MIME type; resources as their text.
func FromRecord(meta models.RecordMeta, blob []byte) (models.Content, error) {
	switch meta.Category {
	case models.CategoryTemplate:
		if int64(len(blob)) != meta.Size {
			return models.Content{}, fmt.Errorf("codec: %w: %s has %d bytes, expected %d",
				apperr.ErrCorruption, meta.ID, len(blob), meta.Size)
		}
		name := meta.FileName
		if name == "" {
			name = meta.Name
		}
		return models.TemplateContent(&models.File{
			Name:     name,
			MIMEType: meta.MIMEType,
			Data:     blob,
		}), nil
	case models.CategoryResource:
		if !utf8.Valid(blob) {
			return models.Content{}, fmt.Errorf("codec: %w: %s is not valid UTF-8", apperr.ErrCorruption, meta.ID)
		}
		return models.ResourceContent(string(blob)), nil
	default:
		return models.Content{}, fmt.Errorf("codec: %w: %s has unknown category %q", apperr.ErrCorruption, meta.ID, meta.Category)
	}
}
