// Package models defines the domain types for Quill.
package models

import (
	"fmt"
	"time"
)

// Category partitions the library namespace.
type Category string

const (
	CategoryTemplate Category = "template"
	CategoryResource Category = "resource"
)

// ParseCategory validates a category name coming from an outer surface.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryTemplate, CategoryResource:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// RecordMeta is the lightweight representation returned by listings.
// It never carries the content blob.
type RecordMeta struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Name      string    `json:"name"`
	FileName  string    `json:"file_name,omitempty"`
	MIMEType  string    `json:"mime_type,omitempty"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Content is the payload of a record, discriminated by Category:
// templates carry File, resources carry Text.
type Content struct {
	Category Category
	File     *File
	Text     string
}

// TemplateContent wraps an uploaded file as template content.
func TemplateContent(f *File) Content {
	return Content{Category: CategoryTemplate, File: f}
}

// ResourceContent wraps a text snippet as resource content.
func ResourceContent(text string) Content {
	return Content{Category: CategoryResource, Text: text}
}

// Validate checks that the payload matches the category.
func (c Content) Validate() error {
	switch c.Category {
	case CategoryTemplate:
		if c.File == nil {
			return fmt.Errorf("template content requires a file")
		}
		if c.File.Name == "" {
			return fmt.Errorf("template file requires a name")
		}
	case CategoryResource:
		if c.File != nil {
			return fmt.Errorf("resource content cannot carry a file")
		}
	default:
		return fmt.Errorf("unknown category %q", c.Category)
	}
	return nil
}
