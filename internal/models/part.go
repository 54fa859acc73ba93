package models

// Part is a unit of AI-ready content. Exactly one of Text or InlineData is set.
type Part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a base64 payload with its MIME type.
type InlineData struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// TextPart builds a textual part.
func TextPart(s string) Part {
	return Part{Text: &s}
}

// BinaryPart builds an inline-data part.
func BinaryPart(data, mimeType string) Part {
	return Part{InlineData: &InlineData{Data: data, MIMEType: mimeType}}
}

// IsText reports whether the part carries text.
func (p Part) IsText() bool { return p.Text != nil }
