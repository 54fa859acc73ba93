package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/models"
)

// SaveResourceRequest is the request body for archiving a resource.
type SaveResourceRequest struct {
	Name         string `json:"name" example:"Lease clauses"`
	ContextLabel string `json:"context_label,omitempty" example:"Lease agreement"`
	Text         string `json:"text" example:"Clause 4.2 applies" validate:"required"`
}

// Validate validates the request body.
func (r SaveResourceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.By(notBlank)),
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.ContextLabel, validation.Length(0, 200)),
	)
}

func notBlank(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}

// RecordMeta is the record metadata response type (aliased from the domain layer).
type RecordMeta = models.RecordMeta

// ListResponse wraps a category listing.
type ListResponse struct {
	Category models.Category     `json:"category" example:"template" validate:"required"`
	Records  []models.RecordMeta `json:"records" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID       string          `json:"id" example:"3f0c..." validate:"required"`
	Category models.Category `json:"category" example:"resource" validate:"required"`
	Name     string          `json:"name" example:"Lease clauses" validate:"required"`
	Snippet  string          `json:"snippet" example:"...matched text..."`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

func toSearchResponse(in []index.SearchResult) SearchResponse {
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = SearchResult{ID: r.ID, Category: r.Category, Name: r.Name, Snippet: r.Snippet}
	}
	return SearchResponse{Results: out}
}

// ResourceResponse is the content of a resource record.
type ResourceResponse struct {
	RecordMeta
	Text string `json:"text"`
}

// PartResponse wraps one ingested part.
type PartResponse struct {
	Name string      `json:"name" example:"form.pdf"`
	Part models.Part `json:"part" validate:"required"`
}
