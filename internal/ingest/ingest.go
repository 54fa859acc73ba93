// Package ingest turns uploads into parts for the AI consumer and keeps the
// current template and resource selections in step with the library.
//
// Selections carry a generation counter. Every state change bumps it, and an
// asynchronous result (auto-load, library pick, archive, conversion) is only
// applied when the generation it started from is still current.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

var (
	// ErrNoTemplate is returned when an operation needs a template and none is selected.
	ErrNoTemplate = fmt.Errorf("ingest: %w: no template selected", apperr.ErrInvalidInput)
	// ErrStale is returned when a newer selection superseded the operation's result.
	ErrStale = errors.New("ingest: result superseded by a newer selection")
)

// Library is the subset of the library service used by ingestion.
type Library interface {
	List(ctx context.Context, category models.Category) ([]models.RecordMeta, error)
	GetTemplate(ctx context.Context, id string) (*models.File, error)
	GetResource(ctx context.Context, id string) (string, error)
	SaveTemplate(ctx context.Context, f *models.File) (models.RecordMeta, error)
	SaveResource(ctx context.Context, name, text string) (models.RecordMeta, error)
}

// Converter turns a file into one part.
type Converter interface {
	ToPart(ctx context.Context, f *models.File) (models.Part, error)
}

// Request is what the AI consumer receives: structured content parts plus an
// instruction built by the caller.
type Request struct {
	Parts       []models.Part `json:"parts"`
	Instruction string        `json:"instruction"`
}

// Consumer is the external generative model collaborator.
type Consumer interface {
	Generate(ctx context.Context, req Request) (string, error)
}
