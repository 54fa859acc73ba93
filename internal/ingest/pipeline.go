package ingest

import (
	"context"
	"log/slog"

	"github.com/starford/quill/internal/metrics"
	"github.com/starford/quill/internal/models"
)

// Pipeline converts uploads into parts. Errors from the converter are
// returned unchanged.
type Pipeline struct {
	conv   Converter
	logger *slog.Logger
}

// NewPipeline creates a pipeline over conv.
func NewPipeline(conv Converter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{conv: conv, logger: logger}
}

// Convert turns one file into a part.
func (p *Pipeline) Convert(ctx context.Context, f *models.File) (models.Part, error) {
	if f == nil {
		return models.Part{}, ErrNoTemplate
	}
	t := metrics.NewTimer()
	part, err := p.conv.ToPart(ctx, f)
	metrics.RecordConversion(f.Ext(), variant(part, err), err, t.Duration())
	if err != nil {
		p.logger.Warn("conversion failed",
			slog.String("name", f.Name),
			slog.String("error", err.Error()))
		return models.Part{}, err
	}
	return part, nil
}

// Prepare builds the consumer request for template plus any extra
// attachments, in that order.
func (p *Pipeline) Prepare(ctx context.Context, template *models.File, instruction string, attachments ...*models.File) (*Request, error) {
	if template == nil {
		return nil, ErrNoTemplate
	}
	parts := make([]models.Part, 0, 1+len(attachments))
	for _, f := range append([]*models.File{template}, attachments...) {
		part, err := p.Convert(ctx, f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return &Request{Parts: parts, Instruction: instruction}, nil
}

// PrepareSlot prepares the slot's current template. If the selection
// changes while converting, the result is dropped and ErrStale returned.
func (p *Pipeline) PrepareSlot(ctx context.Context, slot *TemplateSlot, instruction string) (*Request, error) {
	st := slot.State()
	req, err := p.Prepare(ctx, st.File, instruction)
	if err != nil {
		return nil, err
	}
	if slot.Generation() != st.Generation {
		metrics.StaleResultsDiscarded.WithLabelValues("conversion").Inc()
		return nil, ErrStale
	}
	return req, nil
}

func variant(part models.Part, err error) string {
	switch {
	case err != nil:
		return "none"
	case part.IsText():
		return "text"
	default:
		return "inline_data"
	}
}
