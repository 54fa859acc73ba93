package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/metrics"
	"github.com/starford/quill/internal/models"
)

// UntitledResources names archived resources when neither a name nor a
// context label is given.
const UntitledResources = "Untitled Resources"

// ResourceField holds the free-text resources the user is working with.
type ResourceField struct {
	lib    Library
	logger *slog.Logger

	mu         sync.Mutex
	gen        uint64
	text       string
	recordID   string
	archived   bool
	autoLoaded bool
}

// NewResourceField creates an empty field backed by lib.
func NewResourceField(lib Library, logger *slog.Logger) *ResourceField {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceField{lib: lib, logger: logger}
}

// Set replaces the text. Typing always wins over pending loads.
func (r *ResourceField) Set(text string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.text = text
	r.recordID = ""
	r.archived = false
	return r.gen
}

// LoadRecord replaces the text with resource id from the library.
func (r *ResourceField) LoadRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	r.gen++
	g := r.gen
	r.mu.Unlock()

	text, err := r.lib.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if !r.apply(g, text, id) {
		return ErrStale
	}
	return nil
}

// AutoLoad fills an empty field with the most recent resource. A blank
// newest resource loads nothing. It runs at most once and never touches a
// field that already holds text.
func (r *ResourceField) AutoLoad(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.autoLoaded || strings.TrimSpace(r.text) != "" {
		r.autoLoaded = true
		r.mu.Unlock()
		return false, nil
	}
	r.autoLoaded = true
	g := r.gen
	r.mu.Unlock()

	list, err := r.lib.List(ctx, models.CategoryResource)
	if err != nil {
		return false, err
	}
	if len(list) == 0 {
		return false, nil
	}
	newest := list[0]
	text, err := r.lib.GetResource(ctx, newest.ID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	if !r.apply(g, text, newest.ID) {
		r.logger.Debug("auto-loaded resource discarded", slog.String("id", newest.ID))
		return false, nil
	}
	r.logger.Info("resource auto-loaded", slog.String("id", newest.ID), slog.String("name", newest.Name))
	return true, nil
}

// Archive saves the text to the library. An empty name falls back to
// contextLabel, then to UntitledResources. Text that is already archived
// is not saved again.
func (r *ResourceField) Archive(ctx context.Context, name, contextLabel string) (string, error) {
	r.mu.Lock()
	if strings.TrimSpace(r.text) == "" {
		r.mu.Unlock()
		return "", fmt.Errorf("ingest: %w: resource text is empty", apperr.ErrInvalidInput)
	}
	if r.archived {
		id := r.recordID
		r.mu.Unlock()
		return id, nil
	}
	g, text := r.gen, r.text
	r.mu.Unlock()

	meta, err := r.lib.SaveResource(ctx, ResourceName(name, contextLabel), text)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.gen == g {
		r.archived = true
		r.recordID = meta.ID
	}
	r.mu.Unlock()
	return meta.ID, nil
}

// Value returns the current text.
func (r *ResourceField) Value() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// Archived reports whether the current text is stored in the library.
func (r *ResourceField) Archived() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.archived
}

// ResourceName picks the display name for an archived resource.
func ResourceName(name, contextLabel string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if l := strings.TrimSpace(contextLabel); l != "" {
		return l
	}
	return UntitledResources
}

func (r *ResourceField) apply(g uint64, text, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != g {
		metrics.StaleResultsDiscarded.WithLabelValues("resource").Inc()
		return false
	}
	r.gen++
	r.text = text
	r.recordID = id
	r.archived = true
	return true
}
