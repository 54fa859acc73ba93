package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/quill/internal/metrics"
	"github.com/starford/quill/internal/models"
)

// TemplateState is a snapshot of a TemplateSlot.
type TemplateState struct {
	File       *models.File
	RecordID   string
	Archived   bool
	Generation uint64
}

// TemplateSlot holds the template the user is currently working with.
type TemplateSlot struct {
	lib    Library
	logger *slog.Logger

	mu         sync.Mutex
	gen        uint64
	file       *models.File
	recordID   string
	archived   bool
	autoLoaded bool
}

// NewTemplateSlot creates an empty slot backed by lib.
func NewTemplateSlot(lib Library, logger *slog.Logger) *TemplateSlot {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateSlot{lib: lib, logger: logger}
}

// Select makes f the current template. It always wins over pending
// asynchronous loads and returns the new generation.
func (s *TemplateSlot) Select(f *models.File) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.file = f
	s.recordID = ""
	s.archived = false
	return s.gen
}

// SelectRecord loads template id from the library and makes it current.
// A template picked from the library is already archived. If another
// selection happens while loading, the loaded file is dropped and ErrStale
// is returned.
func (s *TemplateSlot) SelectRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	s.gen++
	g := s.gen
	s.mu.Unlock()

	f, err := s.lib.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if !s.apply(g, f, id) {
		return ErrStale
	}
	return nil
}

// AutoLoad selects the most recently created template, at most once per
// slot and only while nothing is selected. It reports whether a template
// was applied; a load overtaken by an explicit selection is discarded.
func (s *TemplateSlot) AutoLoad(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.autoLoaded || s.file != nil {
		s.autoLoaded = true
		s.mu.Unlock()
		return false, nil
	}
	s.autoLoaded = true
	g := s.gen
	s.mu.Unlock()

	list, err := s.lib.List(ctx, models.CategoryTemplate)
	if err != nil {
		return false, err
	}
	if len(list) == 0 {
		return false, nil
	}
	f, err := s.lib.GetTemplate(ctx, list[0].ID)
	if err != nil {
		return false, err
	}
	if !s.apply(g, f, list[0].ID) {
		s.logger.Debug("auto-loaded template discarded", slog.String("id", list[0].ID))
		return false, nil
	}
	s.logger.Info("template auto-loaded", slog.String("id", list[0].ID), slog.String("name", f.Name))
	return true, nil
}

// Archive saves the current template to the library. A template that is
// already archived is not saved again; its record id is returned.
func (s *TemplateSlot) Archive(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return "", ErrNoTemplate
	}
	if s.archived {
		id := s.recordID
		s.mu.Unlock()
		return id, nil
	}
	g, f := s.gen, s.file
	s.mu.Unlock()

	meta, err := s.lib.SaveTemplate(ctx, f)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.gen == g {
		s.archived = true
		s.recordID = meta.ID
	}
	s.mu.Unlock()
	return meta.ID, nil
}

// Clear empties the slot.
func (s *TemplateSlot) Clear() {
	s.Select(nil)
}

// Current returns the selected template, or nil.
func (s *TemplateSlot) Current() *models.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

// Archived reports whether the current template is stored in the library.
func (s *TemplateSlot) Archived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archived
}

// State returns a consistent snapshot of the slot.
func (s *TemplateSlot) State() TemplateState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TemplateState{File: s.file, RecordID: s.recordID, Archived: s.archived, Generation: s.gen}
}

// Generation returns the current generation.
func (s *TemplateSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *TemplateSlot) apply(g uint64, f *models.File, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != g {
		metrics.StaleResultsDiscarded.WithLabelValues("template").Inc()
		return false
	}
	s.gen++
	s.file = f
	s.recordID = id
	s.archived = true
	return true
}
