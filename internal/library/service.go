// Package library implements the persistent archive of templates and resources.
//
// Content blobs live in a storage.Provider, metadata rows in the SQLite index.
// Every committed mutation is announced on the notify.Hub.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/metrics"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/notify"
	"github.com/starford/quill/internal/storage"
)

const defaultSearchLimit = 20

// Service coordinates blob storage, the metadata index and change notification.
type Service struct {
	store  storage.Provider
	db     index.RecordIndex
	hub    *notify.Hub
	logger *slog.Logger
	now    func() time.Time

	// mu serialises writers; readers never observe a half-written record.
	mu sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithHub sets the hub that receives change events.
func WithHub(h *notify.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a library service. Without WithHub a private hub is used.
func NewService(store storage.Provider, db index.RecordIndex, opts ...Option) *Service {
	s := &Service{
		store:  store,
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = notify.NewHub(s.logger)
	}
	return s
}

// Hub returns the hub the service publishes to.
func (s *Service) Hub() *notify.Hub { return s.hub }

// List returns the metadata of every record in category, newest first.
// An empty library yields an empty, non-nil slice.
func (s *Service) List(ctx context.Context, category models.Category) (_ []models.RecordMeta, err error) {
	t := metrics.NewTimer()
	defer func() { metrics.RecordLibraryOp("list", string(category), err, t.Duration()) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := models.ParseCategory(string(category)); err != nil {
		return nil, fmt.Errorf("library: list: %w: %w", apperr.ErrInvalidInput, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.ListRecords(category)
	if err != nil {
		return nil, unavailable("list", err)
	}
	return rows, nil
}

// Get returns the metadata of one record.
func (s *Service) Get(ctx context.Context, id string) (*models.RecordMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMeta(id)
}

// GetContent returns the content of one record: a File for templates, the
// text for resources. The blob is verified against the stored checksum.
func (s *Service) GetContent(ctx context.Context, id string) (_ models.Content, err error) {
	t := metrics.NewTimer()
	var category models.Category
	defer func() { metrics.RecordLibraryOp("get", string(category), err, t.Duration()) }()

	if err := ctx.Err(); err != nil {
		return models.Content{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.getMeta(id)
	if err != nil {
		return models.Content{}, err
	}
	category = meta.Category

	blob, err := s.store.Read(storage.BlobKey(id))
	if errors.Is(err, fs.ErrNotExist) {
		return models.Content{}, fmt.Errorf("library: get %s: %w: content blob is missing", id, apperr.ErrCorruption)
	}
	if err != nil {
		return models.Content{}, unavailable("read blob", err)
	}
	if sum := checksum.Sum(blob); sum != meta.Checksum {
		return models.Content{}, fmt.Errorf("library: get %s: %w: checksum %s, expected %s",
			id, apperr.ErrCorruption, sum, meta.Checksum)
	}

	content, err := codec.FromRecord(*meta, blob)
	if err != nil {
		return models.Content{}, fmt.Errorf("library: get %s: %w", id, err)
	}
	return content, nil
}

// GetTemplate returns a template as a file indistinguishable from a fresh upload.
func (s *Service) GetTemplate(ctx context.Context, id string) (*models.File, error) {
	c, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Category != models.CategoryTemplate {
		return nil, fmt.Errorf("library: %s is not a template: %w", id, apperr.ErrNotFound)
	}
	return c.File, nil
}

// GetResource returns the text of a resource.
func (s *Service) GetResource(ctx context.Context, id string) (string, error) {
	c, err := s.GetContent(ctx, id)
	if err != nil {
		return "", err
	}
	if c.Category != models.CategoryResource {
		return "", fmt.Errorf("library: %s is not a resource: %w", id, apperr.ErrNotFound)
	}
	return c.Text, nil
}

// Save archives content under a fresh id and returns the new record's metadata.
// The blob is written before the metadata row; if the row cannot be written
// the blob is removed again. Subscribers are notified after both have committed.
func (s *Service) Save(ctx context.Context, category models.Category, name string, content models.Content) (_ models.RecordMeta, err error) {
	t := metrics.NewTimer()
	defer func() { metrics.RecordLibraryOp("save", string(category), err, t.Duration()) }()

	if err := ctx.Err(); err != nil {
		return models.RecordMeta{}, err
	}
	if content.Category != category {
		return models.RecordMeta{}, fmt.Errorf("library: save: %w: %s content saved as %s",
			apperr.ErrInvalidInput, content.Category, category)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.RecordMeta{}, fmt.Errorf("library: save: %w: name is required", apperr.ErrInvalidInput)
	}

	blob, err := codec.Encode(content)
	if err != nil {
		return models.RecordMeta{}, fmt.Errorf("library: save: %w", err)
	}

	meta := models.RecordMeta{
		ID:       uuid.NewString(),
		Category: category,
		Name:     name,
		Size:     int64(len(blob)),
		Checksum: checksum.Sum(blob),
	}
	var body string
	switch category {
	case models.CategoryTemplate:
		meta.FileName = content.File.Name
		meta.MIMEType = content.File.MIMEType
		if codec.IsPDF(content.File) {
			meta.Pages = s.pageCount(name, blob)
		}
	case models.CategoryResource:
		body = content.Text
	}

	key := storage.BlobKey(meta.ID)

	s.mu.Lock()
	meta.CreatedAt = s.now().UTC()
	if err := s.store.Write(key, blob); err != nil {
		s.mu.Unlock()
		return models.RecordMeta{}, unavailable("write blob", err)
	}
	if err := s.db.InsertRecord(meta, body); err != nil {
		if derr := s.store.Delete(key); derr != nil {
			s.logger.Warn("orphan blob left after failed save",
				slog.String("id", meta.ID), slog.String("error", derr.Error()))
		}
		s.mu.Unlock()
		return models.RecordMeta{}, unavailable("insert record", err)
	}
	s.mu.Unlock()

	metrics.BlobBytesWritten.WithLabelValues(string(category)).Add(float64(meta.Size))
	s.logger.Info("record saved",
		slog.String("id", meta.ID),
		slog.String("category", string(category)),
		slog.String("name", meta.Name),
		slog.Int64("size", meta.Size))
	s.publish(notify.KindSaved, category, meta.ID)
	return meta, nil
}

// SaveTemplate archives an uploaded file under its own name. Save keeps the
// file name apart from the display name, so either form reads back the same file.
func (s *Service) SaveTemplate(ctx context.Context, f *models.File) (models.RecordMeta, error) {
	if f == nil {
		return models.RecordMeta{}, fmt.Errorf("library: save template: %w: no file", apperr.ErrInvalidInput)
	}
	return s.Save(ctx, models.CategoryTemplate, f.Name, models.TemplateContent(f))
}

// SaveResource archives a text snippet under name.
func (s *Service) SaveResource(ctx context.Context, name, text string) (models.RecordMeta, error) {
	return s.Save(ctx, models.CategoryResource, name, models.ResourceContent(text))
}

// Delete removes a record permanently. An unknown id yields apperr.ErrNotFound
// and changes nothing.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	t := metrics.NewTimer()
	var category models.Category
	defer func() { metrics.RecordLibraryOp("delete", string(category), err, t.Duration()) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	meta, err := s.getMeta(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	category = meta.Category

	existed, err := s.db.DeleteRecord(id)
	if err != nil {
		s.mu.Unlock()
		return unavailable("delete record", err)
	}
	if !existed {
		s.mu.Unlock()
		return fmt.Errorf("library: delete %s: %w", id, apperr.ErrNotFound)
	}
	// The row is gone, so the record is gone; a leftover blob is an orphan
	// that the next index.Sync removes.
	if err := s.store.Delete(storage.BlobKey(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("blob delete failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	s.mu.Unlock()

	s.logger.Info("record deleted", slog.String("id", id), slog.String("category", string(category)))
	s.publish(notify.KindDeleted, category, id)
	return nil
}

// Search runs a full-text query over record names and resource text.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("library: search: %w: query is required", apperr.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, unavailable("search", err)
	}
	if res == nil {
		res = []index.SearchResult{}
	}
	return res, nil
}

func (s *Service) getMeta(id string) (*models.RecordMeta, error) {
	meta, err := s.db.GetRecord(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("library: %w", err)
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	return meta, nil
}

func (s *Service) pageCount(name string, data []byte) int {
	n, err := codec.PageCount(data)
	if err != nil {
		s.logger.Debug("page count unavailable", slog.String("name", name), slog.String("error", err.Error()))
		return 0
	}
	return n
}

func (s *Service) publish(kind notify.Kind, category models.Category, id string) {
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
	s.hub.Publish(notify.Event{Kind: kind, Category: category, ID: id})
}

func unavailable(op string, err error) error {
	return fmt.Errorf("library: %s: %w: %w", op, apperr.ErrStorageUnavailable, err)
}
