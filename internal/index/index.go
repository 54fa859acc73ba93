package index

import "github.com/starford/quill/internal/models"

// RecordIndex defines the interface for record metadata operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RecordIndex interface {
	InsertRecord(meta models.RecordMeta, body string) error
	DeleteRecord(id string) (bool, error)
	GetRecord(id string) (*models.RecordMeta, error)
	ListRecords(category models.Category) ([]models.RecordMeta, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)
