// Package testutil provides shared test helpers for setting up libraries and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/notify"
	"github.com/starford/quill/internal/storage"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "quill-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary library directory with a storage.FS.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestLibrary wires a library.Service over a temporary store, database and hub.
func TestLibrary(t *testing.T, opts ...library.Option) *library.Service {
	t.Helper()
	_, store := TestStore(t)
	base := []library.Option{
		library.WithLogger(DiscardLogger()),
		library.WithHub(notify.NewHub(DiscardLogger())),
	}
	return library.NewService(store, TestDB(t), append(base, opts...)...)
}
