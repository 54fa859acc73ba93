package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// EventCallback is called after a watcher-driven index change.
// kind is always "deleted" today: blobs only appear through the library.
type EventCallback func(kind string, meta models.RecordMeta)

// Watch starts an fsnotify watcher on the blob directory and drops index rows
// for blobs that disappear out-of-band, until ctx is cancelled. It calls cb
// (if non-nil) after each such removal.
//
// Deletions made through the library remove the row first, so the
// matching Remove event finds nothing to do.
func Watch(ctx context.Context, db *DB, blobRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(blobRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", blobRoot))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			if _, statErr := os.Stat(ev.Name); statErr == nil {
				continue
			}
			dropMissing(db, name, logger, cb)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func dropMissing(db *DB, id string, logger *slog.Logger, cb EventCallback) {
	meta, err := db.GetRecord(id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("watcher: lookup failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		return
	}
	removed, err := db.DeleteRecord(id)
	if err != nil {
		logger.Warn("watcher: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	if !removed {
		return
	}
	logger.Debug("watcher: dropped record with missing blob", slog.String("id", id))
	if cb != nil {
		cb("deleted", *meta)
	}
}
