package index

import (
	"log/slog"

	"github.com/starford/quill/internal/storage"
)

// SyncReport summarises one reconciliation pass.
type SyncReport struct {
	DroppedRows int
	OrphanBlobs int
	Checked     int
}

// Sync brings the index and the blob directory back in agreement:
//   - rows whose blob no longer exists are deleted
//   - blobs without a row (left behind by an interrupted save) are removed
func Sync(db *DB, store storage.Provider, logger *slog.Logger) (SyncReport, error) {
	var report SyncReport

	blobs, err := store.List(storage.BlobDir)
	if err != nil {
		return report, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return report, err
	}

	disk := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		id, ok := storage.IDFromKey(b.Key)
		if !ok {
			continue
		}
		report.Checked++
		disk[id] = struct{}{}

		if _, indexed := checksums[id]; indexed {
			if checksums[id] != b.Checksum {
				logger.Warn("sync: checksum mismatch", slog.String("id", id))
			}
			continue
		}
		if err := store.Delete(b.Key); err != nil {
			logger.Warn("sync: remove orphan failed", slog.String("key", b.Key), slog.String("error", err.Error()))
			continue
		}
		report.OrphanBlobs++
		logger.Debug("sync: removed orphan blob", slog.String("key", b.Key))
	}

	for id := range checksums {
		if _, ok := disk[id]; ok {
			continue
		}
		if _, err := db.DeleteRecord(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		report.DroppedRows++
		logger.Debug("sync: dropped row without blob", slog.String("id", id))
	}

	return report, nil
}
