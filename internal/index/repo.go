package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	ID       string
	Category models.Category
	Name     string
	Snippet  string
}

const recordColumns = `id, category, name, file_name, mime_type, size, checksum, pages, created_at`

// InsertRecord stores a new metadata row and its search entry in one transaction.
// body is the searchable text (resource text; empty for templates).
func (db *DB) InsertRecord(m models.RecordMeta, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO records (`+recordColumns+`, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Category), m.Name, m.FileName, m.MIMEType, m.Size, m.Checksum, m.Pages, m.CreatedAt.UnixNano(), body)
	if err != nil {
		return fmt.Errorf("index: insert record: %w", err)
	}

	if err := ftsUpsert(tx, m.ID, m.Name, body); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRecord removes a record and its search entry.
// It reports whether a row existed.
func (db *DB) DeleteRecord(id string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("index: delete record: %w", err)
	}
	n, _ := res.RowsAffected()
	ftsDelete(tx, id)

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("index: commit: %w", err)
	}
	return n > 0, nil
}

// GetRecord returns the metadata of one record or apperr.ErrNotFound.
func (db *DB) GetRecord(id string) (*models.RecordMeta, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	m, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: record %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	return &m, nil
}

// ListRecords returns the records of one category, newest first.
func (db *DB) ListRecords(category models.Category) ([]models.RecordMeta, error) {
	rows, err := db.conn.Query(`
		SELECT `+recordColumns+`
		FROM records
		WHERE category = ?
		ORDER BY created_at DESC, seq DESC
	`, string(category))
	if err != nil {
		return nil, fmt.Errorf("index: list records: %w", err)
	}
	defer rows.Close()

	out := []models.RecordMeta{}
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan record: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllChecksums returns id → checksum for every record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.RecordMeta, error) {
	var (
		m        models.RecordMeta
		category string
		created  int64
	)
	if err := s.Scan(&m.ID, &category, &m.Name, &m.FileName, &m.MIMEType, &m.Size, &m.Checksum, &m.Pages, &created); err != nil {
		return models.RecordMeta{}, err
	}
	m.Category = models.Category(category)
	m.CreatedAt = time.Unix(0, created).UTC()
	return m, nil
}
