//go:build sqlite_fts5

package index

import (
	"testing"
	"time"

	"github.com/starford/quill/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records_fts`).Scan(&count); err != nil {
		t.Fatalf("records_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	m := models.RecordMeta{ID: "fts", Category: models.CategoryResource, Name: "Reading list", CreatedAt: time.Now()}
	if err := db.InsertRecord(m, "The textbook covers powerful photosynthesis experiments."); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "fts" {
		t.Errorf("id = %q", results[0].ID)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	m := models.RecordMeta{ID: "gone", Category: models.CategoryResource, Name: "gone", CreatedAt: time.Now()}
	_ = db.InsertRecord(m, "vanishing content")
	_, _ = db.DeleteRecord("gone")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.ID == "gone" {
			t.Error("deleted record still in FTS index")
		}
	}
}
