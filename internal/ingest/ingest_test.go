package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/testutil"
)

func newLibrary(t *testing.T) *library.Service {
	t.Helper()
	return testutil.TestLibrary(t)
}

// gatedLibrary blocks template and resource reads until release is closed,
// so a test can interleave an explicit selection with a pending load.
type gatedLibrary struct {
	Library
	started chan struct{}
	release chan struct{}
}

func gate(lib Library) *gatedLibrary {
	return &gatedLibrary{Library: lib, started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedLibrary) GetTemplate(ctx context.Context, id string) (*models.File, error) {
	g.started <- struct{}{}
	<-g.release
	return g.Library.GetTemplate(ctx, id)
}

func (g *gatedLibrary) GetResource(ctx context.Context, id string) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return g.Library.GetResource(ctx, id)
}

type result struct {
	ok  bool
	err error
}

func TestTemplateAutoLoad_LoadsNewest(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveTemplate(ctx, &models.File{Name: "old.txt", Data: []byte("old")})
	newest, _ := lib.SaveTemplate(ctx, &models.File{Name: "new.txt", Data: []byte("new")})

	slot := NewTemplateSlot(lib, testutil.DiscardLogger())
	ok, err := slot.AutoLoad(ctx)
	if err != nil || !ok {
		t.Fatalf("AutoLoad = %v, %v", ok, err)
	}
	st := slot.State()
	if st.File.Name != "new.txt" || st.RecordID != newest.ID || !st.Archived {
		t.Errorf("state = %+v", st)
	}

	// Once only.
	slot.Clear()
	if ok, _ := slot.AutoLoad(ctx); ok {
		t.Error("second AutoLoad applied")
	}
	if slot.Current() != nil {
		t.Error("slot refilled after clear")
	}
}

func TestTemplateAutoLoad_EmptyLibraryOrSelected(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()

	slot := NewTemplateSlot(lib, testutil.DiscardLogger())
	if ok, err := slot.AutoLoad(ctx); ok || err != nil {
		t.Fatalf("empty library: %v, %v", ok, err)
	}

	_, _ = lib.SaveTemplate(ctx, &models.File{Name: "a.txt", Data: []byte("a")})
	chosen := &models.File{Name: "mine.txt", Data: []byte("mine")}
	slot2 := NewTemplateSlot(lib, testutil.DiscardLogger())
	slot2.Select(chosen)
	if ok, _ := slot2.AutoLoad(ctx); ok {
		t.Error("AutoLoad replaced an explicit selection")
	}
	if slot2.Current() != chosen {
		t.Error("selection changed")
	}
}

func TestTemplateAutoLoad_LateResultDiscarded(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveTemplate(ctx, &models.File{Name: "stored.txt", Data: []byte("stored")})

	g := gate(lib)
	slot := NewTemplateSlot(g, testutil.DiscardLogger())

	done := make(chan result)
	go func() {
		ok, err := slot.AutoLoad(ctx)
		done <- result{ok, err}
	}()

	<-g.started
	manual := &models.File{Name: "manual.pdf", Data: []byte("%PDF")}
	slot.Select(manual)
	close(g.release)

	r := <-done
	if r.err != nil || r.ok {
		t.Fatalf("AutoLoad = %v, %v; want discarded", r.ok, r.err)
	}
	if slot.Current() != manual {
		t.Errorf("late auto-load overwrote the manual selection: %+v", slot.Current())
	}
	if slot.Archived() {
		t.Error("manual upload marked archived")
	}
}

func TestTemplateSelectRecord_Superseded(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	meta, _ := lib.SaveTemplate(ctx, &models.File{Name: "stored.txt", Data: []byte("x")})

	g := gate(lib)
	slot := NewTemplateSlot(g, testutil.DiscardLogger())

	done := make(chan error)
	go func() { done <- slot.SelectRecord(ctx, meta.ID) }()
	<-g.started
	slot.Select(&models.File{Name: "newer.txt", Data: []byte("y")})
	close(g.release)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if slot.Current().Name != "newer.txt" {
		t.Errorf("current = %s", slot.Current().Name)
	}
}

func TestTemplateSelectRecord(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	meta, _ := lib.SaveTemplate(ctx, &models.File{Name: "stored.txt", MIMEType: "text/plain", Data: []byte("x")})

	slot := NewTemplateSlot(lib, nil)
	if err := slot.SelectRecord(ctx, meta.ID); err != nil {
		t.Fatal(err)
	}
	if !slot.Archived() || slot.Current().Name != "stored.txt" {
		t.Errorf("state = %+v", slot.State())
	}
	if err := slot.SelectRecord(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing record: %v", err)
	}
}

func TestTemplateArchive(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	slot := NewTemplateSlot(lib, nil)

	if _, err := slot.Archive(ctx); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("empty slot: %v", err)
	}

	slot.Select(&models.File{Name: "form.txt", Data: []byte("fill me")})
	if slot.Archived() {
		t.Fatal("fresh upload reported archived")
	}
	id, err := slot.Archive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slot.Archived() || slot.State().RecordID != id {
		t.Errorf("state = %+v", slot.State())
	}

	again, err := slot.Archive(ctx)
	if err != nil || again != id {
		t.Errorf("re-archive = %q, %v; want %q", again, err, id)
	}
	list, _ := lib.List(ctx, models.CategoryTemplate)
	if len(list) != 1 {
		t.Errorf("archived %d times, want 1", len(list))
	}

	slot.Select(&models.File{Name: "other.txt", Data: []byte("o")})
	if slot.Archived() {
		t.Error("replacement file reported archived")
	}
}

func TestResourceAutoLoad_EmptyField(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveResource(ctx, "older", "older text")
	_, _ = lib.SaveResource(ctx, "newest", "newest text")

	field := NewResourceField(lib, testutil.DiscardLogger())
	ok, err := field.AutoLoad(ctx)
	if err != nil || !ok {
		t.Fatalf("AutoLoad = %v, %v", ok, err)
	}
	if field.Value() != "newest text" || !field.Archived() {
		t.Errorf("value = %q archived = %v", field.Value(), field.Archived())
	}
}

func TestResourceAutoLoad_BlankNewestLoadsNothing(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveResource(ctx, "older", "older text")
	if _, err := lib.SaveResource(ctx, "newest", "  \n"); err != nil {
		t.Fatal(err)
	}

	field := NewResourceField(lib, nil)
	ok, err := field.AutoLoad(ctx)
	if err != nil || ok {
		t.Fatalf("AutoLoad = %v, %v", ok, err)
	}
	if field.Value() != "" || field.Archived() {
		t.Errorf("value = %q archived = %v", field.Value(), field.Archived())
	}
}

func TestResourceAutoLoad_LeavesExistingValue(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveResource(ctx, "stored", "stored text")

	field := NewResourceField(lib, nil)
	field.Set("typed by user")
	if ok, err := field.AutoLoad(ctx); ok || err != nil {
		t.Fatalf("AutoLoad = %v, %v", ok, err)
	}
	if field.Value() != "typed by user" {
		t.Errorf("value = %q", field.Value())
	}
}

func TestResourceAutoLoad_LateResultDiscarded(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	_, _ = lib.SaveResource(ctx, "stored", "stored text")

	g := gate(lib)
	field := NewResourceField(g, testutil.DiscardLogger())

	done := make(chan result)
	go func() {
		ok, err := field.AutoLoad(ctx)
		done <- result{ok, err}
	}()
	<-g.started
	field.Set("typed meanwhile")
	close(g.release)

	if r := <-done; r.ok || r.err != nil {
		t.Fatalf("AutoLoad = %v, %v", r.ok, r.err)
	}
	if field.Value() != "typed meanwhile" {
		t.Errorf("value = %q", field.Value())
	}
}

func TestResourceArchive(t *testing.T) {
	lib := newLibrary(t)
	ctx := context.Background()
	field := NewResourceField(lib, nil)

	if _, err := field.Archive(ctx, "n", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("blank text: %v", err)
	}

	field.Set("clause 4.2 applies")
	id, err := field.Archive(ctx, "", "Lease agreement")
	if err != nil {
		t.Fatal(err)
	}
	list, _ := lib.List(ctx, models.CategoryResource)
	if len(list) != 1 || list[0].ID != id || list[0].Name != "Lease agreement" {
		t.Errorf("list = %+v", list)
	}

	if err := field.LoadRecord(ctx, id); err != nil {
		t.Fatal(err)
	}
	if field.Value() != "clause 4.2 applies" || !field.Archived() {
		t.Errorf("after load: %q %v", field.Value(), field.Archived())
	}
}

func TestResourceName(t *testing.T) {
	tests := []struct{ name, label, want string }{
		{"Mine", "Label", "Mine"},
		{" ", "Label", "Label"},
		{"", "", UntitledResources},
	}
	for _, tt := range tests {
		if got := ResourceName(tt.name, tt.label); got != tt.want {
			t.Errorf("ResourceName(%q, %q) = %q, want %q", tt.name, tt.label, got, tt.want)
		}
	}
}

func TestPrepare(t *testing.T) {
	p := NewPipeline(codec.New(), testutil.DiscardLogger())
	ctx := context.Background()

	if _, err := p.Prepare(ctx, nil, "fill"); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("nil template: %v", err)
	}

	tmpl := &models.File{Name: "form.html", Data: []byte("<p>Name: ____</p>")}
	img := &models.File{Name: "id.png", Data: []byte{0x89, 'P', 'N', 'G'}}
	req, err := p.Prepare(ctx, tmpl, "fill the form", img)
	if err != nil {
		t.Fatal(err)
	}
	if req.Instruction != "fill the form" || len(req.Parts) != 2 {
		t.Fatalf("req = %+v", req)
	}
	if !req.Parts[0].IsText() || !strings.Contains(*req.Parts[0].Text, "<p>Name: ____</p>") {
		t.Errorf("part 0 = %+v", req.Parts[0])
	}
	if req.Parts[1].InlineData == nil || req.Parts[1].InlineData.MIMEType != "image/png" {
		t.Fatalf("part 1 = %+v", req.Parts[1])
	}
	raw, _ := base64.StdEncoding.DecodeString(req.Parts[1].InlineData.Data)
	if string(raw) != string(img.Data) {
		t.Errorf("inline data does not round-trip")
	}
}

func TestPrepare_ErrorsPropagateUnchanged(t *testing.T) {
	p := NewPipeline(codec.New(), testutil.DiscardLogger())
	_, err := p.Prepare(context.Background(), &models.File{Name: "broken.docx", Data: []byte("not a zip")}, "")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	_, err = p.Prepare(context.Background(), &models.File{Name: "empty.pdf"}, "")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("empty file: %v, want ErrExtraction", err)
	}
}

type blockingConverter struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingConverter) ToPart(context.Context, *models.File) (models.Part, error) {
	b.started <- struct{}{}
	<-b.release
	return models.TextPart("late"), nil
}

func TestPrepareSlot_DropsSupersededConversion(t *testing.T) {
	conv := blockingConverter{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewPipeline(conv, testutil.DiscardLogger())
	slot := NewTemplateSlot(newLibrary(t), nil)
	slot.Select(&models.File{Name: "first.txt", Data: []byte("1")})

	done := make(chan error)
	go func() {
		_, err := p.PrepareSlot(context.Background(), slot, "go")
		done <- err
	}()
	<-conv.started
	slot.Select(&models.File{Name: "second.txt", Data: []byte("2")})
	close(conv.release)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
}

func TestPrepareSlot_Current(t *testing.T) {
	p := NewPipeline(codec.New(), nil)
	slot := NewTemplateSlot(newLibrary(t), nil)
	if _, err := p.PrepareSlot(context.Background(), slot, ""); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("empty slot: %v", err)
	}
	slot.Select(&models.File{Name: "a.txt", Data: []byte("hello")})
	req, err := p.PrepareSlot(context.Background(), slot, "")
	if err != nil {
		t.Fatal(err)
	}
	if *req.Parts[0].Text != "[TEMPLATE CONTENT (TXT)]\nhello" {
		t.Errorf("text = %q", *req.Parts[0].Text)
	}
}
