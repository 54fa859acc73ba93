package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/ingest"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/testutil"
)

func testServer(t *testing.T) (*Server, *library.Service) {
	t.Helper()
	lib := testutil.TestLibrary(t)
	srv := New(lib, ingest.NewPipeline(codec.New(), testutil.DiscardLogger()))
	return srv, lib
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_library":
		result, err = srv.listLibrary(ctx, req)
	case "search_library":
		result, err = srv.searchLibrary(ctx, req)
	case "read_resource":
		result, err = srv.readResource(ctx, req)
	case "get_template_part":
		result, err = srv.getTemplatePart(ctx, req)
	case "ingest_file":
		result, err = srv.ingestFile(ctx, req)
	case "archive_resource":
		result, err = srv.archiveResource(ctx, req)
	case "delete_record":
		result, err = srv.deleteRecord(ctx, req)
	case "read_template":
		result, err = srv.readTemplate(ctx, req)
	case "get_session":
		result, err = srv.getSession(ctx, req)
	case "select_template":
		result, err = srv.selectTemplate(ctx, req)
	case "archive_template":
		result, err = srv.archiveTemplate(ctx, req)
	case "set_resources":
		result, err = srv.setResources(ctx, req)
	case "prepare_request":
		result, err = srv.prepareRequest(ctx, req)
	case "get_part_format":
		result, err = srv.getPartFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestArchiveAndReadResource(t *testing.T) {
	srv, _ := testServer(t)

	res := callTool(t, srv, "archive_resource", map[string]interface{}{
		"text":          "Payment within 30 days.",
		"context_label": "Invoice",
	})
	if res.IsError {
		t.Fatalf("archive: %s", resultText(res))
	}
	var meta models.RecordMeta
	if err := json.Unmarshal([]byte(resultText(res)), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Name != "Invoice" {
		t.Errorf("name = %q", meta.Name)
	}

	res = callTool(t, srv, "read_resource", map[string]interface{}{"id": meta.ID})
	if res.IsError || resultText(res) != "Payment within 30 days." {
		t.Errorf("read = %q", resultText(res))
	}
}

func TestListLibrary(t *testing.T) {
	srv, lib := testServer(t)
	_, _ = lib.SaveResource(context.Background(), "first", "a")
	second, _ := lib.SaveResource(context.Background(), "second", "b")

	res := callTool(t, srv, "list_library", map[string]interface{}{"category": "resource"})
	var records []models.RecordMeta
	_ = json.Unmarshal([]byte(resultText(res)), &records)
	if len(records) != 2 || records[0].ID != second.ID {
		t.Errorf("records = %+v", records)
	}

	res = callTool(t, srv, "list_library", map[string]interface{}{"category": "nope"})
	if !res.IsError {
		t.Error("expected error for unknown category")
	}
}

func TestReadResourceMissing(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "read_resource", map[string]interface{}{"id": "missing"})
	if !res.IsError || resultText(res) != "not found" {
		t.Errorf("result = %+v", res)
	}
}

func TestIngestFile_DataURIAndArchive(t *testing.T) {
	srv, lib := testServer(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	res := callTool(t, srv, "ingest_file", map[string]interface{}{
		"source":   uri,
		"filename": "scan.png",
		"archive":  true,
	})
	if res.IsError {
		t.Fatalf("ingest: %s", resultText(res))
	}
	var out ingestResult
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Part.InlineData == nil || out.Part.InlineData.MIMEType != "image/png" {
		t.Fatalf("part = %+v", out.Part)
	}
	if out.RecordID == "" {
		t.Fatal("archive did not return a record id")
	}
	f, err := lib.GetTemplate(context.Background(), out.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "scan.png" || string(f.Data) != string(png) {
		t.Errorf("stored file = %s %q", f.Name, f.Data)
	}
}

func TestIngestFile_TextWithoutArchive(t *testing.T) {
	srv, lib := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))

	res := callTool(t, srv, "ingest_file", map[string]interface{}{"source": uri})
	if res.IsError {
		t.Fatalf("ingest: %s", resultText(res))
	}
	var out ingestResult
	_ = json.Unmarshal([]byte(resultText(res)), &out)
	if !strings.HasSuffix(out.Name, ".txt") {
		t.Errorf("derived name = %q", out.Name)
	}
	if out.Part.Text == nil || *out.Part.Text != "[TEMPLATE CONTENT (TXT)]\nhello" {
		t.Errorf("part = %+v", out.Part)
	}
	list, _ := lib.List(context.Background(), models.CategoryTemplate)
	if len(list) != 0 {
		t.Errorf("ingest without archive stored %d templates", len(list))
	}
}

func TestIngestFile_Rejected(t *testing.T) {
	srv, _ := testServer(t)
	for _, args := range []map[string]interface{}{
		{"source": "ftp://example.com/x.pdf"},
		{"source": "http://127.0.0.1/x.pdf"},
		{"source": "data:application/pdf,plain"},
		{"source": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("not a pdf")), "filename": "x.pdf"},
		{"source": "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString([]byte("junk")), "filename": "bad.docx"},
	} {
		if res := callTool(t, srv, "ingest_file", args); !res.IsError {
			t.Errorf("%v: expected error, got %s", args, resultText(res))
		}
	}
}

func TestGetTemplatePartAndDelete(t *testing.T) {
	srv, lib := testServer(t)
	meta, _ := lib.SaveTemplate(context.Background(), &models.File{Name: "t.htm", Data: []byte("<b>x</b>")})

	res := callTool(t, srv, "get_template_part", map[string]interface{}{"id": meta.ID})
	if res.IsError || !strings.Contains(resultText(res), "[TEMPLATE CONTENT (HTM)]") {
		t.Fatalf("part = %s", resultText(res))
	}

	res = callTool(t, srv, "delete_record", map[string]interface{}{"id": meta.ID})
	if res.IsError {
		t.Fatalf("delete: %s", resultText(res))
	}
	res = callTool(t, srv, "delete_record", map[string]interface{}{"id": meta.ID})
	if !res.IsError {
		t.Error("second delete should report not found")
	}
	res = callTool(t, srv, "get_template_part", map[string]interface{}{"id": meta.ID})
	if !res.IsError {
		t.Error("deleted template still converts")
	}
}

func TestSearchLibrary(t *testing.T) {
	srv, lib := testServer(t)
	_, _ = lib.SaveResource(context.Background(), "Warranty", "two years")
	res := callTool(t, srv, "search_library", map[string]interface{}{"query": "Warranty"})
	if res.IsError || !strings.Contains(resultText(res), "Warranty") {
		t.Errorf("search = %s", resultText(res))
	}
}

func TestPartFormatContract(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "get_part_format", nil)
	if !strings.Contains(resultText(res), "inlineData") {
		t.Error("contract does not describe inline data parts")
	}
	contents, err := srv.readPartFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"../../etc/passwd": "passwd",
		"my file (1).pdf":  "my_file__1_.pdf",
		"ok.docx":          "ok.docx",
	} {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func sessionOf(t *testing.T, srv *Server) sessionState {
	t.Helper()
	res := callTool(t, srv, "get_session", nil)
	var st sessionState
	if err := json.Unmarshal([]byte(resultText(res)), &st); err != nil {
		t.Fatalf("session: %v", err)
	}
	return st
}

func TestSessionAutoLoad(t *testing.T) {
	srv, lib := testServer(t)
	ctx := context.Background()
	meta, _ := lib.SaveTemplate(ctx, &models.File{Name: "form.txt", Data: []byte("Name: ____")})
	_, _ = lib.SaveResource(ctx, "notes", "Chapter 4")

	if err := srv.AutoLoad(ctx); err != nil {
		t.Fatalf("AutoLoad: %v", err)
	}
	st := sessionOf(t, srv)
	if st.Template != "form.txt" || st.TemplateRecordID != meta.ID || !st.TemplateArchived {
		t.Errorf("template state = %+v", st)
	}
	if st.Resources != "Chapter 4" || !st.ResourcesArchived {
		t.Errorf("resource state = %+v", st)
	}
}

func TestSessionAutoLoad_EmptyLibrary(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.AutoLoad(context.Background()); err != nil {
		t.Fatalf("AutoLoad: %v", err)
	}
	if st := sessionOf(t, srv); st.Template != "" || st.Resources != "" {
		t.Errorf("session = %+v", st)
	}
}

func TestSelectArchiveAndPrepare(t *testing.T) {
	srv, lib := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("Objective: ____"))

	res := callTool(t, srv, "select_template", map[string]interface{}{"source": uri, "filename": "plan.txt"})
	if res.IsError {
		t.Fatalf("select: %s", resultText(res))
	}
	if st := sessionOf(t, srv); st.Template != "plan.txt" || st.TemplateArchived {
		t.Fatalf("after select: %+v", st)
	}

	res = callTool(t, srv, "archive_template", nil)
	if res.IsError {
		t.Fatalf("archive: %s", resultText(res))
	}
	var first map[string]string
	_ = json.Unmarshal([]byte(resultText(res)), &first)
	res = callTool(t, srv, "archive_template", nil)
	var second map[string]string
	_ = json.Unmarshal([]byte(resultText(res)), &second)
	if first["recordId"] == "" || first["recordId"] != second["recordId"] {
		t.Fatalf("archive ids = %v, %v", first, second)
	}
	list, _ := lib.List(context.Background(), models.CategoryTemplate)
	if len(list) != 1 {
		t.Errorf("templates stored = %d, want 1", len(list))
	}

	callTool(t, srv, "set_resources", map[string]interface{}{"text": "Chapter 4, pp. 12-19"})
	res = callTool(t, srv, "prepare_request", map[string]interface{}{"instruction": "Fill in the plan."})
	if res.IsError {
		t.Fatalf("prepare: %s", resultText(res))
	}
	var out ingest.Request
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Parts) != 1 || out.Parts[0].Text == nil || *out.Parts[0].Text != "[TEMPLATE CONTENT (TXT)]\nObjective: ____" {
		t.Errorf("parts = %+v", out.Parts)
	}
	if out.Instruction != "Fill in the plan.\n\nResources to Use:\nChapter 4, pp. 12-19" {
		t.Errorf("instruction = %q", out.Instruction)
	}
}

func TestPrepareRequest_NoTemplate(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "prepare_request", map[string]interface{}{"instruction": "x"})
	if !res.IsError {
		t.Fatalf("expected error, got %s", resultText(res))
	}
}

func TestSelectTemplate_ByRecord(t *testing.T) {
	srv, lib := testServer(t)
	meta, _ := lib.SaveTemplate(context.Background(), &models.File{Name: "t.htm", Data: []byte("<b>x</b>")})

	res := callTool(t, srv, "select_template", map[string]interface{}{"id": meta.ID})
	if res.IsError {
		t.Fatalf("select: %s", resultText(res))
	}
	if st := sessionOf(t, srv); st.TemplateRecordID != meta.ID || !st.TemplateArchived {
		t.Errorf("session = %+v", st)
	}

	for _, args := range []map[string]interface{}{
		nil,
		{"id": meta.ID, "source": "data:text/plain;base64,eA=="},
		{"id": "missing"},
	} {
		if res := callTool(t, srv, "select_template", args); !res.IsError {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestArchiveResource_FromSession(t *testing.T) {
	srv, _ := testServer(t)
	if res := callTool(t, srv, "archive_resource", nil); !res.IsError {
		t.Fatal("archiving empty resources should fail")
	}

	callTool(t, srv, "set_resources", map[string]interface{}{"text": "Glossary"})
	res := callTool(t, srv, "archive_resource", nil)
	if res.IsError {
		t.Fatalf("archive: %s", resultText(res))
	}
	var meta models.RecordMeta
	_ = json.Unmarshal([]byte(resultText(res)), &meta)
	if meta.Name != ingest.UntitledResources {
		t.Errorf("name = %q", meta.Name)
	}
	if st := sessionOf(t, srv); !st.ResourcesArchived {
		t.Errorf("session = %+v", st)
	}

	callTool(t, srv, "set_resources", map[string]interface{}{"id": meta.ID})
	if st := sessionOf(t, srv); st.Resources != "Glossary" || !st.ResourcesArchived {
		t.Errorf("after load: %+v", st)
	}
}

func TestReadTemplate_DataURI(t *testing.T) {
	srv, lib := testServer(t)
	data := []byte("%PDF-1.4 body")
	meta, _ := lib.Save(context.Background(), models.CategoryTemplate, "Week 1",
		models.TemplateContent(&models.File{Name: "week1.pdf", MIMEType: "application/pdf", Data: data}))

	res := callTool(t, srv, "read_template", map[string]interface{}{"id": meta.ID})
	if res.IsError {
		t.Fatalf("read: %s", resultText(res))
	}
	var out templateFile
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatal(err)
	}
	f, err := codec.DecodeDataURI(out.DataURI, out.Name)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "week1.pdf" || f.MIMEType != "application/pdf" || string(f.Data) != string(data) {
		t.Errorf("template = %+v", out)
	}
}

func TestIngestFile_GenericDataURITypeUsesExtension(t *testing.T) {
	srv, _ := testServer(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(png)

	res := callTool(t, srv, "ingest_file", map[string]interface{}{"source": uri, "filename": "scan.png"})
	if res.IsError {
		t.Fatalf("ingest: %s", resultText(res))
	}
	var out ingestResult
	_ = json.Unmarshal([]byte(resultText(res)), &out)
	if out.Part.InlineData == nil || out.Part.InlineData.MIMEType != "image/png" {
		t.Errorf("part = %+v", out.Part)
	}
}
