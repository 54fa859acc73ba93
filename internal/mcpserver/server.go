// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Quill library and ingestion tools for LLM integration via stdio transport.
//
// One stdio connection is one working session: the server keeps the
// selected template and the resource text between tool calls.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/ingest"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/models"
)

const partFormatURI = "quill://part-format"

// Server wraps the MCP server with Quill tools.
type Server struct {
	mcp      *server.MCPServer
	lib      *library.Service
	pipeline *ingest.Pipeline
	logger   *slog.Logger

	template  *ingest.TemplateSlot
	resources *ingest.ResourceField
}

// New creates a new MCP server with all Quill tools registered.
func New(lib *library.Service, pipeline *ingest.Pipeline) *Server {
	logger := slog.Default()
	s := &Server{
		lib:       lib,
		pipeline:  pipeline,
		logger:    logger,
		template:  ingest.NewTemplateSlot(lib, logger),
		resources: ingest.NewResourceField(lib, logger),
	}

	s.mcp = server.NewMCPServer(
		"Quill",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_library",
		mcp.WithDescription("List the records of one library category, newest first. Returns metadata only."),
		mcp.WithString("category", mcp.Required(), mcp.Enum(string(models.CategoryTemplate), string(models.CategoryResource)),
			mcp.Description("Library category")),
	), s.listLibrary)

	s.mcp.AddTool(mcp.NewTool("search_library",
		mcp.WithDescription("Full-text search through record names and resource text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchLibrary)

	s.mcp.AddTool(mcp.NewTool("read_resource",
		mcp.WithDescription("Read the text of a resource record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource record id")),
	), s.readResource)

	s.mcp.AddTool(mcp.NewTool("get_template_part",
		mcp.WithDescription("Convert an archived template into an AI-ready part. "+
			"Read the part format first via the get_part_format tool or the "+partFormatURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Template record id")),
	), s.getTemplatePart)

	s.mcp.AddTool(mcp.NewTool("read_template",
		mcp.WithDescription("Download an archived template file as a base64 data URI."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Template record id")),
	), s.readTemplate)

	s.mcp.AddTool(mcp.NewTool("ingest_file",
		mcp.WithDescription("Convert a file into an AI-ready part, optionally archiving it as a template."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Base64 data URI or http(s) URL of the file")),
		mcp.WithString("filename", mcp.Description("File name; its extension selects the conversion")),
		mcp.WithBoolean("archive", mcp.Description("Also store the file as a template")),
	), s.ingestFile)

	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Show the session's selected template and resource text."),
	), s.getSession)

	s.mcp.AddTool(mcp.NewTool("select_template",
		mcp.WithDescription("Select the session template, either a library record (id) or a new file (source)."),
		mcp.WithString("id", mcp.Description("Template record id")),
		mcp.WithString("source", mcp.Description("Base64 data URI or http(s) URL of a new template file")),
		mcp.WithString("filename", mcp.Description("File name for source; its extension selects the conversion")),
	), s.selectTemplate)

	s.mcp.AddTool(mcp.NewTool("archive_template",
		mcp.WithDescription("Store the session template in the library. An already archived template is not stored twice."),
	), s.archiveTemplate)

	s.mcp.AddTool(mcp.NewTool("set_resources",
		mcp.WithDescription("Replace the session resource text, either with new text or with a library resource (id)."),
		mcp.WithString("text", mcp.Description("Resource text")),
		mcp.WithString("id", mcp.Description("Resource record id")),
	), s.setResources)

	s.mcp.AddTool(mcp.NewTool("prepare_request",
		mcp.WithDescription("Build the AI request from the session template, the session resources and an instruction."),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("Instruction for the AI consumer")),
	), s.prepareRequest)

	s.mcp.AddTool(mcp.NewTool("archive_resource",
		mcp.WithDescription("Store the session resource text as a resource record. Text given here replaces the session text first."),
		mcp.WithString("text", mcp.Description("Resource text")),
		mcp.WithString("name", mcp.Description("Display name")),
		mcp.WithString("context_label", mcp.Description("Name used when no display name is given")),
	), s.archiveResource)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Permanently delete a template or resource record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.deleteRecord)

	s.mcp.AddTool(mcp.NewTool("get_part_format",
		mcp.WithDescription("Returns the Quill part format contract."),
	), s.getPartFormat)

	// Resource: part format contract.
	s.mcp.AddResource(
		mcp.NewResource(partFormatURI, "Part Format Contract",
			mcp.WithResourceDescription("Shapes of the parts produced by ingestion."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPartFormatResource,
	)

	return s
}

// AutoLoad fills the empty session with the newest template and resource.
func (s *Server) AutoLoad(ctx context.Context) error {
	_, terr := s.template.AutoLoad(ctx)
	_, rerr := s.resources.AutoLoad(ctx)
	return errors.Join(terr, rerr)
}

// ServeStdio starts the session on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	if err := s.AutoLoad(ctx); err != nil {
		s.logger.Warn("session auto-load failed", slog.String("error", err.Error()))
	}
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type templateFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType,omitempty"`
	DataURI  string `json:"dataUri"`
}

type sessionState struct {
	Template          string `json:"template,omitempty"`
	TemplateRecordID  string `json:"templateRecordId,omitempty"`
	TemplateArchived  bool   `json:"templateArchived"`
	Resources         string `json:"resources"`
	ResourcesArchived bool   `json:"resourcesArchived"`
}

type ingestResult struct {
	Name     string      `json:"name"`
	RecordID string      `json:"recordId,omitempty"`
	Part     models.Part `json:"part"`
}

func (s *Server) listLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := models.ParseCategory(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := s.lib.List(ctx, category)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(records), nil
}

func (s *Server) searchLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.lib.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.lib.GetResource(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) getTemplatePart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.lib.GetTemplate(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	part, err := s.pipeline.Convert(ctx, f)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(ingestResult{Name: f.Name, RecordID: id, Part: part}), nil
}

func (s *Server) ingestFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := fetchSource(ctx, source, req.GetString("filename", ""))
	if err != nil {
		return toolError(err), nil
	}

	part, err := s.pipeline.Convert(ctx, f)
	if err != nil {
		return toolError(err), nil
	}
	out := ingestResult{Name: f.Name, Part: part}

	if req.GetBool("archive", false) {
		meta, err := s.lib.SaveTemplate(ctx, f)
		if err != nil {
			return toolError(err), nil
		}
		out.RecordID = meta.ID
	}
	return jsonResult(out), nil
}

func (s *Server) readTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.lib.GetTemplate(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(templateFile{Name: f.Name, MIMEType: f.MIMEType, DataURI: codec.EncodeDataURI(f)}), nil
}

func (s *Server) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.session()), nil
}

func (s *Server) selectTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	source := req.GetString("source", "")
	switch {
	case id != "" && source != "":
		return mcp.NewToolResultError("give either id or source, not both"), nil
	case id != "":
		if err := s.template.SelectRecord(ctx, id); err != nil {
			return toolError(err), nil
		}
	case source != "":
		f, err := fetchSource(ctx, source, req.GetString("filename", ""))
		if err != nil {
			return toolError(err), nil
		}
		s.template.Select(f)
	default:
		return mcp.NewToolResultError("id or source is required"), nil
	}
	return jsonResult(s.session()), nil
}

func (s *Server) archiveTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.template.Archive(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{"recordId": id}), nil
}

func (s *Server) setResources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("id", ""); id != "" {
		if err := s.resources.LoadRecord(ctx, id); err != nil {
			return toolError(err), nil
		}
	} else {
		s.resources.Set(req.GetString("text", ""))
	}
	return jsonResult(s.session()), nil
}

func (s *Server) prepareRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instruction, err := req.RequireString("instruction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.pipeline.PrepareSlot(ctx, s.template, withResources(instruction, s.resources.Value()))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out), nil
}

func (s *Server) archiveResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if text := req.GetString("text", ""); text != "" {
		s.resources.Set(text)
	}
	id, err := s.resources.Archive(ctx, req.GetString("name", ""), req.GetString("context_label", ""))
	if err != nil {
		return toolError(err), nil
	}
	meta, err := s.lib.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(meta), nil
}

func (s *Server) session() sessionState {
	st := s.template.State()
	out := sessionState{
		TemplateRecordID:  st.RecordID,
		TemplateArchived:  st.Archived,
		Resources:         s.resources.Value(),
		ResourcesArchived: s.resources.Archived(),
	}
	if st.File != nil {
		out.Template = st.File.Name
	}
	return out
}

// withResources appends the resource text to the instruction.
func withResources(instruction, resources string) string {
	resources = strings.TrimSpace(resources)
	if resources == "" {
		return instruction
	}
	return instruction + "\n\nResources to Use:\n" + resources
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.lib.Delete(ctx, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getPartFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PartFormatContract), nil
}

func (s *Server) readPartFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      partFormatURI,
			MIMEType: "text/markdown",
			Text:     PartFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}
