package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/ingest"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	lib      *library.Service
	pipeline *ingest.Pipeline
	uploads  *UploadPolicy
}

// NewHandler creates a new Handler.
func NewHandler(lib *library.Service, pipeline *ingest.Pipeline, uploads *UploadPolicy) *Handler {
	return &Handler{lib: lib, pipeline: pipeline, uploads: uploads}
}

// ListLibrary handles GET /api/library/{category}.
//
//	@Summary		List the records of one category, newest first
//	@Tags			library
//	@Produce		json
//	@Param			category	path		string	true	"Category"	Enums(template, resource)
//	@Success		200			{object}	ListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/library/{category} [get]
func (h *Handler) ListLibrary(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	records, err := h.lib.List(r.Context(), category)
	if err != nil {
		writeError(w, "list library", err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Category: category, Records: records})
}

// Search handles GET /api/library/search.
//
//	@Summary		Full-text search across record names and resource text
//	@Tags			library
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/library/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.lib.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(results))
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get the metadata of one record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	RecordMeta
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	meta, err := h.lib.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// GetContent handles GET /api/records/{id}/content.
// Templates are returned as the original file, resources as JSON.
//
//	@Summary		Get the content of one record
//	@Tags			records
//	@Produce		json,octet-stream
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	ResourceResponse
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/content [get]
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.lib.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get content", err)
		return
	}
	content, err := h.lib.GetContent(r.Context(), id)
	if err != nil {
		writeError(w, "get content", err)
		return
	}

	if content.Category == models.CategoryResource {
		writeJSON(w, http.StatusOK, ResourceResponse{RecordMeta: *meta, Text: content.Text})
		return
	}

	f := content.File
	ct := f.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// GetPart handles GET /api/records/{id}/part.
//
//	@Summary		Convert an archived template into an AI-ready part
//	@Tags			ingest
//	@Produce		json
//	@Param			id	path		string	true	"Template id"
//	@Success		200	{object}	PartResponse
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/part [get]
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request) {
	f, err := h.lib.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get part", err)
		return
	}
	part, err := h.pipeline.Convert(r.Context(), f)
	if err != nil {
		writeError(w, "get part", err)
		return
	}
	writeJSON(w, http.StatusOK, PartResponse{Name: f.Name, Part: part})
}

// SaveTemplate handles POST /api/templates (multipart/form-data, field "file").
//
//	@Summary		Archive an uploaded template
//	@Tags			library
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Template file"
//	@Success		201		{object}	RecordMeta
//	@Failure		400		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates [post]
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	f, err := h.uploads.readUpload(w, r)
	if err != nil {
		writeError(w, "upload template", err)
		return
	}
	if len(f.Data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("file is empty"))
		return
	}
	meta, err := h.lib.SaveTemplate(r.Context(), f)
	if err != nil {
		writeError(w, "save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// SaveResource handles POST /api/resources.
//
//	@Summary		Archive a text resource
//	@Tags			library
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveResourceRequest	true	"Resource to archive"
//	@Success		201		{object}	RecordMeta
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources [post]
func (h *Handler) SaveResource(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req SaveResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	meta, err := h.lib.SaveResource(r.Context(), ingest.ResourceName(req.Name, req.ContextLabel), req.Text)
	if err != nil {
		writeError(w, "save resource", err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// DeleteRecord handles DELETE /api/records/{id}.
//
//	@Summary		Delete a record permanently
//	@Tags			records
//	@Param			id	path	string	true	"Record id"
//	@Success		204	"Record deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.lib.Delete(r.Context(), id); err != nil {
		writeError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest handles POST /api/ingest (multipart/form-data, field "file").
// The file is converted and returned; nothing is stored.
//
//	@Summary		Convert an upload into an AI-ready part
//	@Tags			ingest
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to convert"
//	@Success		200		{object}	PartResponse
//	@Failure		400		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	f, err := h.uploads.readUpload(w, r)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	part, err := h.pipeline.Convert(r.Context(), f)
	if err != nil {
		writeError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, PartResponse{Name: f.Name, Part: part})
}
