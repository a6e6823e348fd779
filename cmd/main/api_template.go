package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/Vellum/pkg/csrf"
	"github.com/CTAG07/Vellum/pkg/routing"
	"github.com/CTAG07/Vellum/pkg/templating"
)

// maxTemplateSize caps request bodies for template uploads and tests.
const maxTemplateSize = 1 << 20

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	tokens *csrf.Manager
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, tokens *csrf.Manager, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		tokens: tokens,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /templates endpoints on the
// authenticated API router.
func (t *TemplateAPI) RegisterRoutes(router *routing.Router) {
	// Rendering goes through the csrf middleware so csrf helpers have a session.
	router.HandleFunc("api.templates", "/templates", t.handleList, http.MethodGet)
	router.HandleFunc("api.templates.refresh", "/templates/refresh", t.handleRefresh, http.MethodPost)
	router.Handle("api.templates.test", "/templates/test", t.tokens.Middleware(http.HandlerFunc(t.handleTest)), http.MethodPost)
	router.Handle("api.templates.preview", "/templates/preview", t.tokens.Middleware(http.HandlerFunc(t.handlePreview)), http.MethodGet)
	router.HandleFunc("api.templates.file", "/templates/{name}", t.handleFile, http.MethodGet, http.MethodPut, http.MethodDelete)
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the loaded pages and every defined template name.
func (t *TemplateAPI) handleList(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string][]string{
		"pages":     t.tm.GetPageNames(),
		"templates": t.tm.GetTemplateNames(),
	})
}

// handleTest validates template syntax without saving the file by executing
// it as a string against sample data.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateSize))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, previewRequest(r), string(body), samplePageData()); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePreview renders a loaded template against sample data. The optional
// "path" parameter sets the request path seen by the uri and queryString
// helpers, e.g. ?name=home.tmpl.html&path=/posts?page=2.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}
	if !t.tm.HasTemplate(name) {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
		return
	}

	var buf bytes.Buffer
	if err := t.tm.ExecuteRequest(&buf, previewRequest(r), name, samplePageData()); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to render preview: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// previewRequest returns r re-targeted at the "path" query parameter, or at
// "/" when none is given.
func previewRequest(r *http.Request) *http.Request {
	target := r.URL.Query().Get("path")
	if target == "" {
		target = "/"
	}
	preview := r.Clone(r.Context())
	path, query, _ := strings.Cut(target, "?")
	preview.URL.Path = path
	preview.URL.RawPath = ""
	preview.URL.RawQuery = query
	return preview
}

// samplePageData is the dot value used for previews and tests.
func samplePageData() PageData {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	post := Post{
		ID:        1,
		Slug:      "hello-world",
		Title:     "Hello, world",
		Body:      "<p>This is a sample post.</p><!--more--><p>It has more to say after the fold.</p>",
		CreatedAt: created,
	}
	return PageData{
		Title:  "Preview",
		Posts:  []Post{post},
		Post:   post,
		Page:   1,
		Form:   map[string]string{},
		Errors: map[string]string{},
	}
}

// handleFile manages CRUD operations for a single template file.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	name := routing.Vars(r)["name"]
	if strings.Contains(name, "..") || (!strings.HasSuffix(name, ".tmpl.html") && !strings.HasSuffix(name, ".part.html")) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return
	}

	templateDir, err := filepath.Abs(t.tm.GetTemplateDir())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve template directory")
		return
	}
	path := filepath.Join(templateDir, name)
	if filepath.Dir(path) != templateDir {
		respondWithError(w, http.StatusForbidden, "Access denied: Path outside template directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateSize))
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		if err = os.WriteFile(path, body, 0644); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
			return
		}
		if err = t.tm.Refresh(); err != nil {
			t.logger.Warn("Saved template does not parse", "template", name, "error", err)
			respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Template saved but failed to parse: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
			return
		}
		_ = t.tm.Refresh()
		w.WriteHeader(http.StatusNoContent)
	}
}
