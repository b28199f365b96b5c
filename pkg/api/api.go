// Package api serves page documents and the catalog over plain JSON HTTP.
// It is the contract store.HTTPRepository and store.HTTPCatalog speak, so one
// studio can act as the storage backend of another.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// maxRequestBodySize limits page documents accepted by PUT (1MB).
const maxRequestBodySize = 1 << 20

const defaultSearchLimit = 100

// Handler serves /api/pages and /api/catalog.
type Handler struct {
	mux       *http.ServeMux
	templates map[string]*section.Template
	schemas   map[string]*gojsonschema.Schema
	repo      store.Repository
	catalog   catalog.Source
	logger    logging.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTemplates replaces the built-in templates.
func WithTemplates(templates map[string]*section.Template) Option {
	return func(h *Handler) { h.templates = templates }
}

// WithLogger sets the handler logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New creates the API handler. A nil catalog source serves empty lists.
func New(repo store.Repository, src catalog.Source, opts ...Option) (*Handler, error) {
	h := &Handler{
		mux:       http.NewServeMux(),
		templates: section.Templates(),
		repo:      repo,
		catalog:   src,
		logger:    logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.catalog == nil {
		h.catalog = catalog.NewMemorySource(nil)
	}

	h.schemas = make(map[string]*gojsonschema.Schema, len(h.templates))
	for name, tmpl := range h.templates {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tmpl.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", name, err)
		}
		h.schemas[name] = schema
	}

	h.mux.HandleFunc("GET /api/pages/{page}", h.getPage)
	h.mux.HandleFunc("PUT /api/pages/{page}", h.putPage)
	h.mux.HandleFunc("GET /api/catalog/packs/{id}/contents", h.packContents)
	h.mux.HandleFunc("GET /api/catalog/{kind}", h.listCatalog)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) template(w http.ResponseWriter, r *http.Request) (*section.Template, bool) {
	name := r.PathValue("page")
	tmpl, ok := h.templates[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown page: "+name)
		return nil, false
	}
	return tmpl, true
}

func (h *Handler) getPage(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.template(w, r)
	if !ok {
		return
	}

	doc, err := h.repo.Get(r.Context(), tmpl.Name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "page not saved yet: "+tmpl.Name)
		return
	}
	if err != nil {
		h.logger.Error("get page failed", logging.String("page", tmpl.Name), logging.Err(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeRaw(w, http.StatusOK, doc)
}

// putPage replaces the whole document. The body must satisfy the template
// schema; it is then normalized through the template before it is stored.
func (h *Handler) putPage(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.template(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := h.schemas[tmpl.Name].Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "document does not match the " + tmpl.Name + " schema",
			"problems": problems,
		})
		return
	}

	cfg, err := tmpl.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := json.Marshal(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stored, err := h.repo.Put(r.Context(), tmpl.Name, doc)
	if err != nil {
		h.logger.Error("put page failed", logging.String("page", tmpl.Name), logging.Err(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.logger.Info("page replaced", logging.String("page", tmpl.Name), logging.Int("bytes", len(stored)))
	writeRaw(w, http.StatusOK, stored)
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	kind, err := catalog.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	snap, err := catalog.Load(r.Context(), h.catalog, kind)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	limit := parseIntParam(r, "limit", defaultSearchLimit)
	writeJSON(w, http.StatusOK, snap.Search(kind, r.URL.Query().Get("q"), limit))
}

func (h *Handler) packContents(w http.ResponseWriter, r *http.Request) {
	snap, err := catalog.Load(r.Context(), h.catalog, catalog.KindPacks)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	ids, err := snap.Expand(r.PathValue("id"))
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, catalog.ErrPackCycle):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("encode response", logging.Err(err))
	}
}

func writeRaw(w http.ResponseWriter, status int, doc []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(doc)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
