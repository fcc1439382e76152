package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
	"github.com/aryan0dhankhar/mesledger/internal/service"
)

// RecordsHandler exposes the generic record API for every kind.
type RecordsHandler struct {
	records *service.RecordService
	logger  *slog.Logger
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(records *service.RecordService, logger *slog.Logger) *RecordsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordsHandler{records: records, logger: logger}
}

var listParams = map[string]bool{"order_by": true, "desc": true, "limit": true, "offset": true}

// parseListOptions reads paging and ordering parameters. Every other query
// parameter is an equality filter; values that parse as JSON scalars
// (numbers, booleans) are compared as such.
func parseListOptions(q url.Values) (domain.ListOptions, error) {
	opts := domain.ListOptions{OrderBy: q.Get("order_by")}
	var err error
	if v := q.Get("desc"); v != "" {
		if opts.Desc, err = strconv.ParseBool(v); err != nil {
			return opts, domain.Invalid("desc", "must be a boolean")
		}
	}
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 0 {
			return opts, domain.Invalid("limit", "must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil || opts.Offset < 0 {
			return opts, domain.Invalid("offset", "must be a non-negative integer")
		}
	}
	for key, values := range q {
		if listParams[key] || key == "token" || len(values) == 0 {
			continue
		}
		if opts.Filter == nil {
			opts.Filter = domain.Filter{}
		}
		var scalar any
		if err := json.Unmarshal([]byte(values[0]), &scalar); err == nil {
			switch scalar.(type) {
			case float64, bool:
				opts.Filter[key] = scalar
				continue
			}
		}
		opts.Filter[key] = values[0]
	}
	return opts, nil
}

// List handles GET /api/records/{kind}
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	opts, err := parseListOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recs, err := h.records.List(r.Context(), middleware.ActorFromContext(r.Context()), kind, opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]service.Document, 0, len(recs))
	for _, rec := range recs {
		items = append(items, service.NewDocument(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
}

// Get handles GET /api/records/{kind}/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	rec, err := h.records.Get(r.Context(), middleware.ActorFromContext(r.Context()), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewDocument(rec))
}

// Create handles POST /api/records/{kind}
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	var attrs domain.Attrs
	if err := decodeJSON(r, &attrs); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rec, err := h.records.Create(r.Context(), middleware.ActorFromContext(r.Context()), kind, attrs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, service.NewDocument(rec))
}

// Update handles PATCH /api/records/{kind}/{id}
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	var patch domain.Attrs
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rec, err := h.records.Update(r.Context(), middleware.ActorFromContext(r.Context()), kind, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewDocument(rec))
}

// PreviewCode handles POST /api/codes/{kind}
func (h *RecordsHandler) PreviewCode(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	code, err := h.records.PreviewCode(r.Context(), middleware.ActorFromContext(r.Context()), kind)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": string(kind), "code": code})
}
