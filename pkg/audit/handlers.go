package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// Searcher queries stored audit events
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
}

// Handlers exposes the audit trail over HTTP
type Handlers struct {
	searcher Searcher
}

// NewHandlers creates audit handlers
func NewHandlers(searcher Searcher) *Handlers {
	return &Handlers{searcher: searcher}
}

// RegisterRoutes mounts GET /audit. protect wraps the handler with the
// permission check the caller wants applied.
func (h *Handlers) RegisterRoutes(router *mux.Router, protect func(http.Handler) http.Handler) {
	router.Handle("/audit", protect(http.HandlerFunc(h.search))).Methods(http.MethodGet)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	query := r.URL.Query()
	filter := SearchFilter{
		EventType:    EventType(query.Get("event_type")),
		Status:       EventStatus(query.Get("status")),
		ResourceType: ResourceType(query.Get("resource_type")),
		ResourceID:   query.Get("resource_id"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}

	if raw := query.Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid user_id")
			return
		}
		filter.UserID = &userID
	}

	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since: expected RFC3339")
			return
		}
		filter.StartTime = &since
	}

	events, err := h.searcher.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("audit search failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, events)
}
