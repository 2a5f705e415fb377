package content

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
)

// Handlers exposes the publication workflow over HTTP
type Handlers struct {
	service *Service
}

// NewHandlers creates new content handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the blog, edition and sweep routes. Each
// operation authorizes the caller itself, so no permission middleware is
// attached here.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	const base = "/{kind:blogs|editions}"
	const item = base + "/{id:[0-9]+}"

	router.HandleFunc(base, h.ListPublished).Methods(http.MethodGet)
	router.HandleFunc(base, h.Create).Methods(http.MethodPost)
	router.HandleFunc(base+"/queue", h.ListQueue).Methods(http.MethodGet)
	router.HandleFunc(item, h.Get).Methods(http.MethodGet)
	router.HandleFunc(item, h.Update).Methods(http.MethodPut)
	router.HandleFunc(item, h.Delete).Methods(http.MethodDelete)
	router.HandleFunc(item+"/submit", h.Submit).Methods(http.MethodPost)
	router.HandleFunc(item+"/approve", h.Approve).Methods(http.MethodPost)
	router.HandleFunc(item+"/publish", h.Publish).Methods(http.MethodPost)
	router.HandleFunc(item+"/takedown", h.TakeDown).Methods(http.MethodPost)
	router.HandleFunc(item+"/admin-takedown", h.AdminTakeDown).Methods(http.MethodPost)
	router.HandleFunc("/sweep", h.Sweep).Methods(http.MethodPost)
}

type approveRequest struct {
	PublishAt *time.Time `json:"publish_at"`
}

type takeDownRequest struct {
	ToPending bool `json:"to_pending"`
}

// ListPublished lists live items, promoting due ones first
func (h *Handlers) ListPublished(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	items, err := h.service.ListPublished(r.Context(), kind, ListOptions{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

// ListQueue lists items in the status named by ?status=, pending by default
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	status := StatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		var err error
		if status, err = ParseStatus(raw); err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	}
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	items, err := h.service.List(r.Context(), auth.IdentityFromContext(r.Context()), kind, status,
		ListOptions{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

// Create creates an item owned by the caller
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	item, err := h.service.Create(r.Context(), auth.IdentityFromContext(r.Context()), kind, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, item)
}

// Get returns one item
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), auth.IdentityFromContext(r.Context()), kind, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

// Update edits the content fields of an unpublished item
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	item, err := h.service.Update(r.Context(), auth.IdentityFromContext(r.Context()), kind, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

// Delete removes an item
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), auth.IdentityFromContext(r.Context()), kind, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Submit sends a draft for approval
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := h.service.SubmitForApproval(r.Context(), auth.IdentityFromContext(r.Context()), kind, id)
	h.writeItem(w, r, item, err)
}

// Approve schedules a pending item
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PublishAt == nil {
		httputil.WriteBadRequest(w, "publish_at is required")
		return
	}
	item, err := h.service.Approve(r.Context(), auth.IdentityFromContext(r.Context()), kind, id, *req.PublishAt)
	h.writeItem(w, r, item, err)
}

// Publish makes an item live immediately
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := h.service.Publish(r.Context(), auth.IdentityFromContext(r.Context()), kind, id)
	h.writeItem(w, r, item, err)
}

// TakeDown lets the owner withdraw an item
func (h *Handlers) TakeDown(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req takeDownRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	item, err := h.service.TakeDown(r.Context(), auth.IdentityFromContext(r.Context()), kind, id, req.ToPending)
	h.writeItem(w, r, item, err)
}

// AdminTakeDown withdraws any pending or approved item
func (h *Handlers) AdminTakeDown(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req takeDownRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	item, err := h.service.AdminTakeDown(r.Context(), auth.IdentityFromContext(r.Context()), kind, id, req.ToPending)
	h.writeItem(w, r, item, err)
}

// Sweep promotes due items on demand
func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Sweep(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (h *Handlers) kind(w http.ResponseWriter, r *http.Request) (Kind, bool) {
	kind, err := ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		httputil.WriteNotFound(w, "unknown content kind")
		return "", false
	}
	return kind, true
}

func (h *Handlers) target(w http.ResponseWriter, r *http.Request) (Kind, int64, bool) {
	kind, ok := h.kind(w, r)
	if !ok {
		return "", 0, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return "", 0, false
	}
	return kind, id, true
}

func (h *Handlers) writeItem(w http.ResponseWriter, r *http.Request, item *Item, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, ErrNotOwner):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, rbac.ErrLocked):
		httputil.WriteForbidden(w, "insufficient permissions")
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrSchedulingViolation):
		httputil.WriteTeapot(w, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, rbac.ErrInvalidPermission):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("content request failed")
		httputil.WriteInternalError(w)
	}
}
