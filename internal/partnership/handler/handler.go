package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/audit"
	"custodia/internal/partnership"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// Handler wires the partnership endpoints.
type Handler struct {
	service *partnership.Service
	audit   *audit.Publisher
	logger  *slog.Logger
}

func New(service *partnership.Service, publisher *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: publisher, logger: logger}
}

// Register mounts the partnership endpoints; all require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/partnerships/request", h.HandleRequest)
	r.Get("/api/partnerships/list", h.HandleList)
	r.Get("/api/partnerships/requests", h.HandlePending)
	r.Post("/api/partnerships/{id}/accept", h.HandleRespond)
}

type requestBody struct {
	ReceiverID string `json:"receiverId"`
}

func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[requestBody](w, r)
	if !ok {
		return
	}
	receiver, err := id.ParseOrgID(req.ReceiverID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "receiverId must be a valid organization id"))
		return
	}
	caller := requestcontext.OrgID(ctx)
	p, err := h.service.Request(ctx, caller, receiver)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit.Emit(ctx, audit.Event{
		Kind:          audit.KindPartnershipRequested,
		ActorID:       caller.String(),
		PartnershipID: p.ID.String(),
	})
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.ListForOrg(ctx, requestcontext.OrgID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.PendingRequests(ctx, requestcontext.OrgID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type respondBody struct {
	Status string `json:"status"`
}

func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid, err := id.ParsePartnershipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid partnership id"))
		return
	}
	req, ok := httputil.Decode[respondBody](w, r)
	if !ok {
		return
	}
	decision, err := partnership.ParseDecision(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller := requestcontext.OrgID(ctx)
	p, err := h.service.Respond(ctx, pid, caller, decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind := audit.KindPartnershipAccepted
	if decision == partnership.DecisionReject {
		kind = audit.KindPartnershipRejected
	}
	h.audit.Emit(ctx, audit.Event{
		Kind:          kind,
		ActorID:       caller.String(),
		PartnershipID: p.ID.String(),
	})
	httputil.WriteJSON(w, http.StatusOK, p)
}
