package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/org"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// Handler wires the auth endpoints to the org service.
type Handler struct {
	service *org.Service
	logger  *slog.Logger
}

func New(service *org.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated auth endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/api/auth/register", h.HandleRegister)
	r.Post("/api/auth/login", h.HandleLogin)
}

// RegisterProtected mounts the endpoints requiring a valid token.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/api/auth/me", h.HandleMe)
	r.Get("/api/auth/users", h.HandleUsers)
}

type registerRequest struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type authResponse struct {
	Organization  org.Public `json:"organization"`
	Token         string     `json:"token"`
	DashboardPath string     `json:"dashboardPath"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[registerRequest](w, r)
	if !ok {
		return
	}
	result, err := h.service.Register(ctx, org.RegisterInput{
		Name:        req.Name,
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, authResponse{
		Organization:  result.Org,
		Token:         result.Token,
		DashboardPath: result.DashboardPath,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[loginRequest](w, r)
	if !ok {
		return
	}
	result, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authResponse{
		Organization:  result.Org,
		Token:         result.Token,
		DashboardPath: result.DashboardPath,
	})
}

type meResponse struct {
	Organization  org.Public `json:"organization"`
	DashboardPath string     `json:"dashboardPath"`
}

// HandleMe resolves the bearer token back into the caller's own record,
// used by clients to restore a session.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.service.Get(ctx, requestcontext.OrgID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{
		Organization:  o.ToPublic(),
		DashboardPath: id.DashboardPath(o.Role),
	})
}

func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgs, err := h.service.Directory(ctx, requestcontext.OrgID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orgs)
}
