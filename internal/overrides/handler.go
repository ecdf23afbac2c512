package overrides

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/platform/httpx"
	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// Store is the override persistence surface the admin API needs.
type Store interface {
	List(ctx context.Context, tenantID uuid.UUID, role registry.Role) ([]Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, tenantID uuid.UUID, role registry.Role, key registry.Key) error
}

// Handler exposes the tenant administrator API over override records. Writes
// publish a change signal so every active session reconciles.
type Handler struct {
	logger   *slog.Logger
	repo     Store
	feed     ChangeFeed
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo Store, feed ChangeFeed) *Handler {
	return &Handler{
		logger:   logger,
		repo:     repo,
		feed:     feed,
		validate: validator.New(),
	}
}

// MountRoutes registers the admin override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tenants/{tenantID}/roles/{role}/overrides", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/", h.upsert)
		r.Delete("/", h.remove)
	})
}

type overrideResponse struct {
	Key       string    `json:"key"`
	Module    string    `json:"module"`
	Action    string    `json:"action"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

type upsertRequest struct {
	Module  string `json:"module" validate:"required"`
	Action  string `json:"action" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, role, ok := h.scope(w, r)
	if !ok {
		return
	}
	records, err := h.repo.List(r.Context(), tenantID, role)
	if err != nil {
		h.logger.Error("list overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]overrideResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, overrideResponse{
			Key:       rec.Key.String(),
			Module:    string(rec.Key.Module),
			Action:    string(rec.Key.Action),
			Enabled:   rec.Enabled,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": out})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	tenantID, role, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	action := registry.Action(req.Action)
	if !registry.ValidAction(action) || action == registry.ActionManage {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown or non-editable action")
		return
	}
	key := registry.NewKey(req.Module, action)
	if !registry.KnownModule(key.Module) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown module")
		return
	}
	rec := Record{TenantID: tenantID, Role: role, Key: key, Enabled: *req.Enabled}
	if err := h.repo.Upsert(r.Context(), rec); err != nil {
		h.logger.Error("upsert override", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.publish(r, tenantID)
	httpx.JSON(w, http.StatusOK, overrideResponse{
		Key:       rec.Key.String(),
		Module:    string(rec.Key.Module),
		Action:    string(rec.Key.Action),
		Enabled:   rec.Enabled,
		UpdatedAt: time.Now().UTC(),
	})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	tenantID, role, ok := h.scope(w, r)
	if !ok {
		return
	}
	key, parsed := registry.ParseKey(r.URL.Query().Get("key"))
	if !parsed {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "key query parameter must be module.action")
		return
	}
	if err := h.repo.Delete(r.Context(), tenantID, role, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no override stored for key")
			return
		}
		h.logger.Error("delete override", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.publish(r, tenantID)
	httpx.NoContent(w)
}

// scope parses the tenant and role from the URL and enforces that the caller
// may administer them: platform admins may touch any tenant, tenant owners
// only their own.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, registry.Role, bool) {
	ident, ok := shared.CallerIdentity(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return uuid.Nil, "", false
	}
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant id must be a uuid")
		return uuid.Nil, "", false
	}
	role, ok := registry.ParseRole(chi.URLParam(r, "role"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
		return uuid.Nil, "", false
	}
	if !ident.Bypass() {
		if ident.TenantID != tenantID || ident.TenantRole != registry.RoleOwner {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "override administration requires the tenant owner")
			return uuid.Nil, "", false
		}
	}
	return tenantID, role, true
}

func (h *Handler) publish(r *http.Request, tenantID uuid.UUID) {
	if err := h.feed.Publish(r.Context(), tenantID); err != nil {
		// The periodic refresh covers sessions the signal did not reach.
		h.logger.Warn("publish override change", slog.Any("error", err),
			slog.String("tenant_id", tenantID.String()))
	}
}
