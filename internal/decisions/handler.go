package decisions

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vantage-erp/vantage-authz/internal/engine"
	"github.com/vantage-erp/vantage-authz/internal/observability"
	"github.com/vantage-erp/vantage-authz/internal/platform/httpx"
	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

// Handler serves the per-session decision API. Every check is answered from
// the session's in-memory snapshot; no request ever waits on the override
// store. The one hard rule is fail closed: no identity, no session, or no
// snapshot all read as denied, never as an error the caller could mistake
// for a grant.
type Handler struct {
	logger    *slog.Logger
	manager   *engine.Manager
	metrics   *observability.Metrics
	rateLimit func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, manager *engine.Manager, metrics *observability.Metrics) *Handler {
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.ID != "" {
			return "sess:" + sess.ID, nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		manager:   manager,
		metrics:   metrics,
		rateLimit: limiter,
	}
}

// MountRoutes registers the decision endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/authz", func(r chi.Router) {
		r.Get("/can", h.can)
		r.Get("/permissions", h.permissions)
		r.Get("/modules", h.modules)
		r.Get("/min-role", h.minRole)
		r.Get("/notices", h.notices)
		r.Post("/route-check", h.routeCheck)
		r.Post("/visibility", h.visibility)
		r.Delete("/session", h.endSession)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/refresh", h.refresh)
		})
	})
}

// session resolves the caller's live authorization session, acquiring one on
// first touch. A missing or unauthenticated browser session yields nil.
func (h *Handler) session(r *http.Request) *engine.AuthorizationSession {
	ident, ok := shared.CallerIdentity(r.Context())
	if !ok {
		return nil
	}
	return h.manager.Acquire(shared.SessionFromContext(r.Context()).ID, ident)
}

type decisionResponse struct {
	Allowed bool   `json:"allowed"`
	Module  string `json:"module,omitempty"`
	Action  string `json:"action,omitempty"`
}

func (h *Handler) can(w http.ResponseWriter, r *http.Request) {
	rawModule := strings.TrimSpace(r.URL.Query().Get("module"))
	action := registry.Action(strings.TrimSpace(r.URL.Query().Get("action")))
	if rawModule == "" || !registry.ValidAction(action) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "module and a known action are required")
		return
	}

	allowed := false
	module := registry.Canonicalize(rawModule)
	if sess := h.session(r); sess != nil {
		allowed = sess.Cache().CanPerform(rawModule, action)
	}
	h.metrics.ObserveDecision(string(action), allowed)
	httpx.JSON(w, http.StatusOK, decisionResponse{
		Allowed: allowed,
		Module:  string(module),
		Action:  string(action),
	})
}

type permissionsResponse struct {
	Role    string                     `json:"role"`
	Bypass  bool                       `json:"bypass"`
	Grid    map[string]map[string]bool `json:"grid"`
	Flags   map[string]bool            `json:"flags"`
	BuiltAt time.Time                  `json:"built_at"`
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	snap := sess.Cache().Snapshot()
	if snap == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "permissions are still loading")
		return
	}

	grid := make(map[string]map[string]bool, len(registry.Modules()))
	for _, module := range registry.Modules() {
		row := make(map[string]bool, len(registry.Actions()))
		for _, action := range registry.Actions() {
			row[string(action)] = snap.CanPerform(string(module), action)
		}
		grid[string(module)] = row
	}
	cache := sess.Cache()
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:   string(snap.Role),
		Bypass: snap.Bypass,
		Grid:   grid,
		Flags: map[string]bool{
			"billing_section": cache.ShowBillingSection(),
			"settings_menu":   cache.ShowSettingsMenu(),
			"user_management": cache.ShowUserManagement(),
		},
		BuiltAt: snap.BuiltAt,
	})
}

type moduleEntry struct {
	Module string `json:"module"`
	Title  string `json:"title"`
	Route  string `json:"route,omitempty"`
}

func (h *Handler) modules(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	table := h.manager.Guard().Table()
	accessible := sess.Cache().AccessibleModules()
	out := make([]moduleEntry, 0, len(accessible))
	for _, module := range accessible {
		entry := moduleEntry{
			Module: string(module),
			Title:  registry.DisplayTitle(module),
		}
		if route, ok := table.RouteFor(module); ok {
			entry.Route = route
		}
		out = append(out, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": out})
}

func (h *Handler) minRole(w http.ResponseWriter, r *http.Request) {
	min, ok := registry.ParseRole(r.URL.Query().Get("role"))
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
		return
	}
	allowed := false
	if sess := h.session(r); sess != nil {
		allowed = sess.Cache().HasMinRole(min)
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type routeCheckRequest struct {
	Path string `json:"path"`
}

type routeCheckResponse struct {
	Allowed    bool   `json:"allowed"`
	Module     string `json:"module,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (h *Handler) routeCheck(w http.ResponseWriter, r *http.Request) {
	var req routeCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Path) == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "path is required")
		return
	}

	sess := h.session(r)
	if sess == nil {
		h.metrics.ObserveDecision("route", false)
		httpx.JSON(w, http.StatusOK, routeCheckResponse{Allowed: false, RedirectTo: h.manager.Guard().Table().SafePath()})
		return
	}
	decision := h.manager.Guard().CheckRoute(sess.Cache().Snapshot(), req.Path)
	if decision.Allowed {
		// Only routes the user actually reached count as the current
		// location for later revocation checks.
		sess.RecordLocation(req.Path)
	}
	h.metrics.ObserveDecision("route", decision.Allowed)
	httpx.JSON(w, http.StatusOK, routeCheckResponse{
		Allowed:    decision.Allowed,
		Module:     string(decision.Module),
		RedirectTo: decision.RedirectTo,
	})
}

func (h *Handler) notices(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	notices := sess.DrainNotices()
	if notices == nil {
		notices = []engine.Notice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notices": notices})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	sess.Refresh()
	httpx.Accepted(w)
}

// endSession tears down the caller's authorization state on sign-out. The
// authentication layer owns the browser session itself; this only disposes
// the permission cache and detaches the identity.
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	h.manager.Release(sess.ID)
	sess.ClearIdentity()
	httpx.NoContent(w)
}

func (h *Handler) visibility(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	sess.VisibilityRegained()
	httpx.Accepted(w)
}
