// Package reconciler keeps a session's permission cache synchronized with
// the override store: initial load, push-triggered and periodic refreshes,
// diff detection, and re-validation of the current location after material
// changes.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/guard"
	"github.com/vantage-erp/vantage-authz/internal/observability"
	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/permcache"
)

// DefaultRefreshInterval is the periodic fallback cadence for sessions the
// push feed failed to reach.
const DefaultRefreshInterval = 30 * time.Second

// Notifier receives the user-facing side effects of reconciliation. All
// notifications are non-blocking advisories, never errors.
type Notifier interface {
	// PermissionsChanged fires after a refresh produced a materially
	// different snapshot.
	PermissionsChanged(snap *permcache.Snapshot)
	// AccessRevoked fires when the current location is no longer viewable;
	// the decision carries the forced redirect target.
	AccessRevoked(path string, decision guard.Decision)
}

// Config collects the reconciler's collaborators.
type Config struct {
	Cache    *permcache.Cache
	Feed     overrides.ChangeFeed
	Guard    *guard.Guard
	Notifier Notifier
	// Location reports the session's current navigation path. The guard is
	// always checked against the location at reconcile time, not at
	// subscribe time.
	Location func() string
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Interval time.Duration
}

// Reconciler owns one cache's lifecycle. It is the cache's only writer; the
// guard and all UI consumers are read-only.
type Reconciler struct {
	cfg  Config
	kick chan struct{}
}

// New constructs a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Location == nil {
		cfg.Location = func() string { return "" }
	}
	return &Reconciler{
		cfg: cfg,
		// Capacity one: triggers arriving while a kick is pending add
		// nothing, the pending reconcile covers them.
		kick: make(chan struct{}, 1),
	}
}

// Refresh requests an immediate reconcile, for callers that just mutated
// permissions themselves. Never blocks.
func (r *Reconciler) Refresh() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// VisibilityRegained requests a reconcile after the session's tab returned
// to the foreground; changes pushed while it was suspended are caught by
// the full re-pull. Never blocks.
func (r *Reconciler) VisibilityRegained() {
	r.Refresh()
}

// Run performs the initial load, subscribes to the change feed and services
// triggers until the context is canceled. It returns the context error on
// shutdown; refresh failures are logged and retried on the next trigger,
// never returned.
func (r *Reconciler) Run(ctx context.Context) error {
	tenantID := r.cfg.Cache.Identity().TenantID

	if _, _, err := r.refreshOnce(ctx); err != nil {
		if errors.Is(err, permcache.ErrDisposed) {
			return nil
		}
		r.logWarn("initial permission load degraded to defaults", err)
	}

	sub := r.subscribe(ctx, tenantID)
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		var events <-chan overrides.Event
		if sub != nil {
			events = sub.Events
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				// Feed lost. Refresh immediately to cover the gap; the
				// ticker drives resubscription attempts from here on.
				r.cfg.Metrics.ObserveFeedEvent("lost")
				sub.Close()
				sub = nil
				r.reconcile(ctx)
				continue
			}
			if ev.TenantID != tenantID {
				// Stale-tenant events must be discarded, not applied.
				r.cfg.Metrics.ObserveFeedEvent("discarded")
				continue
			}
			r.cfg.Metrics.ObserveFeedEvent("applied")
			r.reconcile(ctx)
		case <-r.kick:
			r.reconcile(ctx)
		case <-ticker.C:
			if sub == nil {
				if sub = r.subscribe(ctx, tenantID); sub != nil {
					// A fresh subscription cannot replay missed events;
					// the refresh below reconciles the whole window.
					r.reconcile(ctx)
					continue
				}
			}
			r.reconcile(ctx)
		}
	}
}

// reconcile refreshes the cache and, when the snapshot changed materially,
// notifies the user and re-validates the current location.
func (r *Reconciler) reconcile(ctx context.Context) {
	snap, changed, err := r.refreshOnce(ctx)
	if err != nil {
		if !errors.Is(err, permcache.ErrDisposed) {
			r.logWarn("permission refresh failed, keeping last snapshot", err)
		}
		return
	}
	if !changed {
		return
	}
	if r.cfg.Notifier != nil {
		r.cfg.Notifier.PermissionsChanged(snap)
	}
	path := r.cfg.Location()
	if path == "" || r.cfg.Guard == nil {
		return
	}
	if decision := r.cfg.Guard.CheckRoute(snap, path); !decision.Allowed {
		if r.cfg.Notifier != nil {
			r.cfg.Notifier.AccessRevoked(path, decision)
		}
	}
}

func (r *Reconciler) refreshOnce(ctx context.Context) (*permcache.Snapshot, bool, error) {
	start := time.Now()
	snap, changed, err := r.cfg.Cache.Refresh(ctx)
	if !errors.Is(err, permcache.ErrDisposed) {
		r.cfg.Metrics.ObserveRefresh(time.Since(start), err)
	}
	return snap, changed, err
}

func (r *Reconciler) subscribe(ctx context.Context, tenantID uuid.UUID) *overrides.Subscription {
	sub, err := r.cfg.Feed.Subscribe(ctx, tenantID)
	if err != nil {
		r.logWarn("change feed subscribe failed", err)
		return nil
	}
	return sub
}

func (r *Reconciler) logWarn(msg string, err error) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Warn(msg, slog.Any("error", err))
	}
}
