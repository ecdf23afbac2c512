package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// staleStore is the slice of the override repository the sweeps need.
type staleStore interface {
	ListStaleKeys(ctx context.Context) ([]overrides.StaleKey, error)
	RewriteKey(ctx context.Context, tenantID uuid.UUID, role registry.Role, from string, to registry.Key) error
	DeleteKeyRaw(ctx context.Context, tenantID uuid.UUID, role registry.Role, rawKey string) error
}

// MaintenanceJob keeps the override store aligned with the registry. Stored
// keys drift when module aliases change between releases: alias-form keys are
// rewritten to canonical form, keys that no longer resolve at all are pruned.
// Touched tenants get a change signal so live sessions re-pull.
type MaintenanceJob struct {
	Store  staleStore
	Feed   overrides.ChangeFeed
	Logger *slog.Logger
}

// NewMaintenanceJob initialises the maintenance handlers.
func NewMaintenanceJob(store staleStore, feed overrides.ChangeFeed, logger *slog.Logger) *MaintenanceJob {
	return &MaintenanceJob{Store: store, Feed: feed, Logger: logger}
}

// HandleCanonicalizeSweep rewrites alias-form override keys.
func (j *MaintenanceJob) HandleCanonicalizeSweep(ctx context.Context, t *asynq.Task) error {
	var payload MaintenancePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	stale, err := j.Store.ListStaleKeys(ctx)
	if err != nil {
		j.logError("canonicalize sweep: list", err)
		return err
	}

	touched := make(map[uuid.UUID]struct{})
	rewritten := 0
	for _, entry := range stale {
		if !entry.Parses {
			continue
		}
		if err := j.Store.RewriteKey(ctx, entry.TenantID, entry.Role, entry.RawKey, entry.Canonical); err != nil {
			j.logError("canonicalize sweep: rewrite", err)
			return err
		}
		touched[entry.TenantID] = struct{}{}
		rewritten++
	}
	j.notify(ctx, touched)

	if j.Logger != nil {
		j.Logger.Info("canonicalize sweep finished",
			slog.String("job", TaskCanonicalizeSweep),
			slog.Int("rewritten", rewritten),
			slog.Int("tenants", len(touched)))
	}
	return nil
}

// HandlePruneUnknown removes override rows whose key no longer parses.
func (j *MaintenanceJob) HandlePruneUnknown(ctx context.Context, t *asynq.Task) error {
	var payload MaintenancePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	stale, err := j.Store.ListStaleKeys(ctx)
	if err != nil {
		j.logError("prune unknown: list", err)
		return err
	}

	touched := make(map[uuid.UUID]struct{})
	pruned := 0
	for _, entry := range stale {
		if entry.Parses {
			continue
		}
		if err := j.Store.DeleteKeyRaw(ctx, entry.TenantID, entry.Role, entry.RawKey); err != nil {
			j.logError("prune unknown: delete", err)
			return err
		}
		touched[entry.TenantID] = struct{}{}
		pruned++
	}
	j.notify(ctx, touched)

	if j.Logger != nil {
		j.Logger.Info("prune unknown finished",
			slog.String("job", TaskPruneUnknown),
			slog.Int("pruned", pruned),
			slog.Int("tenants", len(touched)))
	}
	return nil
}

func (j *MaintenanceJob) notify(ctx context.Context, tenants map[uuid.UUID]struct{}) {
	if j.Feed == nil {
		return
	}
	for tenantID := range tenants {
		if err := j.Feed.Publish(ctx, tenantID); err != nil {
			// The periodic refresh covers sessions the signal did not reach.
			j.logError("maintenance publish", err)
		}
	}
}

func (j *MaintenanceJob) logError(msg string, err error) {
	if j.Logger != nil {
		j.Logger.Error(msg, slog.Any("error", err))
	}
}
