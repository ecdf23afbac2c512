package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/registry"
)

type fakeStaleStore struct {
	stale    []overrides.StaleKey
	rewrites []string
	deletes  []string
}

func (f *fakeStaleStore) ListStaleKeys(ctx context.Context) ([]overrides.StaleKey, error) {
	return f.stale, nil
}

func (f *fakeStaleStore) RewriteKey(ctx context.Context, tenantID uuid.UUID, role registry.Role, from string, to registry.Key) error {
	f.rewrites = append(f.rewrites, from+"=>"+to.String())
	return nil
}

func (f *fakeStaleStore) DeleteKeyRaw(ctx context.Context, tenantID uuid.UUID, role registry.Role, rawKey string) error {
	f.deletes = append(f.deletes, rawKey)
	return nil
}

type fakePublisher struct {
	published []uuid.UUID
}

func (f *fakePublisher) Subscribe(ctx context.Context, tenantID uuid.UUID) (*overrides.Subscription, error) {
	events := make(chan overrides.Event)
	return overrides.NewSubscription(events, func() { close(events) }), nil
}

func (f *fakePublisher) Publish(ctx context.Context, tenantID uuid.UUID) error {
	f.published = append(f.published, tenantID)
	return nil
}

func maintenanceTask(t *testing.T, taskType string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: time.Now().UTC()})
	require.NoError(t, err)
	return asynq.NewTask(taskType, body)
}

func TestCanonicalizeSweepRewritesAliasKeys(t *testing.T) {
	tenant := uuid.New()
	store := &fakeStaleStore{stale: []overrides.StaleKey{
		{
			TenantID:  tenant,
			Role:      registry.RoleSales,
			RawKey:    "clients.view",
			Canonical: registry.Key{Module: registry.ModuleCustomers, Action: registry.ActionView},
			Parses:    true,
		},
		{
			TenantID: tenant,
			Role:     registry.RoleSales,
			RawKey:   "garbage",
			Parses:   false,
		},
	}}
	feed := &fakePublisher{}
	job := NewMaintenanceJob(store, feed, nil)

	err := job.HandleCanonicalizeSweep(context.Background(), maintenanceTask(t, TaskCanonicalizeSweep))
	require.NoError(t, err)
	require.Equal(t, []string{"clients.view=>customers.view"}, store.rewrites)
	require.Empty(t, store.deletes)
	require.Equal(t, []uuid.UUID{tenant}, feed.published)
}

func TestPruneUnknownDeletesDeadRows(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	store := &fakeStaleStore{stale: []overrides.StaleKey{
		{TenantID: tenantA, Role: registry.RoleSales, RawKey: "timetravel.view", Parses: false},
		{TenantID: tenantA, Role: registry.RoleManager, RawKey: "nonsense", Parses: false},
		{
			TenantID:  tenantB,
			Role:      registry.RoleSales,
			RawKey:    "clients.view",
			Canonical: registry.Key{Module: registry.ModuleCustomers, Action: registry.ActionView},
			Parses:    true,
		},
	}}
	feed := &fakePublisher{}
	job := NewMaintenanceJob(store, feed, nil)

	err := job.HandlePruneUnknown(context.Background(), maintenanceTask(t, TaskPruneUnknown))
	require.NoError(t, err)
	require.Equal(t, []string{"timetravel.view", "nonsense"}, store.deletes)
	require.Empty(t, store.rewrites)
	// One signal per touched tenant, and only for touched tenants.
	require.Equal(t, []uuid.UUID{tenantA}, feed.published)
}

func TestSweepRejectsMalformedPayload(t *testing.T) {
	job := NewMaintenanceJob(&fakeStaleStore{}, &fakePublisher{}, nil)
	err := job.HandleCanonicalizeSweep(context.Background(), asynq.NewTask(TaskCanonicalizeSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
