package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/guard"
	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/permcache"
	"github.com/vantage-erp/vantage-authz/internal/registry"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

var testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func accountsIdentity() shared.Identity {
	return shared.Identity{
		UserID:     "u-1",
		TenantID:   testTenant,
		TenantRole: registry.RoleAccounts,
	}
}

type stubFetcher struct {
	mu     sync.Mutex
	calls  int32
	result map[registry.Key]bool
	err    error
}

func (f *stubFetcher) FetchOverrides(ctx context.Context, tenantID uuid.UUID, role registry.Role) (map[registry.Key]bool, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[registry.Key]bool, len(f.result))
	for k, v := range f.result {
		out[k] = v
	}
	return out, nil
}

func (f *stubFetcher) set(result map[registry.Key]bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
	f.err = err
}

func (f *stubFetcher) fetches() int32 {
	return atomic.LoadInt32(&f.calls)
}

type fakeFeed struct {
	mu     sync.Mutex
	events chan overrides.Event
	subs   int32
	closes int32
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan overrides.Event, 4)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, tenantID uuid.UUID) (*overrides.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.subs, 1)
	return overrides.NewSubscription(f.events, func() { atomic.AddInt32(&f.closes, 1) }), nil
}

func (f *fakeFeed) Publish(ctx context.Context, tenantID uuid.UUID) error {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events <- overrides.Event{TenantID: tenantID, At: time.Now()}
	return nil
}

// dropFeed closes its event channel to simulate a lost subscription, then
// serves a fresh channel on resubscribe.
type dropFeed struct {
	fakeFeed
}

func (f *dropFeed) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.events)
	f.events = make(chan overrides.Event, 4)
}

func (f *dropFeed) Subscribe(ctx context.Context, tenantID uuid.UUID) (*overrides.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.subs, 1)
	return overrides.NewSubscription(f.events, func() { atomic.AddInt32(&f.closes, 1) }), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes int
	revoked []string
}

func (n *recordingNotifier) PermissionsChanged(snap *permcache.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes++
}

func (n *recordingNotifier) AccessRevoked(path string, decision guard.Decision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revoked = append(n.revoked, path+" -> "+decision.RedirectTo)
}

func (n *recordingNotifier) snapshot() (int, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changes, append([]string(nil), n.revoked...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	cache    *permcache.Cache
	fetcher  *stubFetcher
	notifier *recordingNotifier
	rec      *Reconciler
	cancel   context.CancelFunc
	done     chan struct{}
	path     atomic.Value
}

func startHarness(t *testing.T, feed overrides.ChangeFeed, interval time.Duration) *harness {
	t.Helper()
	h := &harness{
		fetcher:  &stubFetcher{},
		notifier: &recordingNotifier{},
		done:     make(chan struct{}),
	}
	h.path.Store("/invoices")
	h.cache = permcache.New(accountsIdentity(), h.fetcher)
	h.rec = New(Config{
		Cache:    h.cache,
		Feed:     feed,
		Guard:    guard.New(guard.DefaultRouteTable(), nil),
		Notifier: h.notifier,
		Location: func() string { return h.path.Load().(string) },
		Interval: interval,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.rec.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	waitFor(t, "initial load", func() bool { return h.cache.State() == permcache.StateReady })
	return h
}

func TestPushEventTriggersRefreshAndNotification(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, time.Hour)

	// Scenario B: an override grant appears remotely.
	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModuleCustomers, Action: registry.ActionDelete}: true,
	}, nil)
	if err := feed.Publish(context.Background(), testTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "grant to apply", func() bool {
		return h.cache.CanPerform("customers", registry.ActionDelete)
	})
	waitFor(t, "change notification", func() bool {
		changes, _ := h.notifier.snapshot()
		return changes == 1
	})
	_, revoked := h.notifier.snapshot()
	if len(revoked) != 0 {
		t.Fatalf("a pure grant must not revoke the current route: %v", revoked)
	}
}

func TestStaleTenantEventDiscarded(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, time.Hour)
	before := h.fetcher.fetches()

	otherTenant := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	if err := feed.Publish(context.Background(), otherTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := h.fetcher.fetches(); got != before {
		t.Fatalf("stale-tenant event must not trigger a fetch, got %d extra", got-before)
	}
}

func TestRevocationRedirectsCurrentLocation(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, time.Hour)
	h.path.Store("/invoices")

	// Scenario C: invoices.view revoked while the user is on /invoices.
	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModuleInvoices, Action: registry.ActionView}: false,
	}, nil)
	if err := feed.Publish(context.Background(), testTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "revocation redirect", func() bool {
		_, revoked := h.notifier.snapshot()
		return len(revoked) == 1 && revoked[0] == "/invoices -> /"
	})
}

func TestFetchFailureKeepsSnapshotAndStaysQuiet(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, time.Hour)

	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModuleCustomers, Action: registry.ActionDelete}: true,
	}, nil)
	feedCtx := context.Background()
	if err := feed.Publish(feedCtx, testTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "grant to apply", func() bool {
		return h.cache.CanPerform("customers", registry.ActionDelete)
	})
	changesBefore, _ := h.notifier.snapshot()

	h.fetcher.set(nil, errors.New("remote down"))
	before := h.fetcher.fetches()
	if err := feed.Publish(feedCtx, testTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "failed refresh attempt", func() bool { return h.fetcher.fetches() > before })

	if !h.cache.CanPerform("customers", registry.ActionDelete) {
		t.Fatalf("failed refresh must keep the last known good snapshot")
	}
	changesAfter, revoked := h.notifier.snapshot()
	if changesAfter != changesBefore || len(revoked) != 0 {
		t.Fatalf("failed refresh must not notify or revoke")
	}
}

func TestManualRefreshCoalescesAndReconciles(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, time.Hour)
	before := h.fetcher.fetches()

	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModulePayroll, Action: registry.ActionExport}: false,
	}, nil)
	h.rec.Refresh()
	h.rec.VisibilityRegained()

	waitFor(t, "manual refresh", func() bool { return h.fetcher.fetches() > before })
	waitFor(t, "change notification", func() bool {
		changes, _ := h.notifier.snapshot()
		return changes >= 1
	})
}

func TestLostFeedRefreshesAndResubscribes(t *testing.T) {
	feed := &dropFeed{fakeFeed: fakeFeed{events: make(chan overrides.Event, 4)}}
	h := startHarness(t, feed, 25*time.Millisecond)

	// Scenario D: the change happens while the feed is down.
	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModuleCustomers, Action: registry.ActionDelete}: true,
	}, nil)
	feed.drop()

	waitFor(t, "gap-covering refresh", func() bool {
		return h.cache.CanPerform("customers", registry.ActionDelete)
	})
	waitFor(t, "resubscription", func() bool {
		return atomic.LoadInt32(&feed.subs) >= 2
	})
	// The dead subscription must have released its handle.
	waitFor(t, "dead subscription close", func() bool {
		return atomic.LoadInt32(&feed.closes) >= 1
	})

	// The re-established feed must deliver again.
	h.fetcher.set(map[registry.Key]bool{
		{Module: registry.ModuleCustomers, Action: registry.ActionDelete}: true,
		{Module: registry.ModuleCustomers, Action: registry.ActionBulk}:   true,
	}, nil)
	if err := feed.Publish(context.Background(), testTenant); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "post-resubscribe delivery", func() bool {
		return h.cache.CanPerform("customers", registry.ActionBulk)
	})
}

func TestPeriodicRefreshWithoutChangeStaysQuiet(t *testing.T) {
	feed := newFakeFeed()
	h := startHarness(t, feed, 20*time.Millisecond)
	before := h.fetcher.fetches()

	waitFor(t, "periodic refreshes", func() bool { return h.fetcher.fetches() >= before+2 })
	changes, revoked := h.notifier.snapshot()
	if changes != 0 || len(revoked) != 0 {
		t.Fatalf("identical refreshes must not notify (changes=%d revoked=%v)", changes, revoked)
	}
}
