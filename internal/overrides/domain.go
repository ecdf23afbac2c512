// Package overrides reads and writes per-tenant permission overrides and
// publishes change notifications on a tenant-scoped feed.
package overrides

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// ErrNotFound indicates the requested override row does not exist.
var ErrNotFound = errors.New("overrides: not found")

// Record is one explicit allow/deny override persisted for a tenant and
// role. The remote store owns it; this service caches it with a freshness
// window.
type Record struct {
	TenantID  uuid.UUID
	Role      registry.Role
	Key       registry.Key
	Enabled   bool
	UpdatedAt time.Time
}

// FetchError wraps a remote failure while reading overrides. Callers must
// treat it as "no overrides available", never as a denial.
type FetchError struct {
	TenantID uuid.UUID
	Role     registry.Role
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("overrides: fetch tenant=%s role=%s: %v", e.TenantID, e.Role, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
