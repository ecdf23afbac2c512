package overrides

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-authz/internal/platform/db"
	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// Repository provides PostgreSQL backed persistence for override records.
//
// Schema (scripts/schema.sql):
//
//	CREATE TABLE permission_overrides (
//	    tenant_id      uuid        NOT NULL,
//	    role           text        NOT NULL,
//	    permission_key text        NOT NULL,
//	    is_enabled     boolean     NOT NULL,
//	    updated_at     timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (tenant_id, role, permission_key)
//	);
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchOverrides returns the override map for a tenant and role, keyed by
// canonicalized permission key. Rows whose key does not parse are skipped:
// a malformed row must never poison the whole map. Failures are wrapped in
// *FetchError so callers can degrade to defaults.
func (r *Repository) FetchOverrides(ctx context.Context, tenantID uuid.UUID, role registry.Role) (map[registry.Key]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_key, is_enabled FROM permission_overrides WHERE tenant_id = $1 AND role = $2`,
		tenantID, string(role))
	if err != nil {
		return nil, &FetchError{TenantID: tenantID, Role: role, Err: err}
	}
	defer rows.Close()

	overrides := make(map[registry.Key]bool)
	for rows.Next() {
		var rawKey string
		var enabled bool
		if err := rows.Scan(&rawKey, &enabled); err != nil {
			return nil, &FetchError{TenantID: tenantID, Role: role, Err: err}
		}
		key, ok := registry.ParseKey(rawKey)
		if !ok {
			continue
		}
		overrides[key] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, &FetchError{TenantID: tenantID, Role: role, Err: err}
	}
	return overrides, nil
}

// List returns all override records for a tenant and role ordered by key.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, role registry.Role) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_key, is_enabled, updated_at FROM permission_overrides
		 WHERE tenant_id = $1 AND role = $2 ORDER BY permission_key`,
		tenantID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{TenantID: tenantID, Role: role}
		var rawKey string
		if err := rows.Scan(&rawKey, &rec.Enabled, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		key, ok := registry.ParseKey(rawKey)
		if !ok {
			continue
		}
		rec.Key = key
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert writes an override record, replacing any previous value for the
// same key. Keys are stored in canonical form.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_overrides (tenant_id, role, permission_key, is_enabled, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (tenant_id, role, permission_key)
		 DO UPDATE SET is_enabled = EXCLUDED.is_enabled, updated_at = now()`,
		rec.TenantID, string(rec.Role), rec.Key.String(), rec.Enabled)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("overrides: rejected by store constraint %s: %w", pgErr.ConstraintName, err)
		}
		return err
	}
	return nil
}

// Delete resets a key back to its default by removing the override row.
func (r *Repository) Delete(ctx context.Context, tenantID uuid.UUID, role registry.Role, key registry.Key) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE tenant_id = $1 AND role = $2 AND permission_key = $3`,
		tenantID, string(role), key.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StaleKey describes a stored override row that needs maintenance: its key
// is either an alias form of a canonical key, or it no longer parses against
// the registry at all.
type StaleKey struct {
	TenantID  uuid.UUID
	Role      registry.Role
	RawKey    string
	Canonical registry.Key
	Parses    bool
}

// ListStaleKeys returns rows whose stored key is not already in canonical
// form, or whose module is unknown to the registry. The maintenance sweep
// rewrites the former and prunes the latter.
func (r *Repository) ListStaleKeys(ctx context.Context) ([]StaleKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, role, permission_key FROM permission_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []StaleKey
	for rows.Next() {
		var entry StaleKey
		var roleRaw string
		if err := rows.Scan(&entry.TenantID, &roleRaw, &entry.RawKey); err != nil {
			return nil, err
		}
		entry.Role = registry.Role(roleRaw)
		key, ok := registry.ParseKey(entry.RawKey)
		if ok && key.String() == entry.RawKey && registry.KnownModule(key.Module) {
			continue
		}
		entry.Canonical = key
		entry.Parses = ok && registry.KnownModule(key.Module)
		stale = append(stale, entry)
	}
	return stale, rows.Err()
}

// RewriteKey replaces a stored key with its canonical form, transactionally.
// When the canonical row already exists the stale row simply goes away; the
// existing canonical value wins.
func (r *Repository) RewriteKey(ctx context.Context, tenantID uuid.UUID, role registry.Role, from string, to registry.Key) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO permission_overrides (tenant_id, role, permission_key, is_enabled, updated_at)
			 SELECT tenant_id, role, $4, is_enabled, updated_at FROM permission_overrides
			 WHERE tenant_id = $1 AND role = $2 AND permission_key = $3
			 ON CONFLICT (tenant_id, role, permission_key) DO NOTHING`,
			tenantID, string(role), from, to.String())
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM permission_overrides WHERE tenant_id = $1 AND role = $2 AND permission_key = $3`,
			tenantID, string(role), from)
		return err
	})
}

// DeleteKeyRaw removes a row by its stored (possibly non-canonical) key.
func (r *Repository) DeleteKeyRaw(ctx context.Context, tenantID uuid.UUID, role registry.Role, rawKey string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE tenant_id = $1 AND role = $2 AND permission_key = $3`,
		tenantID, string(role), rawKey)
	return err
}
