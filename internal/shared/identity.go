package shared

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vantage-erp/vantage-authz/internal/registry"
)

// Identity is the effective identity an authorization session is built from.
// It is computed once at session bootstrap; bypass flags are never re-read
// from side channels after that.
type Identity struct {
	UserID        string
	TenantID      uuid.UUID
	TenantRole    registry.Role
	PlatformRole  registry.PlatformRole
	Impersonating bool
}

// Bypass reports whether the identity short-circuits every permission check.
// Platform admins bypass tenant boundaries, including while impersonating a
// tenant seat.
func (id Identity) Bypass() bool {
	return id.PlatformRole == registry.PlatformAdmin
}

// Valid reports whether the identity can anchor an authorization session.
func (id Identity) Valid() bool {
	if id.UserID == "" || id.TenantID == uuid.Nil {
		return false
	}
	return registry.ValidRole(id.TenantRole) || id.Bypass()
}

func identityFromPayload(p sessionPayload) (Identity, bool) {
	if p.UserID == "" {
		return Identity{}, false
	}
	ident := Identity{
		UserID:        p.UserID,
		Impersonating: p.Impersonating,
	}
	if tid, err := uuid.Parse(p.TenantID); err == nil {
		ident.TenantID = tid
	}
	if role, ok := registry.ParseRole(p.TenantRole); ok {
		ident.TenantRole = role
	}
	if strings.EqualFold(p.PlatformRole, string(registry.PlatformAdmin)) {
		ident.PlatformRole = registry.PlatformAdmin
	}
	if !ident.Valid() {
		return Identity{}, false
	}
	return ident, true
}

// IdentityFromContext extracts the identity from the request session.
func IdentityFromContext(ctxSession *Session) (Identity, bool) {
	if ctxSession == nil {
		return Identity{}, false
	}
	return ctxSession.Identity()
}
