package api

import (
	"context"
	"strings"
)

// Principal is the authenticated caller. Patients carry a UserID from their
// bearer token; staff integrations carry the API client name and its permissions.
type Principal struct {
	UserID      int64
	Client      string
	Permissions []string
}

func (p Principal) IsClient() bool { return p.Client != "" }

// Allows reports whether the principal may use an operation guarded by perm.
func (p Principal) Allows(perm string) bool {
	if perm == "" {
		return true
	}
	if !p.IsClient() {
		return patientPermissions[perm]
	}
	// An API key without a permission list is allowed everything.
	if len(p.Permissions) == 0 {
		return true
	}
	for _, granted := range p.Permissions {
		if strings.TrimSpace(granted) == perm {
			return true
		}
	}
	return false
}

const (
	permReadCatalog        = "read:catalog"
	permReadAvailability   = "read:availability"
	permBook               = "write:bookings"
	permManageAppointments = "manage:appointments"
	permReadAgenda         = "read:agenda"
)

var patientPermissions = map[string]bool{
	permReadCatalog:      true,
	permReadAvailability: true,
	permBook:             true,
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
