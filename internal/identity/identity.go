package identity

import "errors"

// Permissions understood by the marketplace core. The core never checks
// credentials itself; it consumes a resolved principal from a collaborator.
const (
	PermAdmin           = "admin"
	PermOrderEdit       = "order:edit"
	PermMarketplaceEdit = "marketplace:edit"
)

var ErrAccessDenied = errors.New("access denied")

// Principal is the resolved caller: account id plus permission set
type Principal struct {
	AccountID   string
	Permissions []string
}

// Has reports whether the principal carries the given permission.
// Admins implicitly hold every permission.
func (p Principal) Has(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission || perm == PermAdmin {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal has the admin permission
func (p Principal) IsAdmin() bool {
	return p.Has(PermAdmin)
}

// Authenticated reports whether the principal belongs to a known account
func (p Principal) Authenticated() bool {
	return p.AccountID != ""
}
