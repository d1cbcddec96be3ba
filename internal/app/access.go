package app

import (
	"fmt"

	"eduquiz-ledger/internal/domain"
)

// accessControl is the role table plus the single administrator identity.
// It is not safe for concurrent use on its own; the owning Ledger serializes
// access.
type accessControl struct {
	admin   domain.Address
	members map[roleGrant]struct{}
}

type roleGrant struct {
	role    domain.Role
	account domain.Address
}

func newAccessControl(admin domain.Address) *accessControl {
	return &accessControl{
		admin:   admin,
		members: make(map[roleGrant]struct{}),
	}
}

func (a *accessControl) isAdmin(caller domain.Address) bool {
	return caller != "" && caller == a.admin
}

func (a *accessControl) requireAdmin(caller domain.Address) error {
	if !a.isAdmin(caller) {
		return fmt.Errorf("%w: administrator only", domain.ErrUnauthorized)
	}
	return nil
}

func (a *accessControl) requireRole(caller domain.Address, role domain.Role) error {
	if !a.has(role, caller) {
		return fmt.Errorf("%w: requires role %s", domain.ErrUnauthorized, role.Label())
	}
	return nil
}

func (a *accessControl) has(role domain.Role, account domain.Address) bool {
	_, ok := a.members[roleGrant{role, account}]
	return ok
}

// grant adds the membership and reports whether it changed anything.
// Granting an already-held role is a no-op on the table but callers still
// emit the event.
func (a *accessControl) grant(role domain.Role, account domain.Address) bool {
	key := roleGrant{role, account}
	if _, ok := a.members[key]; ok {
		return false
	}
	a.members[key] = struct{}{}
	return true
}

func (a *accessControl) revoke(role domain.Role, account domain.Address) bool {
	key := roleGrant{role, account}
	if _, ok := a.members[key]; !ok {
		return false
	}
	delete(a.members, key)
	return true
}
