package rbac

import (
	"errors"
	"strings"
)

// Role is the closed set of caller roles the auth gateway may forward.
type Role string

const (
	// RoleDepartment submits requisitions for its own department.
	RoleDepartment Role = "department"
	// RoleStoreManager reviews the first approval stage and manages the catalog.
	RoleStoreManager Role = "storemanager"
	// RoleRegistrar gives final sign-off and triggers fulfillment.
	RoleRegistrar Role = "registrar"
	// RoleAdmin holds every capability.
	RoleAdmin Role = "admin"
)

// ErrUnknownRole indicates a role outside the closed enumeration.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ParseRole normalises and validates a forwarded role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleDepartment:
		return RoleDepartment, nil
	case RoleStoreManager:
		return RoleStoreManager, nil
	case RoleRegistrar:
		return RoleRegistrar, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// Capability is an atomic permission checked at the HTTP boundary.
type Capability string

const (
	CapOrdersCreate          Capability = "orders.create"
	CapOrdersView            Capability = "orders.view"
	CapOrdersManagerReview   Capability = "orders.manager_review"
	CapOrdersRegistrarReview Capability = "orders.registrar_review"
	CapCatalogView           Capability = "catalog.view"
	CapCatalogManage         Capability = "catalog.manage"
	CapLedgerView            Capability = "ledger.view"
)

var roleCapabilities = map[Role]map[Capability]struct{}{
	RoleDepartment: capSet(
		CapOrdersCreate,
		CapOrdersView,
		CapCatalogView,
	),
	RoleStoreManager: capSet(
		CapOrdersView,
		CapOrdersManagerReview,
		CapCatalogView,
		CapCatalogManage,
		CapLedgerView,
	),
	RoleRegistrar: capSet(
		CapOrdersView,
		CapOrdersRegistrarReview,
		CapCatalogView,
		CapLedgerView,
	),
}

func capSet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the role holds the capability. Admin holds all.
func (r Role) Can(cap Capability) bool {
	if r == RoleAdmin {
		return true
	}
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, granted := caps[cap]
	return granted
}

// Capabilities returns the capability list granted to the role.
func (r Role) Capabilities() []Capability {
	if r == RoleAdmin {
		return []Capability{
			CapOrdersCreate,
			CapOrdersView,
			CapOrdersManagerReview,
			CapOrdersRegistrarReview,
			CapCatalogView,
			CapCatalogManage,
			CapLedgerView,
		}
	}
	caps := make([]Capability, 0, len(roleCapabilities[r]))
	for c := range roleCapabilities[r] {
		caps = append(caps, c)
	}
	return caps
}
