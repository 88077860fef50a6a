// Package policy decides whether an actor may perform an action on a
// resource. All rules live in one table; handlers load the resource first
// (so a missing resource is NotFound, never Forbidden) and then ask here.
package policy

import (
	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/users"
)

type Action string

const (
	UserView   Action = "user:view"
	UserUpdate Action = "user:update"
	UserDelete Action = "user:delete"
	UserList   Action = "user:list"
	UserRole   Action = "user:change_role"

	CategoryCreate Action = "category:create"
	CategoryUpdate Action = "category:update"
	CategoryDelete Action = "category:delete"

	ProductCreate Action = "product:create"
	ProductUpdate Action = "product:update"
	ProductDelete Action = "product:delete"

	CartAdd    Action = "cart:add"
	CartView   Action = "cart:view"
	CartUpdate Action = "cart:update"
	CartRemove Action = "cart:remove"

	OrderPlace        Action = "order:place"
	OrderView         Action = "order:view"
	OrderListByUser   Action = "order:list_by_user"
	OrderListAll      Action = "order:list_all"
	OrderCancel       Action = "order:cancel"
	OrderUpdateStatus Action = "order:update_status"

	PaymentCreate Action = "payment:create"
	PaymentView   Action = "payment:view"
	PaymentVoid   Action = "payment:void"

	ReviewCreate Action = "review:create"
	ReviewUpdate Action = "review:update"
	ReviewDelete Action = "review:delete"

	AnalyticsView Action = "analytics:view"
	ContactList   Action = "contact:list"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == users.RoleAdmin }

// Resource describes what the action targets. OwnerID is empty for
// resources that have no owner.
type Resource struct {
	OwnerID string
}

// Owned is shorthand for a Resource owned by ownerID.
func Owned(ownerID string) Resource { return Resource{OwnerID: ownerID} }

type rule struct {
	roles []string
	// owner requires actor.UserID == resource.OwnerID.
	owner bool
	// adminOverride lets an admin pass the owner check.
	adminOverride bool
}

var (
	adminOnly     = rule{roles: []string{users.RoleAdmin}}
	customerOnly  = rule{roles: []string{users.RoleCustomer}}
	customerOwner = rule{roles: []string{users.RoleCustomer}, owner: true}
	ownerOrAdmin  = rule{roles: []string{users.RoleCustomer, users.RoleAdmin}, owner: true, adminOverride: true}
	ownerStrict   = rule{roles: []string{users.RoleCustomer, users.RoleAdmin}, owner: true}
)

var rules = map[Action]rule{
	UserView:   ownerOrAdmin,
	UserUpdate: ownerOrAdmin,
	UserDelete: ownerOrAdmin,
	UserList:   adminOnly,
	UserRole:   adminOnly,

	CategoryCreate: adminOnly,
	CategoryUpdate: adminOnly,
	CategoryDelete: adminOnly,

	ProductCreate: adminOnly,
	ProductUpdate: adminOnly,
	ProductDelete: adminOnly,

	CartAdd:    customerOnly,
	CartView:   customerOnly,
	CartUpdate: customerOnly,
	CartRemove: customerOnly,

	OrderPlace:        customerOnly,
	OrderView:         ownerOrAdmin,
	OrderListByUser:   ownerOrAdmin,
	OrderListAll:      adminOnly,
	OrderCancel:       ownerOrAdmin,
	OrderUpdateStatus: adminOnly,

	PaymentCreate: customerOwner,
	PaymentView:   ownerOrAdmin,
	PaymentVoid:   ownerOrAdmin,

	ReviewCreate: customerOnly,
	ReviewUpdate: ownerStrict,
	ReviewDelete: ownerStrict,

	AnalyticsView: adminOnly,
	ContactList:   adminOnly,
}

// Authorize returns nil when the rule for action admits actor on res, and a
// Forbidden error otherwise. Unknown actions are denied.
func Authorize(actor Actor, action Action, res Resource) error {
	r, ok := rules[action]
	if !ok {
		return apperr.Forbidden("action not permitted")
	}
	if !hasRole(r.roles, actor.Role) {
		return apperr.Forbidden("role " + actor.Role + " may not perform " + string(action))
	}
	if !r.owner {
		return nil
	}
	if r.adminOverride && actor.IsAdmin() {
		return nil
	}
	if actor.UserID == "" || actor.UserID != res.OwnerID {
		return apperr.Forbidden("not the owner of this resource")
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
