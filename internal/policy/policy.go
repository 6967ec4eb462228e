package policy

import "github.com/spec-kit/support-desk/internal/domain"

// Action enumerates the operations the evaluator can authorize.
type Action string

const (
	ActionList         Action = "list"
	ActionCreate       Action = "create"
	ActionView         Action = "view"
	ActionUpdateFields Action = "update_fields"
	ActionUpdateStatus Action = "update_status"
	ActionDelete       Action = "delete"
	ActionRespond      Action = "respond"
)

// DenyReason tells the caller how a denial should surface externally.
type DenyReason string

const (
	// DenyForbidden: the ticket is visible to the actor but the action is
	// disallowed.
	DenyForbidden DenyReason = "forbidden"
	// DenyNotFound: revealing that the ticket exists would leak information,
	// so the caller must report it as absent.
	DenyNotFound DenyReason = "not_found"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision                 { return Decision{Allowed: true} }
func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// CanSee reports whether the ticket exists from the actor's point of view.
// Non-staff actors only ever see their own tickets.
func CanSee(actor domain.Actor, ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	return actor.IsStaff || ticket.OwnerID == actor.ID
}

// Evaluate applies the authorization rules for a single (actor, ticket,
// action) triple. It is pure: no storage access, no side effects. The ticket
// may be nil only for ActionList and ActionCreate.
func Evaluate(actor domain.Actor, ticket *domain.Ticket, action Action) Decision {
	switch action {
	case ActionList, ActionCreate:
		// Any authenticated actor; list scoping is applied by the caller.
		return allow()
	case ActionView, ActionRespond:
		if CanSee(actor, ticket) {
			return allow()
		}
		return deny(DenyNotFound)
	case ActionUpdateFields:
		if !CanSee(actor, ticket) {
			return deny(DenyNotFound)
		}
		if actor.IsStaff {
			return allow()
		}
		if ticket.OwnerID == actor.ID && ticket.Status == domain.TicketStatusOpen {
			return allow()
		}
		return deny(DenyForbidden)
	case ActionUpdateStatus:
		if !CanSee(actor, ticket) {
			return deny(DenyNotFound)
		}
		if actor.IsStaff {
			return allow()
		}
		return deny(DenyForbidden)
	case ActionDelete:
		if !CanSee(actor, ticket) {
			return deny(DenyNotFound)
		}
		// Deliberately no staff override: owner self-service cleanup only,
		// and only while the ticket is still open.
		if ticket.OwnerID == actor.ID && ticket.Status == domain.TicketStatusOpen {
			return allow()
		}
		return deny(DenyForbidden)
	}
	return deny(DenyForbidden)
}

// ListScope returns the owner id the list query must be restricted to, or
// nil when the actor may see every ticket.
func ListScope(actor domain.Actor) *string {
	if actor.IsStaff {
		return nil
	}
	owner := actor.ID
	return &owner
}
