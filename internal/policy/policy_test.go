package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

var (
	owner    = domain.Actor{ID: "user-1"}
	stranger = domain.Actor{ID: "user-2"}
	staff    = domain.Actor{ID: "staff-1", IsStaff: true}
)

func ticketWithStatus(status domain.TicketStatus) *domain.Ticket {
	return &domain.Ticket{ID: "t-1", OwnerID: owner.ID, Status: status}
}

func TestEvaluate(t *testing.T) {
	open := ticketWithStatus(domain.TicketStatusOpen)
	inProgress := ticketWithStatus(domain.TicketStatusInProgress)
	closed := ticketWithStatus(domain.TicketStatusClosed)

	tests := []struct {
		name    string
		actor   domain.Actor
		ticket  *domain.Ticket
		action  Action
		allowed bool
		reason  DenyReason
	}{
		{"anyone may list", stranger, nil, ActionList, true, ""},
		{"anyone may create", stranger, nil, ActionCreate, true, ""},

		{"owner may view", owner, open, ActionView, true, ""},
		{"staff may view", staff, open, ActionView, true, ""},
		{"stranger view hides existence", stranger, open, ActionView, false, DenyNotFound},

		{"owner may respond", owner, closed, ActionRespond, true, ""},
		{"staff may respond", staff, closed, ActionRespond, true, ""},
		{"stranger respond hides existence", stranger, open, ActionRespond, false, DenyNotFound},

		{"owner may edit open ticket", owner, open, ActionUpdateFields, true, ""},
		{"owner may not edit in_progress ticket", owner, inProgress, ActionUpdateFields, false, DenyForbidden},
		{"owner may not edit closed ticket", owner, closed, ActionUpdateFields, false, DenyForbidden},
		{"staff may edit any ticket", staff, closed, ActionUpdateFields, true, ""},
		{"stranger edit hides existence", stranger, open, ActionUpdateFields, false, DenyNotFound},

		{"only staff may change status", staff, open, ActionUpdateStatus, true, ""},
		{"owner may not change status", owner, open, ActionUpdateStatus, false, DenyForbidden},

		{"owner may delete open ticket", owner, open, ActionDelete, true, ""},
		{"owner may not delete in_progress ticket", owner, inProgress, ActionDelete, false, DenyForbidden},
		{"owner may not delete closed ticket", owner, closed, ActionDelete, false, DenyForbidden},
		{"staff has no delete override", staff, open, ActionDelete, false, DenyForbidden},
		{"stranger delete hides existence", stranger, open, ActionDelete, false, DenyNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(tc.actor, tc.ticket, tc.action)
			assert.Equal(t, tc.allowed, decision.Allowed)
			if !tc.allowed {
				assert.Equal(t, tc.reason, decision.Reason)
			}
		})
	}
}

func TestListScope(t *testing.T) {
	assert.Nil(t, ListScope(staff))

	scope := ListScope(owner)
	if assert.NotNil(t, scope) {
		assert.Equal(t, owner.ID, *scope)
	}
}

func TestCanSeeNilTicket(t *testing.T) {
	assert.False(t, CanSee(staff, nil))
}
