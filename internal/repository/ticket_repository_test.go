package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "created_at DESC"},
		{"created_at", "created_at ASC"},
		{"-created_at", "created_at DESC"},
		{"updated_at", "updated_at ASC"},
		{"-updated_at", "updated_at DESC"},
		{"status", "status ASC"},
		{"owner_id", "created_at DESC"}, // not orderable
		{"id; DROP TABLE", "created_at DESC"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, orderClause(tc.in), "orderBy=%q", tc.in)
	}
}

func TestFilterClauses(t *testing.T) {
	owner := "user-1"
	status := "Open"
	search := "Login"

	clauses, args := filterClauses(TicketFilter{OwnerID: &owner, Status: &status, Search: &search})

	assert.Len(t, args, 3)
	assert.Equal(t, "user-1", args[0])
	assert.Equal(t, "open", args[1], "status matches case-insensitively")
	assert.Equal(t, "%login%", args[2])
	assert.Contains(t, clauses, "owner_id=$1")
	assert.Contains(t, clauses, "LOWER(status)=$2")
	assert.Contains(t, clauses,
		"(LOWER(title) LIKE $3 OR LOWER(description) LIKE $3 OR LOWER(ticket_number) LIKE $3)")
}

func TestFilterClausesIgnoresBlankValues(t *testing.T) {
	blank := "  "
	clauses, args := filterClauses(TicketFilter{Status: &blank, Priority: &blank, Search: &blank})
	assert.Equal(t, []string{"1=1"}, clauses)
	assert.Empty(t, args)
}
