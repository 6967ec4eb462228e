package domain

import "time"

// TicketAuditAction identifies what a ticket audit entry records.
type TicketAuditAction string

const (
	AuditActionCreated        TicketAuditAction = "CREATED"
	AuditActionUpdated        TicketAuditAction = "UPDATED"
	AuditActionDeleted        TicketAuditAction = "DELETED"
	AuditActionStatusAdvanced TicketAuditAction = "STATUS_ADVANCED"
)

// TicketAudit is an immutable record of a mutation's effective-change set:
// the fields that were actually applied and those that were stripped by
// field-level authorization before persistence.
type TicketAudit struct {
	ID        string
	TicketID  string
	ActorID   string
	Action    TicketAuditAction
	Applied   map[string]any
	Dropped   []string
	CreatedAt time.Time
}
