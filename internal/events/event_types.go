package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketDeleted       EventType = "ticket_deleted"
	EventResponseAdded       EventType = "ticket_response_added"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Title        string                `json:"title"`
	Priority     domain.TicketPriority `json:"priority"`
	ImageCount   int                   `json:"image_count"`
}

// TicketUpdatedPayload carries the effective-change set of an update.
type TicketUpdatedPayload struct {
	Applied []string `json:"applied"`
	Dropped []string `json:"dropped,omitempty"`
}

// TicketStatusChangedPayload payload. Auto marks the staff-response
// auto-transition as opposed to an explicit status update.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Auto      bool                `json:"auto,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber  string `json:"ticket_number"`
	ResponseCount int    `json:"response_count"`
	ImageCount    int    `json:"image_count"`
}

// ResponseAddedPayload payload.
type ResponseAddedPayload struct {
	ResponseID     string `json:"response_id"`
	AuthorID       string `json:"author_id"`
	AuthorIsStaff  bool   `json:"author_is_staff"`
	MessagePreview string `json:"message_preview"`
}
