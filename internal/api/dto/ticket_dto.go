package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload (JSON variant; multipart carries the same
// fields plus files).
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest payload; nil fields were absent from the request.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
	Status      *domain.TicketStatus   `json:"status"`
}

// RespondRequest payload.
type RespondRequest struct {
	Message string `json:"message"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	OwnerID      string                `json:"owner_id"`
	Title        string                `json:"title"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with nested responses and
// images.
type TicketDetailResponse struct {
	TicketSummary
	Description string                `json:"description"`
	Responses   []TicketResponseBody  `json:"responses"`
	Images      []TicketImageResponse `json:"images"`
}

// TicketResponseBody represents one thread entry.
type TicketResponseBody struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketImageResponse metadata.
type TicketImageResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`
	StorageRef  string `json:"storage_ref"`
}

// TicketPage wraps a listing with its total count.
type TicketPage struct {
	Items  []TicketSummary `json:"items"`
	Count  int64           `json:"count"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// UpdateTicketResponse reports the updated ticket and the effective-change
// set, including fields stripped by field-level authorization.
type UpdateTicketResponse struct {
	Ticket  TicketSummary `json:"ticket"`
	Applied []string      `json:"applied"`
	Dropped []string      `json:"dropped,omitempty"`
}

// AuditEntryResponse is one immutable change-trail entry.
type AuditEntryResponse struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Applied   map[string]any `json:"applied"`
	Dropped   []string       `json:"dropped,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
