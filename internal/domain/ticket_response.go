package domain

import "time"

// TicketResponse is one entry in a ticket's append-only response thread.
// Responses are never edited or deleted individually; they go away only when
// their ticket is deleted.
type TicketResponse struct {
	ID        string
	TicketID  string
	AuthorID  string
	Message   string
	CreatedAt time.Time
}
