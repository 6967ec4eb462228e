package domain

import "time"

// TicketImage stores metadata for an image attached at ticket creation.
// StorageRef is an opaque pointer into the blob store; Position preserves
// the order the files were submitted in.
type TicketImage struct {
	ID          string
	TicketID    string
	StorageRef  string
	FileName    string
	ContentType string
	ByteSize    int64
	Position    int
	CreatedAt   time.Time
}
