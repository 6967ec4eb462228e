package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ResponseRepository is the append-only response ledger. There is no update
// or delete: responses only disappear when their ticket is deleted, via the
// cascade constraint.
type ResponseRepository interface {
	Append(ctx context.Context, response *domain.TicketResponse) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketResponse, error)
}

type responseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository builds repository.
func NewResponseRepository(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepository{pool: pool}
}

func (r *responseRepository) Append(ctx context.Context, response *domain.TicketResponse) error {
	const query = `
        INSERT INTO ticket_responses (ticket_id, author_id, message)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return querierFromCtx(ctx, r.pool).QueryRow(ctx, query,
		response.TicketID,
		response.AuthorID,
		response.Message,
	).Scan(&response.ID, &response.CreatedAt)
}

// ListByTicket returns responses in chronological order; the serial seq
// column breaks created_at ties by insertion order.
func (r *responseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketResponse, error) {
	const query = `
        SELECT id, ticket_id, author_id, message, created_at
        FROM ticket_responses WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := querierFromCtx(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketResponse
	for rows.Next() {
		var response domain.TicketResponse
		if err := rows.Scan(
			&response.ID,
			&response.TicketID,
			&response.AuthorID,
			&response.Message,
			&response.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, rows.Err()
}
