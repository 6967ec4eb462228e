package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// AuditRepository records each mutation's effective-change set: the fields
// that were actually applied and the fields stripped by field-level
// authorization. Entries are immutable.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.TicketAudit) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketAudit, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.TicketAudit) error {
	applied, err := json.Marshal(entry.Applied)
	if err != nil {
		return err
	}
	dropped, err := json.Marshal(entry.Dropped)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_audit (ticket_id, actor_id, action, applied, dropped)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return querierFromCtx(ctx, r.pool).QueryRow(ctx, query,
		entry.TicketID,
		entry.ActorID,
		entry.Action,
		applied,
		dropped,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, actor_id, action, applied, dropped, created_at
        FROM ticket_audit WHERE ticket_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := querierFromCtx(ctx, r.pool).Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAudit
	for rows.Next() {
		var entry domain.TicketAudit
		var applied, dropped []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Action,
			&applied,
			&dropped,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(applied, &entry.Applied); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(dropped, &entry.Dropped); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
