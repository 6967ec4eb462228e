package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketFilter captures listing parameters. OwnerID restricts the result to
// one owner's tickets; Status and Priority match case-insensitively; Search
// matches title, description, or ticket number by substring.
type TicketFilter struct {
	OwnerID  *string
	Status   *string
	Priority *string
	Search   *string
	OrderBy  string
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateFields(ctx context.Context, id string, changes map[string]any) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountWithFilter(ctx context.Context, filter TicketFilter) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, owner_id, title, description, status, priority, created_at, updated_at`

// Create inserts the ticket. The ticket number comes from the database
// sequence default, so concurrent creates can never observe the same number.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (owner_id, title, description, status, priority)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, ticket_number, created_at, updated_at`
	return querierFromCtx(ctx, r.pool).QueryRow(ctx, query,
		ticket.OwnerID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.TicketNumber, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := querierFromCtx(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.OwnerID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

var updatableTicketColumns = map[string]struct{}{
	"title":       {},
	"description": {},
	"priority":    {},
	"status":      {},
}

// UpdateFields persists only the given columns and refreshes updated_at. The
// owner column is not updatable by design.
func (r *ticketRepository) UpdateFields(ctx context.Context, id string, changes map[string]any) (*domain.Ticket, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	columns := make([]string, 0, len(changes))
	for column := range changes {
		if _, ok := updatableTicketColumns[column]; !ok {
			return nil, fmt.Errorf("column %q is not updatable", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns)+1)
	args := []any{}
	for _, column := range columns {
		args = append(args, changes[column])
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), ticketColumns)

	var ticket domain.Ticket
	if err := querierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.OwnerID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Delete removes the ticket row; responses and images go with it via the
// ON DELETE CASCADE constraints.
func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := querierFromCtx(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := filterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), orderClause(filter.OrderBy), limit, offset)

	rows, err := querierFromCtx(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountWithFilter(ctx context.Context, filter TicketFilter) (int64, error) {
	clauses, args := filterClauses(filter)
	query := `SELECT COUNT(*) FROM tickets WHERE ` + strings.Join(clauses, " AND ")

	var count int64
	if err := querierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func filterClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.Status != nil && strings.TrimSpace(*filter.Status) != "" {
		args = append(args, strings.ToLower(strings.TrimSpace(*filter.Status)))
		clauses = append(clauses, fmt.Sprintf("LOWER(status)=$%d", len(args)))
	}
	if filter.Priority != nil && strings.TrimSpace(*filter.Priority) != "" {
		args = append(args, strings.ToLower(strings.TrimSpace(*filter.Priority)))
		clauses = append(clauses, fmt.Sprintf("LOWER(priority)=$%d", len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.Search)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(ticket_number) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	return clauses, args
}

var orderableTicketColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"status":     {},
}

// orderClause maps a caller-supplied ordering ("created_at", "-updated_at",
// "status", ...) to a safe ORDER BY expression. Unknown values fall back to
// the default newest-first ordering.
func orderClause(orderBy string) string {
	field := strings.TrimSpace(orderBy)
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")

	if _, ok := orderableTicketColumns[field]; !ok {
		return "created_at DESC"
	}
	if desc {
		return field + " DESC"
	}
	return field + " ASC"
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.OwnerID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
