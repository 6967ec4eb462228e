package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ImageRepository persists ticket image metadata. Images are created only as
// part of ticket creation.
type ImageRepository interface {
	Create(ctx context.Context, image *domain.TicketImage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketImage, error)
}

type imageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository constructs repository.
func NewImageRepository(pool *pgxpool.Pool) ImageRepository {
	return &imageRepository{pool: pool}
}

func (r *imageRepository) Create(ctx context.Context, image *domain.TicketImage) error {
	const query = `
        INSERT INTO ticket_images (ticket_id, storage_ref, file_name, content_type, byte_size, position)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return querierFromCtx(ctx, r.pool).QueryRow(ctx, query,
		image.TicketID,
		image.StorageRef,
		image.FileName,
		image.ContentType,
		image.ByteSize,
		image.Position,
	).Scan(&image.ID, &image.CreatedAt)
}

func (r *imageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketImage, error) {
	const query = `
        SELECT id, ticket_id, storage_ref, file_name, content_type, byte_size, position, created_at
        FROM ticket_images WHERE ticket_id=$1 ORDER BY position ASC`
	rows, err := querierFromCtx(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketImage
	for rows.Next() {
		var image domain.TicketImage
		if err := rows.Scan(
			&image.ID,
			&image.TicketID,
			&image.StorageRef,
			&image.FileName,
			&image.ContentType,
			&image.ByteSize,
			&image.Position,
			&image.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, image)
	}
	return result, rows.Err()
}
