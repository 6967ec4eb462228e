package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/storage"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketService owns the ticket lifecycle: creation, field updates, status
// transitions, deletion eligibility, and the response thread. Every mutation
// is authorized through the policy evaluator before it touches storage.
type TicketService struct {
	tickets    repository.TicketRepository
	responses  repository.ResponseRepository
	images     repository.ImageRepository
	audit      repository.AuditRepository
	tx         repository.TxRunner
	blobs      storage.BlobStore
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	ResponseRepo repository.ResponseRepository
	ImageRepo    repository.ImageRepository
	AuditRepo    repository.AuditRepository
	Tx           repository.TxRunner
	Blobs        storage.BlobStore
	Dispatcher   events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		responses:  deps.ResponseRepo,
		images:     deps.ImageRepo,
		audit:      deps.AuditRepo,
		tx:         deps.Tx,
		blobs:      deps.Blobs,
		dispatcher: deps.Dispatcher,
	}
}

// FileUpload is one candidate attachment submitted with a new ticket.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Files       []FileUpload
}

// TicketListInput describes listing filters.
type TicketListInput struct {
	Status   *string
	Priority *string
	Search   *string
	OrderBy  string
	Limit    int
	Offset   int
}

// TicketUpdateInput carries the requested field changes; nil means the field
// was absent from the request.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.TicketPriority
	Status      *domain.TicketStatus
}

// UpdateResult reports the updated ticket together with the effective-change
// set: which fields were applied and which were stripped by field-level
// authorization.
type UpdateResult struct {
	Ticket  *domain.Ticket
	Applied []string
	Dropped []string
}

// CreateTicket validates input and attachments, then persists the ticket,
// its images, and the blob contents as one unit. Nothing is created when any
// attachment limit is violated.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if decision := policy.Evaluate(actor, nil, policy.ActionCreate); !decision.Allowed {
		return nil, denyError(decision)
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	candidates := make([]policy.FileCandidate, 0, len(input.Files))
	for _, f := range input.Files {
		candidates = append(candidates, policy.FileCandidate{Name: f.FileName, Size: f.Size})
	}
	if violation := policy.ValidateAttachments(candidates); violation != nil {
		return nil, attachmentError(violation)
	}

	refs, err := s.storeBlobs(ctx, input.Files)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		OwnerID:     actor.ID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		for i, f := range input.Files {
			image := &domain.TicketImage{
				TicketID:    ticket.ID,
				StorageRef:  refs[i],
				FileName:    f.FileName,
				ContentType: f.ContentType,
				ByteSize:    f.Size,
				Position:    i,
			}
			if err := s.images.Create(ctx, image); err != nil {
				return err
			}
			ticket.Images = append(ticket.Images, *image)
		}
		return s.audit.Create(ctx, &domain.TicketAudit{
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionCreated,
			Applied: map[string]any{
				"title":    ticket.Title,
				"priority": ticket.Priority,
				"images":   len(ticket.Images),
			},
		})
	})
	if err != nil {
		s.discardBlobs(ctx, refs)
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Title:        ticket.Title,
			Priority:     ticket.Priority,
			ImageCount:   len(ticket.Images),
		},
	})
	return ticket, nil
}

// ListTickets returns the actor-visible page of tickets plus the total count.
// Non-staff actors are scoped to their own tickets before any filter applies.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, input TicketListInput) ([]domain.Ticket, int64, error) {
	filter := repository.TicketFilter{
		OwnerID:  policy.ListScope(actor),
		Status:   input.Status,
		Priority: input.Priority,
		Search:   input.Search,
		OrderBy:  input.OrderBy,
		Limit:    input.Limit,
		Offset:   input.Offset,
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.tickets.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return tickets, count, nil
}

// GetTicket resolves and authorizes a single ticket and loads its responses
// (chronological) and images (insertion order).
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.resolve(ctx, actor, ticketID, policy.ActionView)
	if err != nil {
		return nil, err
	}
	if ticket.Responses, err = s.responses.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	if ticket.Images, err = s.images.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateTicket applies the authorized subset of the requested changes. A
// status field sent by a non-staff actor is dropped before authorization of
// the remaining fields; the drop is recorded, not rejected.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, ticketID string, input TicketUpdateInput) (*UpdateResult, error) {
	ticket, err := s.resolve(ctx, actor, ticketID, policy.ActionView)
	if err != nil {
		return nil, err
	}

	var dropped []string
	if input.Status != nil && !actor.IsStaff {
		input.Status = nil
		dropped = append(dropped, "status")
	}

	if input.Status != nil {
		if decision := policy.Evaluate(actor, ticket, policy.ActionUpdateStatus); !decision.Allowed {
			return nil, denyError(decision)
		}
		if !domain.ValidStatus(*input.Status) {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
	}

	if decision := policy.Evaluate(actor, ticket, policy.ActionUpdateFields); !decision.Allowed {
		return nil, denyError(decision)
	}

	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be blank", nil)
		}
		changes["title"] = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewValidationError("description cannot be blank", nil)
		}
		changes["description"] = description
	}
	if input.Priority != nil {
		if !domain.ValidPriority(*input.Priority) {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		changes["priority"] = *input.Priority
	}
	if input.Status != nil {
		changes["status"] = *input.Status
	}

	applied := make([]string, 0, len(changes))
	for field := range changes {
		applied = append(applied, field)
	}
	sort.Strings(applied)

	oldStatus := ticket.Status
	var updated *domain.Ticket
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var txErr error
		if updated, txErr = s.tickets.UpdateFields(ctx, ticket.ID, changes); txErr != nil {
			return txErr
		}
		if len(changes) == 0 && len(dropped) == 0 {
			return nil
		}
		return s.audit.Create(ctx, &domain.TicketAudit{
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionUpdated,
			Applied:  changes,
			Dropped:  dropped,
		})
	})
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 || len(dropped) > 0 {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: updated.ID,
			ActorID:  actor.ID,
			Payload:  events.TicketUpdatedPayload{Applied: applied, Dropped: dropped},
		})
	}
	if updated.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: updated.ID,
			ActorID:  actor.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: updated.Status,
			},
		})
	}
	return &UpdateResult{Ticket: updated, Applied: applied, Dropped: dropped}, nil
}

// DeleteTicket removes a ticket with its responses and images. Only the
// owner may delete, and only while the ticket is still open; staff
// deliberately has no override here.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Actor, ticketID string) error {
	ticket, err := s.getByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if decision := policy.Evaluate(actor, ticket, policy.ActionDelete); !decision.Allowed {
		return denyError(decision)
	}

	images, err := s.images.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}
	responses, err := s.responses.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
			return err
		}
		// The audit trail outlives the ticket row.
		return s.audit.Create(ctx, &domain.TicketAudit{
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionDeleted,
			Applied: map[string]any{
				"ticket_number": ticket.TicketNumber,
				"responses":     len(responses),
				"images":        len(images),
			},
		})
	})
	if err != nil {
		return err
	}

	refs := make([]string, 0, len(images))
	for _, image := range images {
		refs = append(refs, image.StorageRef)
	}
	s.discardBlobs(ctx, refs)

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketDeletedPayload{
			TicketNumber:  ticket.TicketNumber,
			ResponseCount: len(responses),
			ImageCount:    len(images),
		},
	})
	return nil
}

// RespondToTicket appends a response to the ledger. When a staff member
// responds to an open ticket, the ticket advances to in_progress in the same
// transaction as the response insert.
func (s *TicketService) RespondToTicket(ctx context.Context, actor domain.Actor, ticketID, message string) (*domain.TicketResponse, *domain.Ticket, error) {
	ticket, err := s.resolve(ctx, actor, ticketID, policy.ActionRespond)
	if err != nil {
		return nil, nil, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, nil, apperrors.NewValidationError("message required", nil)
	}

	response := &domain.TicketResponse{
		TicketID: ticket.ID,
		AuthorID: actor.ID,
		Message:  message,
	}
	autoAdvance := actor.IsStaff && ticket.Status == domain.TicketStatusOpen

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.responses.Append(ctx, response); err != nil {
			return err
		}
		if !autoAdvance {
			return nil
		}
		updated, err := s.tickets.UpdateFields(ctx, ticket.ID, map[string]any{
			"status": domain.TicketStatusInProgress,
		})
		if err != nil {
			return err
		}
		ticket = updated
		return s.audit.Create(ctx, &domain.TicketAudit{
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionStatusAdvanced,
			Applied:  map[string]any{"status": domain.TicketStatusInProgress},
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventResponseAdded,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.ResponseAddedPayload{
			ResponseID:     response.ID,
			AuthorID:       actor.ID,
			AuthorIsStaff:  actor.IsStaff,
			MessagePreview: stringPreview(message, 120),
		},
	})
	if autoAdvance {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: domain.TicketStatusOpen,
				NewStatus: domain.TicketStatusInProgress,
				Auto:      true,
			},
		})
	}
	return response, ticket, nil
}

// ListTicketAudit returns the change trail of a ticket. Staff only: the
// effective-change sets include fields stripped from other actors' requests.
func (s *TicketService) ListTicketAudit(ctx context.Context, actor domain.Actor, ticketID string, limit, offset int) ([]domain.TicketAudit, error) {
	ticket, err := s.resolve(ctx, actor, ticketID, policy.ActionView)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff {
		return nil, apperrors.NewForbidden("staff access required")
	}
	return s.audit.ListByTicket(ctx, ticket.ID, limit, offset)
}

func (s *TicketService) getByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, err
	}
	return ticket, nil
}

// resolve fetches the ticket and runs the given policy action, collapsing
// both "absent" and "invisible" into the same not-found error so existence
// never leaks.
func (s *TicketService) resolve(ctx context.Context, actor domain.Actor, ticketID string, action policy.Action) (*domain.Ticket, error) {
	ticket, err := s.getByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if decision := policy.Evaluate(actor, ticket, action); !decision.Allowed {
		return nil, denyError(decision)
	}
	return ticket, nil
}

func (s *TicketService) storeBlobs(ctx context.Context, files []FileUpload) ([]string, error) {
	refs := make([]string, 0, len(files))
	for _, f := range files {
		ref, err := s.blobs.Save(ctx, f.FileName, f.Content)
		if err != nil {
			s.discardBlobs(ctx, refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *TicketService) discardBlobs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		_ = s.blobs.Delete(ctx, ref)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func denyError(decision policy.Decision) error {
	if decision.Reason == policy.DenyNotFound {
		return apperrors.NewNotFound("ticket", nil)
	}
	return apperrors.NewForbidden("action not allowed")
}

func attachmentError(v *policy.AttachmentViolation) error {
	var details map[string]any
	if v.Code == policy.AttachmentTooLarge {
		details = map[string]any{"file_name": v.FileName, "file_index": v.FileIndex}
	}
	return apperrors.NewAttachmentError(string(v.Code), v.Error(), details)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
