package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

type stubTicketRepo struct {
	tickets map[string]*domain.Ticket
	nextID  int
	nextNum int
}

func newStubTicketRepo() *stubTicketRepo {
	return &stubTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *stubTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.nextID++
	r.nextNum++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	ticket.TicketNumber = fmt.Sprintf("TKT-%06d", r.nextNum)
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *stubTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *stubTicketRepo) UpdateFields(_ context.Context, id string, changes map[string]any) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	for column, value := range changes {
		switch column {
		case "title":
			ticket.Title = value.(string)
		case "description":
			ticket.Description = value.(string)
		case "priority":
			ticket.Priority = value.(domain.TicketPriority)
		case "status":
			ticket.Status = value.(domain.TicketStatus)
		default:
			return nil, fmt.Errorf("column %q is not updatable", column)
		}
	}
	clone := *ticket
	return &clone, nil
}

func (r *stubTicketRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func (r *stubTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func (r *stubTicketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	matched, err := r.ListWithFilter(ctx, filter)
	return int64(len(matched)), err
}

func matchesFilter(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.Status != nil && !strings.EqualFold(string(ticket.Status), *filter.Status) {
		return false
	}
	if filter.Priority != nil && !strings.EqualFold(string(ticket.Priority), *filter.Priority) {
		return false
	}
	if filter.Search != nil {
		needle := strings.ToLower(*filter.Search)
		haystack := strings.ToLower(ticket.Title + " " + ticket.Description + " " + ticket.TicketNumber)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

type stubResponseRepo struct {
	responses []domain.TicketResponse
	nextID    int
}

func (r *stubResponseRepo) Append(_ context.Context, response *domain.TicketResponse) error {
	r.nextID++
	response.ID = fmt.Sprintf("response-%d", r.nextID)
	r.responses = append(r.responses, *response)
	return nil
}

func (r *stubResponseRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketResponse, error) {
	var result []domain.TicketResponse
	for _, response := range r.responses {
		if response.TicketID == ticketID {
			result = append(result, response)
		}
	}
	return result, nil
}

type stubImageRepo struct {
	images []domain.TicketImage
	nextID int
}

func (r *stubImageRepo) Create(_ context.Context, image *domain.TicketImage) error {
	r.nextID++
	image.ID = fmt.Sprintf("image-%d", r.nextID)
	r.images = append(r.images, *image)
	return nil
}

func (r *stubImageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketImage, error) {
	var result []domain.TicketImage
	for _, image := range r.images {
		if image.TicketID == ticketID {
			result = append(result, image)
		}
	}
	return result, nil
}

type stubAuditRepo struct {
	entries []domain.TicketAudit
}

func (r *stubAuditRepo) Create(_ context.Context, entry *domain.TicketAudit) error {
	entry.ID = fmt.Sprintf("audit-%d", len(r.entries)+1)
	r.entries = append(r.entries, *entry)
	return nil
}

// ListByTicket returns entries newest first, matching the repository.
func (r *stubAuditRepo) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketAudit, error) {
	var result []domain.TicketAudit
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].TicketID == ticketID {
			result = append(result, r.entries[i])
		}
	}
	return result, nil
}

type stubTxRunner struct{}

func (stubTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubBlobStore struct {
	saved   []string
	deleted []string
	nextRef int
}

func (b *stubBlobStore) Save(_ context.Context, _ string, _ io.Reader) (string, error) {
	b.nextRef++
	ref := fmt.Sprintf("blob-%d", b.nextRef)
	b.saved = append(b.saved, ref)
	return ref, nil
}

func (b *stubBlobStore) Delete(_ context.Context, ref string) error {
	b.deleted = append(b.deleted, ref)
	return nil
}

type fixture struct {
	service   *TicketService
	tickets   *stubTicketRepo
	responses *stubResponseRepo
	images    *stubImageRepo
	audit     *stubAuditRepo
	blobs     *stubBlobStore
}

func newFixture() *fixture {
	tickets := newStubTicketRepo()
	responses := &stubResponseRepo{}
	images := &stubImageRepo{}
	audit := &stubAuditRepo{}
	blobs := &stubBlobStore{}
	svc := NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		ResponseRepo: responses,
		ImageRepo:    images,
		AuditRepo:    audit,
		Tx:           stubTxRunner{},
		Blobs:        blobs,
	})
	return &fixture{service: svc, tickets: tickets, responses: responses, images: images, audit: audit, blobs: blobs}
}

var (
	owner    = domain.Actor{ID: "user-owner"}
	stranger = domain.Actor{ID: "user-stranger"}
	staff    = domain.Actor{ID: "user-staff", IsStaff: true}
)

func (f *fixture) createTicket(t *testing.T, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	ticket, err := f.service.CreateTicket(context.Background(), owner, input)
	require.NoError(t, err)
	return ticket
}

func basicInput() TicketCreateInput {
	return TicketCreateInput{Title: "printer on fire", Description: "smoke everywhere"}
}

func uploads(sizes ...int64) []FileUpload {
	files := make([]FileUpload, 0, len(sizes))
	for i, size := range sizes {
		files = append(files, FileUpload{
			FileName:    fmt.Sprintf("photo-%d.jpg", i),
			ContentType: "image/jpeg",
			Size:        size,
			Content:     bytes.NewReader(nil),
		})
	}
	return files
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	assert.Equal(t, code, domainErr.Code)
}

func TestCreateTicketDefaults(t *testing.T) {
	f := newFixture()

	ticket := f.createTicket(t, basicInput())

	assert.Equal(t, owner.ID, ticket.OwnerID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Regexp(t, `^TKT-\d{6}$`, ticket.TicketNumber)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.AuditActionCreated, f.audit.entries[0].Action)
}

func TestCreateTicketDistinctNumbers(t *testing.T) {
	f := newFixture()

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		ticket := f.createTicket(t, basicInput())
		assert.False(t, seen[ticket.TicketNumber], "duplicate number %s", ticket.TicketNumber)
		seen[ticket.TicketNumber] = true
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateTicket(context.Background(), owner, TicketCreateInput{Title: "   ", Description: "body"})
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.service.CreateTicket(context.Background(), owner, TicketCreateInput{Title: "t", Description: ""})
	requireCode(t, err, "VALIDATION_FAILED")

	input := basicInput()
	input.Priority = domain.TicketPriority("urgent")
	_, err = f.service.CreateTicket(context.Background(), owner, input)
	requireCode(t, err, "VALIDATION_FAILED")
}

func TestCreateTicketWithAttachments(t *testing.T) {
	f := newFixture()

	input := basicInput()
	input.Files = uploads(1<<20, 1<<20, 1<<20, 1<<20, 1<<20)

	ticket := f.createTicket(t, input)

	require.Len(t, ticket.Images, 5)
	for i, image := range ticket.Images {
		assert.Equal(t, i, image.Position)
		assert.Equal(t, fmt.Sprintf("photo-%d.jpg", i), image.FileName)
	}
	assert.Len(t, f.blobs.saved, 5)
}

func TestCreateTicketTooManyAttachments(t *testing.T) {
	f := newFixture()

	input := basicInput()
	input.Files = uploads(1, 1, 1, 1, 1, 1)

	_, err := f.service.CreateTicket(context.Background(), owner, input)
	requireCode(t, err, string(policy.TooManyAttachments))

	assert.Empty(t, f.tickets.tickets, "no ticket row may exist after a rejected create")
	assert.Empty(t, f.images.images)
	assert.Empty(t, f.blobs.saved, "no blob may be written before limits pass")
}

func TestCreateTicketOversizedFile(t *testing.T) {
	f := newFixture()

	input := basicInput()
	input.Files = uploads(100, policy.MaxAttachmentBytes+1)

	_, err := f.service.CreateTicket(context.Background(), owner, input)
	requireCode(t, err, string(policy.AttachmentTooLarge))

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "photo-1.jpg", domainErr.Details["file_name"])
	assert.Equal(t, 1, domainErr.Details["file_index"])
	assert.Empty(t, f.tickets.tickets)
}

func TestCreateTicketOversizedTotal(t *testing.T) {
	f := newFixture()

	input := basicInput()
	size := int64(policy.MaxAttachmentBytes)
	input.Files = uploads(size, size, size, size, 1)

	_, err := f.service.CreateTicket(context.Background(), owner, input)
	requireCode(t, err, string(policy.AttachmentSetTooLarge))
	assert.Empty(t, f.tickets.tickets)
}

func TestGetTicketVisibility(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	got, err := f.service.GetTicket(context.Background(), owner, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	_, err = f.service.GetTicket(context.Background(), staff, ticket.ID)
	require.NoError(t, err)

	// Existence must not leak to strangers.
	_, err = f.service.GetTicket(context.Background(), stranger, ticket.ID)
	requireCode(t, err, "NOT_FOUND")

	_, err = f.service.GetTicket(context.Background(), owner, "ticket-missing")
	requireCode(t, err, "NOT_FOUND")
}

func TestListTicketsScoping(t *testing.T) {
	f := newFixture()
	mine := f.createTicket(t, basicInput())

	other, err := f.service.CreateTicket(context.Background(), stranger, basicInput())
	require.NoError(t, err)

	tickets, count, err := f.service.ListTickets(context.Background(), owner, TicketListInput{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, mine.ID, tickets[0].ID)

	_, count, err = f.service.ListTickets(context.Background(), staff, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	status := "open"
	tickets, _, err = f.service.ListTickets(context.Background(), stranger, TicketListInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, other.ID, tickets[0].ID)
}

func TestUpdateTicketOwnerFields(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	title := "printer still on fire"
	priority := domain.TicketPriorityHigh
	result, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{
		Title:    &title,
		Priority: &priority,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"priority", "title"}, result.Applied)
	assert.Empty(t, result.Dropped)
	assert.Equal(t, title, result.Ticket.Title)
	assert.Equal(t, priority, result.Ticket.Priority)
	assert.Equal(t, owner.ID, result.Ticket.OwnerID)
}

func TestUpdateTicketNonStaffStatusDropped(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	closed := domain.TicketStatusClosed
	title := "updated title"
	result, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{
		Title:  &title,
		Status: &closed,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"title"}, result.Applied)
	assert.Equal(t, []string{"status"}, result.Dropped)
	assert.Equal(t, domain.TicketStatusOpen, result.Ticket.Status, "status must never change for non-staff")

	entries, err := f.service.ListTicketAudit(context.Background(), staff, ticket.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"status"}, entries[0].Dropped)
}

func TestUpdateTicketStatusOnlyByOwner(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	closed := domain.TicketStatusClosed
	result, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"status"}, result.Dropped)
	assert.Equal(t, domain.TicketStatusOpen, result.Ticket.Status)
}

func TestUpdateTicketStaffStatus(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	closed := domain.TicketStatusClosed
	result, err := f.service.UpdateTicket(context.Background(), staff, ticket.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)

	assert.Equal(t, []string{"status"}, result.Applied)
	assert.Equal(t, domain.TicketStatusClosed, result.Ticket.Status)
}

func TestUpdateTicketOwnerClosedForbidden(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	closed := domain.TicketStatusClosed
	_, err := f.service.UpdateTicket(context.Background(), staff, ticket.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)

	title := "too late"
	_, err = f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Title: &title})
	requireCode(t, err, "FORBIDDEN")
}

func TestUpdateTicketStrangerNotFound(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	title := "hijack"
	_, err := f.service.UpdateTicket(context.Background(), stranger, ticket.ID, TicketUpdateInput{Title: &title})
	requireCode(t, err, "NOT_FOUND")
}

func TestUpdateTicketBlankTitle(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	blank := "   "
	_, err := f.service.UpdateTicket(context.Background(), owner, ticket.ID, TicketUpdateInput{Title: &blank})
	requireCode(t, err, "VALIDATION_FAILED")
}

func TestUpdateTicketInvalidStatusValue(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	bogus := domain.TicketStatus("reopened")
	_, err := f.service.UpdateTicket(context.Background(), staff, ticket.ID, TicketUpdateInput{Status: &bogus})
	requireCode(t, err, "VALIDATION_FAILED")
}

func TestDeleteTicketOwnerOpen(t *testing.T) {
	f := newFixture()
	input := basicInput()
	input.Files = uploads(100)
	ticket := f.createTicket(t, input)

	require.NoError(t, f.service.DeleteTicket(context.Background(), owner, ticket.ID))

	_, err := f.tickets.GetByID(context.Background(), ticket.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.Equal(t, f.blobs.saved, f.blobs.deleted, "blobs must be discarded with the ticket")

	// Audit outlives the ticket row.
	entries, err := f.audit.ListByTicket(context.Background(), ticket.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditActionDeleted, entries[0].Action)
}

func TestDeleteTicketOwnerNonOpen(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	closed := domain.TicketStatusClosed
	_, err := f.service.UpdateTicket(context.Background(), staff, ticket.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)

	err = f.service.DeleteTicket(context.Background(), owner, ticket.ID)
	requireCode(t, err, "FORBIDDEN")

	_, err = f.tickets.GetByID(context.Background(), ticket.ID)
	assert.NoError(t, err, "ticket must persist after a rejected delete")
}

func TestDeleteTicketNoStaffOverride(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	err := f.service.DeleteTicket(context.Background(), staff, ticket.ID)
	requireCode(t, err, "FORBIDDEN")
}

func TestDeleteTicketStrangerNotFound(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	err := f.service.DeleteTicket(context.Background(), stranger, ticket.ID)
	requireCode(t, err, "NOT_FOUND")
}

func TestRespondOwnerNoTransition(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	response, updated, err := f.service.RespondToTicket(context.Background(), owner, ticket.ID, "any update?")
	require.NoError(t, err)

	assert.Equal(t, owner.ID, response.AuthorID)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)
}

func TestRespondStaffAdvancesOpenTicket(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	_, updated, err := f.service.RespondToTicket(context.Background(), staff, ticket.ID, "looking into it")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)

	entries, err := f.service.ListTicketAudit(context.Background(), staff, ticket.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditActionStatusAdvanced, entries[0].Action)
}

func TestRespondStaffLeavesNonOpenAlone(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	for _, status := range []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusClosed} {
		target := status
		_, err := f.service.UpdateTicket(context.Background(), staff, ticket.ID, TicketUpdateInput{Status: &target})
		require.NoError(t, err)

		_, updated, err := f.service.RespondToTicket(context.Background(), staff, ticket.ID, "still here")
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestRespondValidation(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	_, _, err := f.service.RespondToTicket(context.Background(), owner, ticket.ID, "   ")
	requireCode(t, err, "VALIDATION_FAILED")

	_, _, err = f.service.RespondToTicket(context.Background(), stranger, ticket.ID, "let me in")
	requireCode(t, err, "NOT_FOUND")
}

func TestRespondThreadOrder(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	for i := 0; i < 3; i++ {
		_, _, err := f.service.RespondToTicket(context.Background(), owner, ticket.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	got, err := f.service.GetTicket(context.Background(), owner, ticket.ID)
	require.NoError(t, err)
	require.Len(t, got.Responses, 3)
	for i, response := range got.Responses {
		assert.Equal(t, fmt.Sprintf("message %d", i), response.Message)
	}
}

func TestListTicketAuditStaffOnly(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, basicInput())

	_, err := f.service.ListTicketAudit(context.Background(), owner, ticket.ID, 50, 0)
	requireCode(t, err, "FORBIDDEN")

	_, err = f.service.ListTicketAudit(context.Background(), stranger, ticket.ID, 50, 0)
	requireCode(t, err, "NOT_FOUND")

	entries, err := f.service.ListTicketAudit(context.Background(), staff, ticket.ID, 50, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
