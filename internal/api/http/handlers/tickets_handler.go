package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets. Accepts JSON, or multipart/form-data when
// images are attached (field "images", repeated).
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	input, closers, err := parseCreateRequest(c)
	defer closeAll(closers)
	if err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.Context(), principal.Actor, *input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	input := service.TicketListInput{
		Status:   optionalQuery(c, "status"),
		Priority: optionalQuery(c, "priority"),
		Search:   optionalQuery(c, "search"),
		OrderBy:  c.Query("order_by"),
		Limit:    parseInt(c.Query("limit"), 20),
		Offset:   parseIntAllowZero(c.Query("offset"), 0),
	}

	tickets, count, err := h.service.ListTickets(c.Context(), principal.Actor, input)
	if err != nil {
		return err
	}

	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketPage{
		Items:  items,
		Count:  count,
		Limit:  input.Limit,
		Offset: input.Offset,
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.Context(), principal.Actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.UpdateTicket(c.Context(), principal.Actor, c.Params("id"), service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UpdateTicketResponse{
		Ticket:  ticketSummary(result.Ticket),
		Applied: result.Applied,
		Dropped: result.Dropped,
	}})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.DeleteTicket(c.Context(), principal.Actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Respond POST /tickets/:id/respond.
func (h *TicketsHandler) Respond(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.RespondRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	response, ticket, err := h.service.RespondToTicket(c.Context(), principal.Actor, c.Params("id"), req.Message)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"response":      responseBody(response),
		"ticket_status": ticket.Status,
	}})
}

// ListAudit GET /tickets/:id/audit (staff only).
func (h *TicketsHandler) ListAudit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	entries, err := h.service.ListTicketAudit(c.Context(), principal.Actor, c.Params("id"),
		parseInt(c.Query("limit"), 50), parseIntAllowZero(c.Query("offset"), 0))
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.AuditEntryResponse{
			ID:        entry.ID,
			ActorID:   entry.ActorID,
			Action:    string(entry.Action),
			Applied:   entry.Applied,
			Dropped:   entry.Dropped,
			CreatedAt: entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseCreateRequest(c *fiber.Ctx) (*service.TicketCreateInput, []multipart.File, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, apperrors.NewValidationError("invalid multipart payload", nil)
		}
		input := &service.TicketCreateInput{
			Title:       formValue(form, "title"),
			Description: formValue(form, "description"),
			Priority:    domain.TicketPriority(formValue(form, "priority")),
		}
		var closers []multipart.File
		for _, header := range form.File["images"] {
			file, err := header.Open()
			if err != nil {
				return nil, closers, apperrors.NewValidationError("unreadable attachment", map[string]any{"file_name": header.Filename})
			}
			closers = append(closers, file)
			input.Files = append(input.Files, service.FileUpload{
				FileName:    header.Filename,
				ContentType: header.Header.Get(fiber.HeaderContentType),
				Size:        header.Size,
				Content:     file,
			})
		}
		return input, closers, nil
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, apperrors.NewValidationError("invalid payload", nil)
	}
	return &service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	}, nil, nil
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := c.Query(key)
	if val == "" {
		return nil
	}
	return &val
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseIntAllowZero(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		TicketNumber: ticket.TicketNumber,
		OwnerID:      ticket.OwnerID,
		Title:        ticket.Title,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	responses := make([]dto.TicketResponseBody, 0, len(ticket.Responses))
	for i := range ticket.Responses {
		responses = append(responses, responseBody(&ticket.Responses[i]))
	}
	images := make([]dto.TicketImageResponse, 0, len(ticket.Images))
	for _, image := range ticket.Images {
		images = append(images, dto.TicketImageResponse{
			ID:          image.ID,
			FileName:    image.FileName,
			ContentType: image.ContentType,
			ByteSize:    image.ByteSize,
			StorageRef:  image.StorageRef,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		Responses:     responses,
		Images:        images,
	}
}

func responseBody(response *domain.TicketResponse) dto.TicketResponseBody {
	return dto.TicketResponseBody{
		ID:        response.ID,
		AuthorID:  response.AuthorID,
		Message:   response.Message,
		CreatedAt: response.CreatedAt,
	}
}
