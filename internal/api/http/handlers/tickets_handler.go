package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/opsdesk/internal/api/dto"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/service"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle, assignment and queue
// operations over HTTP.
type TicketsHandler struct {
	lifecycle  *service.LifecycleService
	assignment *service.AssignmentService
	queue      *service.QueueService
}

// NewTicketsHandler constructs the handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, assignment *service.AssignmentService, queue *service.QueueService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, assignment: assignment, queue: queue}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.lifecycle.CreateTicket(c.UserContext(), actor.TenantID, actor, service.TicketCreateInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Severity:      req.Severity,
		DeviceID:      req.DeviceID,
		ContactMethod: req.ContactMethod,
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), actor.TenantID, actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ListTickets GET /tickets. `view=queue` requests queue ordering.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	input := service.TicketListInput{
		Queue:  c.Query("view") == "queue",
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	for _, raw := range splitQuery(c.Query("status")) {
		input.Statuses = append(input.Statuses, domain.TicketStatus(raw))
	}
	for _, raw := range splitQuery(c.Query("severity")) {
		input.Severities = append(input.Severities, domain.Severity(raw))
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		input.AssigneeID = &assignee
	}
	if unassigned := c.Query("unassigned"); unassigned != "" {
		v := unassigned == "true"
		input.Unassigned = &v
	}
	if search := c.Query("search"); search != "" {
		input.SearchTerm = &search
	}
	if from, err := time.Parse(time.RFC3339, c.Query("created_from")); err == nil {
		input.CreatedFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("created_to")); err == nil {
		input.CreatedTo = &to
	}

	result, err := h.lifecycle.GetTickets(c.UserContext(), actor.TenantID, actor, input)
	if err != nil {
		return err
	}
	response := dto.TicketListResponse{Total: result.Total, Tickets: make([]dto.TicketResponse, 0, len(result.Tickets))}
	for i := range result.Tickets {
		response.Tickets = append(response.Tickets, dto.FromTicket(&result.Tickets[i]))
	}
	return c.JSON(fiber.Map{"data": response})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.lifecycle.UpdateTicket(c.UserContext(), actor.TenantID, actor, c.Params("id"), service.TicketPatch{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      req.Status,
		Resolution:  req.Resolution,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// SelfAssign POST /tickets/:id/assign.
func (h *TicketsHandler) SelfAssign(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.assignment.SelfAssign(c.UserContext(), actor.TenantID, actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.lifecycle.CloseTicket(c.UserContext(), actor.TenantID, actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.lifecycle.AddComment(c.UserContext(), actor.TenantID, actor, c.Params("id"), service.CommentInput{
		Content:    req.Content,
		IsInternal: req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromComment(comment)})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	comments, err := h.lifecycle.GetTicketComments(c.UserContext(), actor.TenantID, actor, c.Params("id"))
	if err != nil {
		return err
	}
	response := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		response = append(response, dto.FromComment(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": response})
}

// QueueMetrics GET /tickets/metrics.
func (h *TicketsHandler) QueueMetrics(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	metrics, err := h.queue.Metrics(c.UserContext(), actor.TenantID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": metrics})
}

// AutoClosePolicy GET /policy/auto-close. Permanent policy probe.
func (h *TicketsHandler) AutoClosePolicy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{"auto_close": h.lifecycle.CanAutoClose()}})
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
