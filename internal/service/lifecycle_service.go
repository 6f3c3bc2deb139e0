package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/sla"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// LifecycleService owns the ticket state machine. It validates transitions
// against the authorization policy, persists them through conditional
// writes, and emits events and SLA timer updates as side effects.
// Notification and SLA failures never roll back a committed mutation.
type LifecycleService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	tenants    repository.TenantRepository
	dispatcher events.Dispatcher
	registry   *sla.Registry
	policy     *auth.Policy
	queue      *QueueService
	slaCfg     config.SLAConfig
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	TenantRepo  repository.TenantRepository
	Dispatcher  events.Dispatcher
	SLARegistry *sla.Registry
	Policy      *auth.Policy
	Queue       *QueueService
	SLAConfig   config.SLAConfig
	Logger      *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		tenants:    deps.TenantRepo,
		dispatcher: deps.Dispatcher,
		registry:   deps.SLARegistry,
		policy:     deps.Policy,
		queue:      deps.Queue,
		slaCfg:     deps.SLAConfig,
		logger:     logger,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title         string
	Description   string
	Category      domain.Category
	Severity      domain.Severity
	DeviceID      *string
	ContactMethod *string
	PhoneNumber   *string
}

// TicketPatch describes an update request. Nil fields are left untouched.
// A Status change drives the state machine and is validated against the
// current state and the actor's role.
type TicketPatch struct {
	Title       *string
	Description *string
	Severity    *domain.Severity
	Status      *domain.TicketStatus
	Resolution  *string
}

// CommentInput describes a new thread comment.
type CommentInput struct {
	Content    string
	IsInternal bool
}

// TicketListInput captures listing parameters for GetTickets.
type TicketListInput struct {
	Statuses    []domain.TicketStatus
	Severities  []domain.Severity
	AssigneeID  *string
	Unassigned  *bool
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
	// Queue requests queue semantics: ordering is delegated to the queue
	// manager and pagination is ignored.
	Queue bool
}

// TicketListResult is the GetTickets response.
type TicketListResult struct {
	Tickets []domain.Ticket
	Total   int
}

// CreateTicket opens a NEW ticket for the acting requester.
func (s *LifecycleService) CreateTicket(ctx context.Context, tenantID string, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.checkTenant(actor, tenantID); err != nil {
		return nil, apperrors.NewPermissionDenied("cannot create tickets in another tenant")
	}

	details := map[string]any{}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(input.Description) == "" {
		details["description"] = "required"
	}
	if input.Category == "" {
		details["category"] = "required"
	}
	if !input.Severity.Valid() {
		details["severity"] = "must be one of CRITICAL, HIGH, MEDIUM, LOW"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("missing or invalid ticket fields", details)
	}

	ticket := &domain.Ticket{
		TenantID:      tenantID,
		RequesterID:   actor.ID,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      input.Category,
		Severity:      input.Severity,
		Priority:      input.Severity.DisplayPriority(),
		DeviceID:      input.DeviceID,
		ContactMethod: input.ContactMethod,
		PhoneNumber:   input.PhoneNumber,
		Status:        domain.TicketStatusNew,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketCreated,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Title:    ticket.Title,
			Category: ticket.Category,
			Severity: ticket.Severity,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket visible to the actor. Absent tickets and
// tickets in other tenants are both reported as NotFound.
func (s *LifecycleService) GetTicket(ctx context.Context, tenantID string, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	return s.getVisible(ctx, tenantID, actor, ticketID)
}

// UpdateTicket applies a patch, driving a status transition when one is
// requested. Assignment (NEW -> IN_PROGRESS) and reopening (RESOLVED ->
// IN_PROGRESS) have their own entry points and are rejected here.
func (s *LifecycleService) UpdateTicket(ctx context.Context, tenantID string, actor domain.Actor, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	ticket, err := s.getVisible(ctx, tenantID, actor, ticketID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		ticket.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Severity != nil {
		if !patch.Severity.Valid() {
			return nil, apperrors.NewValidationError("invalid severity", nil)
		}
		ticket.Severity = *patch.Severity
		ticket.Priority = patch.Severity.DisplayPriority()
	}

	expected := ticket.Status
	var transitioned *events.Event

	if patch.Status != nil && *patch.Status != ticket.Status {
		event, err := s.applyTransition(ticket, actor, *patch.Status, patch.Resolution)
		if err != nil {
			return nil, err
		}
		transitioned = event
	}

	if err := s.tickets.Update(ctx, ticket, expected); err != nil {
		return nil, s.mapUpdateErr(err, string(expected), string(ticket.Status))
	}

	if transitioned != nil {
		s.afterTransition(ctx, actor, ticket, *transitioned)
	}
	return ticket, nil
}

// CloseTicket is the explicit manual-closure operation. It is the only
// path to CLOSED; nothing in the engine closes tickets on its own.
func (s *LifecycleService) CloseTicket(ctx context.Context, tenantID string, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	closed := domain.TicketStatusClosed
	return s.UpdateTicket(ctx, tenantID, actor, ticketID, TicketPatch{Status: &closed})
}

// AddComment appends a comment to the ticket thread. If the requester
// comments on a RESOLVED ticket, the service then reopens it as a second,
// separately audited step.
func (s *LifecycleService) AddComment(ctx context.Context, tenantID string, actor domain.Actor, ticketID string, input CommentInput) (*domain.Comment, error) {
	ticket, err := s.getVisible(ctx, tenantID, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.NewValidationError("comment content required", nil)
	}
	if input.IsInternal && actor.Role == domain.RoleEndUser {
		return nil, apperrors.NewPermissionDenied("internal notes are staff-only")
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		Content:    strings.TrimSpace(input.Content),
		IsInternal: input.IsInternal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketCommentAdded,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketCommentAddedPayload{
			CommentID:  comment.ID,
			AuthorID:   comment.AuthorID,
			IsInternal: comment.IsInternal,
		},
	})

	if ticket.Status == domain.TicketStatusResolved &&
		actor.Role == domain.RoleEndUser && actor.ID == ticket.RequesterID {
		if err := s.reopenFromComment(ctx, actor, ticket); err != nil {
			// The comment stands either way; a lost reopen race just means
			// someone else already moved the ticket.
			s.logger.Warn("reopen after requester comment failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return comment, nil
}

// GetTicketComments returns the thread in chronological order. Internal
// notes are hidden from end users.
func (s *LifecycleService) GetTicketComments(ctx context.Context, tenantID string, actor domain.Actor, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.getVisible(ctx, tenantID, actor, ticketID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleEndUser {
		return comments, nil
	}
	visible := make([]domain.Comment, 0, len(comments))
	for _, comment := range comments {
		if comment.IsInternal {
			continue
		}
		visible = append(visible, comment)
	}
	return visible, nil
}

// GetTickets lists tickets visible to the actor. With Queue set, ordering
// is delegated to the queue manager.
func (s *LifecycleService) GetTickets(ctx context.Context, tenantID string, actor domain.Actor, input TicketListInput) (*TicketListResult, error) {
	if err := s.checkTenant(actor, tenantID); err != nil {
		return nil, err
	}

	if input.Queue {
		tickets, err := s.queue.Queue(ctx, tenantID, actor)
		if err != nil {
			return nil, err
		}
		return &TicketListResult{Tickets: tickets, Total: len(tickets)}, nil
	}

	filter := repository.TicketFilter{
		Statuses:    input.Statuses,
		Severities:  input.Severities,
		AssigneeID:  input.AssigneeID,
		Unassigned:  input.Unassigned,
		SearchTerm:  input.SearchTerm,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	switch actor.Role {
	case domain.RoleEndUser:
		requester := actor.ID
		filter.RequesterID = &requester
	case domain.RoleITAnalyst:
		filter.ExcludeCategories = append(filter.ExcludeCategories, domain.CategorySecurity)
	}

	tickets, err := s.tickets.List(ctx, tenantID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.tickets.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketListResult{Tickets: tickets, Total: total}, nil
}

// CanAutoClose reports whether any automatic process may close a ticket.
// Always false: closure is an audited, actor-initiated action.
func (s *LifecycleService) CanAutoClose() bool {
	return false
}

// ResetSLATimers cancels all pending SLA deadlines. Shutdown/test hook.
func (s *LifecycleService) ResetSLATimers() {
	if s.registry != nil {
		s.registry.ResetAll()
	}
}

// applyTransition validates and stages a status change on the in-memory
// ticket, returning the event to publish once the write commits.
func (s *LifecycleService) applyTransition(ticket *domain.Ticket, actor domain.Actor, next domain.TicketStatus, resolution *string) (*events.Event, error) {
	from := ticket.Status

	if next == domain.TicketStatusInProgress {
		// Assignment and reopening are separate operations with their own
		// triggers; a bare status patch cannot produce IN_PROGRESS.
		return nil, apperrors.NewInvalidStateTransition(string(from), string(next))
	}
	if !s.policy.TransitionDefined(from, next) {
		return nil, apperrors.NewInvalidStateTransition(string(from), string(next))
	}
	if !s.policy.Allows(actor.Role, from, next) {
		return nil, apperrors.NewPermissionDenied("role may not perform this transition")
	}

	event := events.Event{
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: next,
		},
	}

	switch next {
	case domain.TicketStatusAwaitingResponse:
		if !ticket.Assigned() {
			return nil, apperrors.NewInvalidStateTransition(string(from), string(next))
		}
		event.Type = events.EventTicketAwaiting
	case domain.TicketStatusResolved:
		if resolution == nil || strings.TrimSpace(*resolution) == "" {
			return nil, apperrors.NewValidationError("resolution required to resolve a ticket", nil)
		}
		text := strings.TrimSpace(*resolution)
		ticket.Resolution = &text
		ticket.ResolvedBy = ticket.AssigneeID
		ticket.AssigneeID = nil
		ticket.AssignedAt = nil
		event.Type = events.EventTicketResolved
		event.Payload = events.TicketStatusChangedPayload{
			OldStatus:  from,
			NewStatus:  next,
			Resolution: &text,
		}
	case domain.TicketStatusClosed:
		ticket.AssigneeID = nil
		ticket.AssignedAt = nil
		event.Type = events.EventTicketClosed
	default:
		return nil, apperrors.NewInvalidStateTransition(string(from), string(next))
	}

	ticket.Status = next
	return &event, nil
}

// afterTransition runs the post-commit side effects for a status change.
func (s *LifecycleService) afterTransition(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, event events.Event) {
	switch ticket.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		if s.registry != nil {
			s.registry.Cancel(ticket.ID)
		}
	}
	s.publishEvent(ctx, actor, event)
}

// reopenFromComment is the second step of the reopening protocol: the
// comment has already been appended and audited; this transition is its
// own write and its own event. The resolving analyst gets the ticket back.
func (s *LifecycleService) reopenFromComment(ctx context.Context, actor domain.Actor, ticket *domain.Ticket) error {
	if !s.policy.Allows(actor.Role, domain.TicketStatusResolved, domain.TicketStatusInProgress) {
		return apperrors.NewPermissionDenied("only the requester reopens a resolved ticket")
	}

	now := time.Now()
	ticket.Resolution = nil
	if ticket.ResolvedBy != nil {
		assignee := *ticket.ResolvedBy
		ticket.AssigneeID = &assignee
		ticket.AssignedAt = &now
		ticket.Status = domain.TicketStatusInProgress
	} else {
		// No analyst to hand back to; the ticket rejoins the unassigned queue.
		ticket.AssigneeID = nil
		ticket.AssignedAt = nil
		ticket.Status = domain.TicketStatusNew
	}
	ticket.ResolvedBy = nil

	if err := s.tickets.Update(ctx, ticket, domain.TicketStatusResolved); err != nil {
		return s.mapUpdateErr(err, string(domain.TicketStatusResolved), string(ticket.Status))
	}

	if ticket.Status == domain.TicketStatusInProgress {
		s.StartSLATracking(ctx, ticket)
	}
	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketReopened,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusResolved,
			NewStatus: ticket.Status,
		},
	})
	return nil
}

// StartSLATracking computes deadlines from the tenant's SLA policy (or the
// configured defaults) and registers them. Scheduling failures degrade to
// no SLA tracking; they never fail the triggering transition.
func (s *LifecycleService) StartSLATracking(ctx context.Context, ticket *domain.Ticket) {
	if s.registry == nil {
		return
	}
	response := s.slaCfg.ResponseTarget()
	resolution := s.slaCfg.ResolutionTarget()
	if s.tenants != nil {
		policy, err := s.tenants.GetSLAPolicy(ctx, ticket.TenantID)
		switch {
		case err == nil:
			response = time.Duration(policy.ResponseTimeHours) * time.Hour
			resolution = time.Duration(policy.ResolutionTimeHours) * time.Hour
		case errors.Is(err, repository.ErrNotFound):
			// no tenant override, defaults apply
		default:
			s.logger.Warn("sla policy lookup failed; using defaults",
				zap.String("tenant_id", ticket.TenantID), zap.Error(err))
		}
	}
	now := time.Now()
	s.registry.Start(ticket.TenantID, ticket.ID, now.Add(response), now.Add(resolution))
}

func (s *LifecycleService) getVisible(ctx context.Context, tenantID string, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := s.checkTenant(actor, tenantID); err != nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	var ticket *domain.Ticket
	var err error
	if actor.Role.CrossTenant() {
		ticket, err = s.tickets.GetAnyTenant(ctx, ticketID)
	} else {
		ticket, err = s.tickets.GetByID(ctx, tenantID, ticketID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.CanSee(ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *LifecycleService) checkTenant(actor domain.Actor, tenantID string) error {
	if actor.TenantID == tenantID || actor.Role.CrossTenant() {
		return nil
	}
	return apperrors.NewNotFound("ticket", nil)
}

func (s *LifecycleService) mapUpdateErr(err error, from, to string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, repository.ErrConflict):
		// The ticket moved under us; the requested transition is no longer
		// valid from its current state.
		return apperrors.NewInvalidStateTransition(from, to)
	default:
		return apperrors.MapError(err)
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, actor domain.Actor, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Actor = events.Actor{ID: actor.ID, Role: actor.Role}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
