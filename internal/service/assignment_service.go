package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/repository"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// AssignmentService resolves self-assignment races: of N concurrent
// claimers of the same ticket, exactly one wins. The decision is made by
// the store's compare-and-set, never by a read-then-write in service code.
type AssignmentService struct {
	tickets    repository.TicketRepository
	lifecycle  *LifecycleService
	dispatcher events.Dispatcher
	policy     *auth.Policy
	logger     *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	Lifecycle  *LifecycleService
	Dispatcher events.Dispatcher
	Policy     *auth.Policy
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		lifecycle:  deps.Lifecycle,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		logger:     logger,
	}
}

// SelfAssign claims an unassigned NEW ticket for the acting analyst,
// moving it to IN_PROGRESS. Losers of a concurrent race receive
// AssignmentConflict and the ticket is untouched from their perspective.
// The coordinator does not retry; callers re-fetch and pick another ticket.
func (s *AssignmentService) SelfAssign(ctx context.Context, tenantID string, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if !s.policy.Allows(actor.Role, domain.TicketStatusNew, domain.TicketStatusInProgress) {
		return nil, apperrors.NewPermissionDenied("role may not claim tickets")
	}
	if actor.TenantID != tenantID && !actor.Role.CrossTenant() {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	// Visibility check before the claim; the CAS below remains the sole
	// arbiter of the race.
	current, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.CanSee(current) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	ticket, err := s.tickets.Claim(ctx, tenantID, ticketID, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, apperrors.NewAssignmentConflict(ticketID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		default:
			return nil, apperrors.MapError(err)
		}
	}

	// First entry into IN_PROGRESS starts the SLA clock.
	if s.lifecycle != nil {
		s.lifecycle.StartSLATracking(ctx, ticket)
	}

	s.publishAssigned(ctx, actor, ticket)
	return ticket, nil
}

func (s *AssignmentService) publishAssigned(ctx context.Context, actor domain.Actor, ticket *domain.Ticket) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TenantID:  ticket.TenantID,
		TicketID:  ticket.ID,
		Actor:     events.Actor{ID: actor.ID, Role: actor.Role},
		Timestamp: time.Now(),
		Payload:   events.TicketAssignedPayload{AssigneeID: actor.ID},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("assignment event publish failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}
