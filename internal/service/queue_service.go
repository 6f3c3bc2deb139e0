package service

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/sla"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// QueueService produces ordered, role-scoped views of open tickets.
// Ordering is recomputed from a store snapshot on every call; there is no
// cached queue, so a new critical ticket or a fresh assignment shows up on
// the very next read.
type QueueService struct {
	tickets  repository.TicketRepository
	registry *sla.Registry
	slaCfg   config.SLAConfig
}

// QueueMetrics is a pure read-side projection over the visible ticket set.
type QueueMetrics struct {
	Total       int                         `json:"total"`
	Unassigned  int                         `json:"unassigned"`
	BySeverity  map[domain.Severity]int     `json:"by_severity"`
	ByStatus    map[domain.TicketStatus]int `json:"by_status"`
	SLAAtRisk   int                         `json:"sla_at_risk"`
	SLABreached int                         `json:"sla_breached"`
}

// NewQueueService constructs the service.
func NewQueueService(tickets repository.TicketRepository, registry *sla.Registry, slaCfg config.SLAConfig) *QueueService {
	return &QueueService{tickets: tickets, registry: registry, slaCfg: slaCfg}
}

// Queue returns the analyst work queue: unassigned tickets first, ordered
// by severity then age (oldest first within a tier), followed by assigned
// tickets in assignment order. An assigned ticket always sorts after every
// unassigned one regardless of severity.
func (q *QueueService) Queue(ctx context.Context, tenantID string, actor domain.Actor) ([]domain.Ticket, error) {
	snapshot, err := q.visibleOpenTickets(ctx, tenantID, actor)
	if err != nil {
		return nil, err
	}

	unassigned := make([]domain.Ticket, 0, len(snapshot))
	assigned := make([]domain.Ticket, 0, len(snapshot))
	for _, ticket := range snapshot {
		if ticket.Assigned() {
			assigned = append(assigned, ticket)
		} else {
			unassigned = append(unassigned, ticket)
		}
	}

	// The snapshot arrives in insertion (seq) order; stable sorts keep seq
	// as the deterministic tie-break for true ties.
	sort.SliceStable(unassigned, func(i, j int) bool {
		ri, rj := unassigned[i].Severity.Rank(), unassigned[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return unassigned[i].CreatedAt.Before(unassigned[j].CreatedAt)
	})
	sort.SliceStable(assigned, func(i, j int) bool {
		return assignedAt(assigned[i]).Before(assignedAt(assigned[j]))
	})

	return append(unassigned, assigned...), nil
}

// Metrics computes aggregate counts over the same visible set the queue
// uses, including SLA at-risk and breached totals for dashboards.
func (q *QueueService) Metrics(ctx context.Context, tenantID string, actor domain.Actor) (*QueueMetrics, error) {
	snapshot, err := q.visibleOpenTickets(ctx, tenantID, actor)
	if err != nil {
		return nil, err
	}

	metrics := &QueueMetrics{
		BySeverity: make(map[domain.Severity]int),
		ByStatus:   make(map[domain.TicketStatus]int),
	}
	now := time.Now()
	window := q.slaCfg.AtRiskWindow()
	for _, ticket := range snapshot {
		metrics.Total++
		metrics.BySeverity[ticket.Severity]++
		metrics.ByStatus[ticket.Status]++
		if !ticket.Assigned() {
			metrics.Unassigned++
		}
		if q.registry == nil {
			continue
		}
		if status, ok := q.registry.Status(ticket.ID); ok {
			switch {
			case status.Breached():
				metrics.SLABreached++
			case status.AtRisk(now, window):
				metrics.SLAAtRisk++
			}
		}
	}
	return metrics, nil
}

func (q *QueueService) visibleOpenTickets(ctx context.Context, tenantID string, actor domain.Actor) ([]domain.Ticket, error) {
	if actor.Role == domain.RoleEndUser {
		return nil, apperrors.NewPermissionDenied("queue views are staff-only")
	}
	if actor.TenantID != tenantID && !actor.Role.CrossTenant() {
		return nil, apperrors.NewPermissionDenied("queue views are tenant-scoped")
	}

	filter := repository.TicketFilter{
		Statuses: []domain.TicketStatus{
			domain.TicketStatusNew,
			domain.TicketStatusInProgress,
			domain.TicketStatusAwaitingResponse,
		},
		// Snapshot the whole open set; ordering happens here, not in SQL.
		Limit: 10000,
	}
	if actor.Role == domain.RoleITAnalyst {
		filter.ExcludeCategories = []domain.Category{domain.CategorySecurity}
	}

	tickets, err := q.tickets.List(ctx, tenantID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func assignedAt(t domain.Ticket) time.Time {
	if t.AssignedAt != nil {
		return *t.AssignedAt
	}
	return t.UpdatedAt
}
