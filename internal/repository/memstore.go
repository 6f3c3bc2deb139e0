package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// MemStore is a mutex-guarded in-memory implementation of the repository
// interfaces. It backs tests and DSN-less development boots, and honors the
// same conditional-write semantics as the postgres implementation: Claim
// and Update are atomic with respect to each other.
type MemStore struct {
	mu         sync.Mutex
	tickets    map[string]*domain.Ticket
	comments   map[string][]domain.Comment
	policies   map[string]domain.SLAPolicy
	ticketSeq  int64
	commentSeq int64
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		tickets:  make(map[string]*domain.Ticket),
		comments: make(map[string][]domain.Comment),
		policies: make(map[string]domain.SLAPolicy),
	}
}

// Tickets returns the store as a TicketRepository.
func (s *MemStore) Tickets() TicketRepository { return (*memTickets)(s) }

// Comments returns the store as a CommentRepository.
func (s *MemStore) Comments() CommentRepository { return (*memComments)(s) }

// Tenants returns the store as a TenantRepository.
func (s *MemStore) Tenants() TenantRepository { return (*memTenants)(s) }

// PutSLAPolicy seeds a tenant SLA policy.
func (s *MemStore) PutSLAPolicy(policy domain.SLAPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.TenantID] = policy
}

type memTickets MemStore

func (s *memTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.ticketSeq++
	ticket.ID = uuid.NewString()
	ticket.Seq = s.ticketSeq
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	stored := *ticket
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *memTickets) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[id]
	if !ok || stored.TenantID != tenantID {
		return nil, ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *memTickets) GetAnyTenant(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *memTickets) Update(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[ticket.ID]
	if !ok || stored.TenantID != ticket.TenantID {
		return ErrNotFound
	}
	if stored.Status != expectedStatus {
		return ErrConflict
	}
	ticket.UpdatedAt = time.Now()
	ticket.Seq = stored.Seq
	ticket.CreatedAt = stored.CreatedAt
	copied := *ticket
	s.tickets[ticket.ID] = &copied
	return nil
}

func (s *memTickets) Claim(ctx context.Context, tenantID, ticketID, assigneeID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[ticketID]
	if !ok || stored.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if stored.AssigneeID != nil || stored.Status != domain.TicketStatusNew {
		return nil, ErrConflict
	}
	now := time.Now()
	assignee := assigneeID
	stored.AssigneeID = &assignee
	stored.Status = domain.TicketStatusInProgress
	stored.AssignedAt = &now
	stored.UpdatedAt = now
	copied := *stored
	return &copied, nil
}

func (s *memTickets) List(ctx context.Context, tenantID string, filter TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	matched := make([]domain.Ticket, 0)
	for _, stored := range s.tickets {
		if stored.TenantID != tenantID || !matchesFilter(stored, filter) {
			continue
		}
		matched = append(matched, *stored)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *memTickets) Count(ctx context.Context, tenantID string, filter TicketFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, stored := range s.tickets {
		if stored.TenantID == tenantID && matchesFilter(stored, filter) {
			total++
		}
	}
	return total, nil
}

func matchesFilter(t *domain.Ticket, filter TicketFilter) bool {
	if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if filter.Unassigned != nil && *filter.Unassigned == t.Assigned() {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
		return false
	}
	if len(filter.Severities) > 0 && !containsSeverity(filter.Severities, t.Severity) {
		return false
	}
	if len(filter.Categories) > 0 && !containsCategory(filter.Categories, t.Category) {
		return false
	}
	if containsCategory(filter.ExcludeCategories, t.Category) {
		return false
	}
	if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && t.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(set []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsSeverity(set []domain.Severity, v domain.Severity) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsCategory(set []domain.Category, v domain.Category) bool {
	for _, c := range set {
		if c == v {
			return true
		}
	}
	return false
}

type memComments MemStore

func (s *memComments) Create(ctx context.Context, comment *domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commentSeq++
	comment.ID = uuid.NewString()
	comment.Seq = s.commentSeq
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	s.comments[comment.TicketID] = append(s.comments[comment.TicketID], *comment)
	return nil
}

func (s *memComments) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	s.mu.Lock()
	result := append([]domain.Comment(nil), s.comments[ticketID]...)
	s.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

type memTenants MemStore

func (s *memTenants) GetSLAPolicy(ctx context.Context, tenantID string) (*domain.SLAPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := policy
	return &copied, nil
}
