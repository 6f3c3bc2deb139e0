// Package sla schedules response and resolution deadlines for tickets and
// reports breaches. The registry never mutates ticket state; breaches are
// surfaced as events and as flags the queue metrics read.
package sla

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/events"
)

// Deadline kinds reported in breach events.
const (
	KindResponse   = "response"
	KindResolution = "resolution"
)

// TimerStatus is a read-side snapshot of a ticket's SLA tracking.
type TimerStatus struct {
	ResponseDueAt      time.Time
	ResolutionDueAt    time.Time
	ResponseBreached   bool
	ResolutionBreached bool
}

// Breached reports whether either deadline has fired.
func (s TimerStatus) Breached() bool {
	return s.ResponseBreached || s.ResolutionBreached
}

// AtRisk reports whether a not-yet-breached deadline falls inside the
// given window from now.
func (s TimerStatus) AtRisk(now time.Time, window time.Duration) bool {
	horizon := now.Add(window)
	if !s.ResponseBreached && s.ResponseDueAt.After(now) && !s.ResponseDueAt.After(horizon) {
		return true
	}
	if !s.ResolutionBreached && s.ResolutionDueAt.After(now) && !s.ResolutionDueAt.After(horizon) {
		return true
	}
	return false
}

type entry struct {
	tenantID        string
	status          TimerStatus
	responseTimer   *time.Timer
	resolutionTimer *time.Timer
}

// Registry tracks SLA deadlines per ticket. It is owned and injected by
// whichever process boots the service; ResetAll gives tests and shutdown a
// single teardown point. Timers fire at-or-after their deadline.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*entry
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(dispatcher events.Dispatcher, logger *zap.Logger) *Registry {
	return &Registry{
		entries:    make(map[string]*entry),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start registers both deadlines for a ticket. Re-starting replaces any
// prior schedule for the same ticket, breach flags included.
func (r *Registry) Start(tenantID, ticketID string, responseDue, resolutionDue time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.entries[ticketID]; ok {
		prior.stop()
	}

	e := &entry{
		tenantID: tenantID,
		status: TimerStatus{
			ResponseDueAt:   responseDue,
			ResolutionDueAt: resolutionDue,
		},
	}
	e.responseTimer = time.AfterFunc(time.Until(responseDue), func() {
		r.breach(ticketID, KindResponse, responseDue)
	})
	e.resolutionTimer = time.AfterFunc(time.Until(resolutionDue), func() {
		r.breach(ticketID, KindResolution, resolutionDue)
	})
	r.entries[ticketID] = e
}

// Cancel removes any pending deadlines for the ticket. Safe to call when
// none exist.
func (r *Registry) Cancel(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ticketID]; ok {
		e.stop()
		delete(r.entries, ticketID)
	}
}

// ResetAll cancels every tracked deadline. Idempotent; used for controlled
// shutdown and test isolation.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.stop()
		delete(r.entries, id)
	}
}

// Status returns the tracking snapshot for a ticket, if any.
func (r *Registry) Status(ticketID string) (TimerStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ticketID]
	if !ok {
		return TimerStatus{}, false
	}
	return e.status, true
}

// Tracked returns the number of tickets with an active schedule.
func (r *Registry) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) breach(ticketID, kind string, dueAt time.Time) {
	r.mu.Lock()
	e, ok := r.entries[ticketID]
	if !ok {
		r.mu.Unlock()
		return
	}
	switch kind {
	case KindResponse:
		e.status.ResponseBreached = true
	case KindResolution:
		e.status.ResolutionBreached = true
	}
	tenantID := e.tenantID
	r.mu.Unlock()

	r.logger.Warn("sla deadline breached",
		zap.String("ticket_id", ticketID),
		zap.String("kind", kind),
		zap.Time("due_at", dueAt))

	if r.dispatcher == nil {
		return
	}
	_ = r.dispatcher.Publish(context.Background(), events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLABreached,
		TenantID:  tenantID,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   events.SLABreachedPayload{Kind: kind, DueAt: dueAt},
	})
}

func (e *entry) stop() {
	if e.responseTimer != nil {
		e.responseTimer.Stop()
	}
	if e.resolutionTimer != nil {
		e.resolutionTimer.Stop()
	}
}
