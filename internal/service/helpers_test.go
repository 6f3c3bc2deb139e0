package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/sla"
)

const testTenant = "tenant-acme"

var (
	requester      = domain.Actor{ID: "user-1", TenantID: testTenant, Role: domain.RoleEndUser}
	itAnalyst      = domain.Actor{ID: "analyst-1", TenantID: testTenant, Role: domain.RoleITAnalyst}
	secAnalyst     = domain.Actor{ID: "analyst-sec", TenantID: testTenant, Role: domain.RoleSecurityAnalyst}
	tenantAdmin    = domain.Actor{ID: "admin-1", TenantID: testTenant, Role: domain.RoleTenantAdmin}
	otherTenant    = domain.Actor{ID: "admin-2", TenantID: "tenant-other", Role: domain.RoleTenantAdmin}
	superAdmin     = domain.Actor{ID: "root-1", TenantID: "tenant-hq", Role: domain.RoleSuperAdmin}
	otherRequester = domain.Actor{ID: "user-2", TenantID: testTenant, Role: domain.RoleEndUser}
)

// eventRecorder captures published events for assertions. Safe for use
// from timer goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type testEnv struct {
	store      *repository.MemStore
	dispatcher events.Dispatcher
	recorder   *eventRecorder
	registry   *sla.Registry
	lifecycle  *LifecycleService
	assignment *AssignmentService
	queue      *QueueService
}

func newTestEnv() *testEnv {
	store := repository.NewMemStore()
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	events.SubscribeAll(dispatcher, recorder.handle)

	registry := sla.NewRegistry(dispatcher, zap.NewNop())
	policy := auth.NewPolicy(false)
	slaCfg := config.SLAConfig{
		DefaultResponseHours:   4,
		DefaultResolutionHours: 24,
		AtRiskWindowMinutes:    60,
	}

	queue := NewQueueService(store.Tickets(), registry, slaCfg)
	lifecycle := NewLifecycleService(LifecycleDependencies{
		TicketRepo:  store.Tickets(),
		CommentRepo: store.Comments(),
		TenantRepo:  store.Tenants(),
		Dispatcher:  dispatcher,
		SLARegistry: registry,
		Policy:      policy,
		Queue:       queue,
		SLAConfig:   slaCfg,
	})
	assignment := NewAssignmentService(AssignmentDependencies{
		TicketRepo: store.Tickets(),
		Lifecycle:  lifecycle,
		Dispatcher: dispatcher,
		Policy:     policy,
	})

	return &testEnv{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		registry:   registry,
		lifecycle:  lifecycle,
		assignment: assignment,
		queue:      queue,
	}
}

func (e *testEnv) createTicket(ctx context.Context, severity domain.Severity) *domain.Ticket {
	ticket, err := e.lifecycle.CreateTicket(ctx, testTenant, requester, TicketCreateInput{
		Title:       "printer on fire",
		Description: "smoke is coming out of the tray",
		Category:    domain.CategoryHardware,
		Severity:    severity,
	})
	if err != nil {
		panic(err)
	}
	return ticket
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }
