package auth

import "github.com/spec-kit/opsdesk/internal/domain"

// transitionKey identifies one edge of the ticket state machine.
type transitionKey struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

// Policy is the single authorization table consulted for every status
// transition: role x transition -> allowed. Role checks are not re-derived
// at call sites.
type Policy struct {
	allowed map[transitionKey]map[domain.Role]bool
}

// NewPolicy builds the transition table. analystMayClose optionally extends
// manual closure to analysts, per tenant operating policy.
func NewPolicy(analystMayClose bool) *Policy {
	p := &Policy{allowed: make(map[transitionKey]map[domain.Role]bool)}

	assign := []domain.Role{domain.RoleITAnalyst, domain.RoleSecurityAnalyst, domain.RoleTenantAdmin, domain.RoleSuperAdmin}
	work := []domain.Role{domain.RoleITAnalyst, domain.RoleSecurityAnalyst, domain.RoleTenantAdmin, domain.RoleSuperAdmin}
	closers := []domain.Role{domain.RoleTenantAdmin, domain.RoleSuperAdmin}
	if analystMayClose {
		closers = append(closers, domain.RoleITAnalyst, domain.RoleSecurityAnalyst)
	}

	// Assignment (NEW -> IN_PROGRESS) goes through the assignment
	// coordinator, which consults this same table.
	p.grant(domain.TicketStatusNew, domain.TicketStatusInProgress, assign...)

	p.grant(domain.TicketStatusInProgress, domain.TicketStatusAwaitingResponse, work...)
	p.grant(domain.TicketStatusInProgress, domain.TicketStatusResolved, work...)
	p.grant(domain.TicketStatusAwaitingResponse, domain.TicketStatusResolved, work...)

	// Reopening: only the requester's comment on a RESOLVED ticket.
	p.grant(domain.TicketStatusResolved, domain.TicketStatusInProgress, domain.RoleEndUser)

	for _, from := range []domain.TicketStatus{
		domain.TicketStatusNew,
		domain.TicketStatusInProgress,
		domain.TicketStatusAwaitingResponse,
		domain.TicketStatusResolved,
	} {
		p.grant(from, domain.TicketStatusClosed, closers...)
	}

	return p
}

func (p *Policy) grant(from, to domain.TicketStatus, roles ...domain.Role) {
	key := transitionKey{from: from, to: to}
	set, ok := p.allowed[key]
	if !ok {
		set = make(map[domain.Role]bool, len(roles))
		p.allowed[key] = set
	}
	for _, role := range roles {
		set[role] = true
	}
}

// TransitionDefined reports whether the state machine has the edge at all,
// for any role.
func (p *Policy) TransitionDefined(from, to domain.TicketStatus) bool {
	return len(p.allowed[transitionKey{from: from, to: to}]) > 0
}

// Allows reports whether the role may perform the transition.
func (p *Policy) Allows(role domain.Role, from, to domain.TicketStatus) bool {
	return p.allowed[transitionKey{from: from, to: to}][role]
}
