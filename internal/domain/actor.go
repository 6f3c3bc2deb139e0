package domain

// Role enumerates caller roles recognized by the engine.
type Role string

const (
	RoleEndUser         Role = "END_USER"
	RoleITAnalyst       Role = "IT_ANALYST"
	RoleSecurityAnalyst Role = "SECURITY_ANALYST"
	RoleTenantAdmin     Role = "TENANT_ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

// Analyst reports whether the role works tickets from the queue.
func (r Role) Analyst() bool {
	return r == RoleITAnalyst || r == RoleSecurityAnalyst
}

// Admin reports whether the role carries administrative privileges.
func (r Role) Admin() bool {
	return r == RoleTenantAdmin || r == RoleSuperAdmin
}

// CrossTenant reports whether the role may operate outside its own tenant.
// Only super admins have this capability; every other role is hard-scoped
// to its tenant.
func (r Role) CrossTenant() bool {
	return r == RoleSuperAdmin
}

// Actor identifies the caller of a service operation.
type Actor struct {
	ID       string
	TenantID string
	Role     Role
}

// CanSee reports whether the actor may observe a ticket at all, factoring
// in tenant scoping, requester ownership and security classification.
func (a Actor) CanSee(t *Ticket) bool {
	if !a.Role.CrossTenant() && a.TenantID != t.TenantID {
		return false
	}
	switch a.Role {
	case RoleEndUser:
		return t.RequesterID == a.ID
	case RoleITAnalyst:
		return !t.Category.SecurityClassified()
	default:
		return true
	}
}

// SLAPolicy is a tenant-level configuration for response and resolution
// targets, in hours.
type SLAPolicy struct {
	TenantID            string
	ResponseTimeHours   int
	ResolutionTimeHours int
}
