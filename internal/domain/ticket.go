package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew              TicketStatus = "NEW"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusAwaitingResponse TicketStatus = "AWAITING_RESPONSE"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusClosed           TicketStatus = "CLOSED"
)

// Open reports whether the ticket still participates in analyst queues.
func (s TicketStatus) Open() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusAwaitingResponse:
		return true
	}
	return false
}

// Severity classifies how urgent a ticket is. It is the primary queue sort key.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank returns the queue ordering rank for a severity, lower sorting first.
// Unknown severities rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// Valid reports whether the severity is one of the known values.
func (s Severity) Valid() bool {
	return s.Rank() < 4
}

// DisplayPriority derives the display-only priority label from severity.
func (s Severity) DisplayPriority() string {
	switch s {
	case SeverityCritical:
		return "P1"
	case SeverityHigh:
		return "P2"
	case SeverityMedium:
		return "P3"
	default:
		return "P4"
	}
}

// Category classifies the subject matter of a ticket.
type Category string

const (
	CategoryGeneral  Category = "GENERAL"
	CategoryHardware Category = "HARDWARE"
	CategorySoftware Category = "SOFTWARE"
	CategoryNetwork  Category = "NETWORK"
	CategorySecurity Category = "SECURITY"
)

// SecurityClassified reports whether the category is visible only to
// security analysts and admins.
func (c Category) SecurityClassified() bool {
	return c == CategorySecurity
}

// Ticket is the aggregate root for support requests. TenantID is immutable
// after creation. Seq is assigned by the store on insert and is the
// deterministic tie-break when severity and created_at are both equal.
type Ticket struct {
	ID          string
	TenantID    string
	RequesterID string
	Title       string
	Description string
	Category    Category
	Severity    Severity
	Priority    string

	DeviceID      *string
	ContactMethod *string
	PhoneNumber   *string

	Status     TicketStatus
	AssigneeID *string
	AssignedAt *time.Time
	Resolution *string
	// ResolvedBy keeps the analyst who resolved the ticket so a reopening
	// can hand the work back to them.
	ResolvedBy *string

	Seq       int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assigned reports whether the ticket currently has an assignee.
func (t *Ticket) Assigned() bool {
	return t.AssigneeID != nil
}
