package events

import (
	"time"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketAwaiting     EventType = "ticket_awaiting_response"
	EventTicketResolved     EventType = "ticket_resolved"
	EventTicketReopened     EventType = "ticket_reopened"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketCommentAdded EventType = "ticket_comment_added"
	EventSLABreached        EventType = "sla_breached"
)

// All lists every event type, for handlers that subscribe to the full stream.
func All() []EventType {
	return []EventType{
		EventTicketCreated,
		EventTicketAssigned,
		EventTicketAwaiting,
		EventTicketResolved,
		EventTicketReopened,
		EventTicketClosed,
		EventTicketCommentAdded,
		EventSLABreached,
	}
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string          `json:"title"`
	Category domain.Category `json:"category"`
	Severity domain.Severity `json:"severity"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
}

// TicketStatusChangedPayload payload for awaiting/resolved/reopened/closed.
type TicketStatusChangedPayload struct {
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	Resolution *string             `json:"resolution,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID  string `json:"comment_id"`
	AuthorID   string `json:"author_id"`
	IsInternal bool   `json:"is_internal"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Kind  string    `json:"kind"`
	DueAt time.Time `json:"due_at"`
}
