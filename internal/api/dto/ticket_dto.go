package dto

import (
	"time"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      domain.Category `json:"category"`
	Severity      domain.Severity `json:"severity"`
	DeviceID      *string         `json:"device_id,omitempty"`
	ContactMethod *string         `json:"contact_method,omitempty"`
	PhoneNumber   *string         `json:"phone_number,omitempty"`
}

// UpdateTicketRequest payload; nil fields are left untouched.
type UpdateTicketRequest struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Severity    *domain.Severity     `json:"severity,omitempty"`
	Status      *domain.TicketStatus `json:"status,omitempty"`
	Resolution  *string              `json:"resolution,omitempty"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID            string              `json:"id"`
	TenantID      string              `json:"tenant_id"`
	RequesterID   string              `json:"requester_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Category      domain.Category     `json:"category"`
	Severity      domain.Severity     `json:"severity"`
	Priority      string              `json:"priority"`
	DeviceID      *string             `json:"device_id,omitempty"`
	ContactMethod *string             `json:"contact_method,omitempty"`
	PhoneNumber   *string             `json:"phone_number,omitempty"`
	Status        domain.TicketStatus `json:"status"`
	AssigneeID    *string             `json:"assignee_id,omitempty"`
	AssignedAt    *time.Time          `json:"assigned_at,omitempty"`
	Resolution    *string             `json:"resolution,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketListResponse wraps a listing with its total.
type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int              `json:"total"`
}

// FromTicket maps a domain ticket to its response form.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		TenantID:      t.TenantID,
		RequesterID:   t.RequesterID,
		Title:         t.Title,
		Description:   t.Description,
		Category:      t.Category,
		Severity:      t.Severity,
		Priority:      t.Priority,
		DeviceID:      t.DeviceID,
		ContactMethod: t.ContactMethod,
		PhoneNumber:   t.PhoneNumber,
		Status:        t.Status,
		AssigneeID:    t.AssigneeID,
		AssignedAt:    t.AssignedAt,
		Resolution:    t.Resolution,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// FromComment maps a domain comment to its response form.
func FromComment(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
	}
}
