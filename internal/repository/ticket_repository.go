package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// ErrNotFound is returned when a row is absent or outside the tenant scope
// of the query. Callers cannot tell the two apart.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write lost: the row's guard
// columns no longer match what the caller expected.
var ErrConflict = errors.New("conditional update conflict")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID       *string
	AssigneeID        *string
	Unassigned        *bool
	Statuses          []domain.TicketStatus
	Severities        []domain.Severity
	Categories        []domain.Category
	ExcludeCategories []domain.Category
	SearchTerm        *string
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	Limit             int
	Offset            int
}

// TicketRepository encapsulates ticket persistence. All reads and writes
// except GetAnyTenant are tenant-scoped; the conditional operations
// (Update, Claim) are the linearization point for per-ticket mutations.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	// GetAnyTenant bypasses tenant scoping. Reserved for the super-admin
	// cross-tenant capability.
	GetAnyTenant(ctx context.Context, id string) (*domain.Ticket, error)
	// Update persists the ticket's mutable fields conditioned on the stored
	// status still being expectedStatus. Returns ErrConflict if the guard
	// fails, ErrNotFound if the ticket is absent from the tenant.
	Update(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error
	// Claim atomically sets assignee and moves NEW -> IN_PROGRESS,
	// conditioned on the ticket being unassigned at the moment of the
	// write. Exactly one of N concurrent claimers succeeds; the rest get
	// ErrConflict.
	Claim(ctx context.Context, tenantID, ticketID, assigneeID string) (*domain.Ticket, error)
	List(ctx context.Context, tenantID string, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, tenantID string, filter TicketFilter) (int, error)
}

const ticketColumns = `id, tenant_id, requester_id, title, description, category, severity, priority,
               device_id, contact_method, phone_number, status, assignee_id, assigned_at,
               resolution, resolved_by, seq, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, requester_id, title, description, category, severity, priority,
                             device_id, contact_method, phone_number, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, seq, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.RequesterID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Severity,
		ticket.Priority,
		ticket.DeviceID,
		ticket.ContactMethod,
		ticket.PhoneNumber,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.Seq, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 AND tenant_id=$2`, ticketColumns)
	return r.fetchSingle(ctx, query, id, tenantID)
}

func (r *ticketRepository) GetAnyTenant(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, severity=$4, priority=$5,
            device_id=$6, contact_method=$7, phone_number=$8, status=$9, assignee_id=$10,
            assigned_at=$11, resolution=$12, resolved_by=$13, updated_at=NOW()
        WHERE id=$14 AND tenant_id=$15 AND status=$16
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Severity,
		ticket.Priority,
		ticket.DeviceID,
		ticket.ContactMethod,
		ticket.PhoneNumber,
		ticket.Status,
		ticket.AssigneeID,
		ticket.AssignedAt,
		ticket.Resolution,
		ticket.ResolvedBy,
		ticket.ID,
		ticket.TenantID,
		expectedStatus,
	).Scan(&ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.classifyMiss(ctx, ticket.TenantID, ticket.ID)
	}
	return err
}

func (r *ticketRepository) Claim(ctx context.Context, tenantID, ticketID, assigneeID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE tickets SET assignee_id=$1, status=$2, assigned_at=NOW(), updated_at=NOW()
        WHERE id=$3 AND tenant_id=$4 AND assignee_id IS NULL AND status=$5
        RETURNING %s`, ticketColumns)
	ticket, err := r.scanRow(r.pool.QueryRow(ctx, query,
		assigneeID,
		domain.TicketStatusInProgress,
		ticketID,
		tenantID,
		domain.TicketStatusNew,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyMiss(ctx, tenantID, ticketID)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// classifyMiss distinguishes a missing row from a guard failure after a
// conditional write matched nothing.
func (r *ticketRepository) classifyMiss(ctx context.Context, tenantID, ticketID string) error {
	if _, err := r.GetByID(ctx, tenantID, ticketID); err != nil {
		return err
	}
	return ErrConflict
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := r.scanRow(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) scanRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.RequesterID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Severity,
		&ticket.Priority,
		&ticket.DeviceID,
		&ticket.ContactMethod,
		&ticket.PhoneNumber,
		&ticket.Status,
		&ticket.AssigneeID,
		&ticket.AssignedAt,
		&ticket.Resolution,
		&ticket.ResolvedBy,
		&ticket.Seq,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, tenantID string, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := buildTicketClauses(tenantID, filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY seq ASC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, tenantID string, filter TicketFilter) (int, error) {
	clauses, args := buildTicketClauses(tenantID, filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))
	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func buildTicketClauses(tenantID string, filter TicketFilter) ([]string, []any) {
	args := []any{tenantID}
	clauses := []string{"tenant_id=$1"}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Unassigned != nil {
		if *filter.Unassigned {
			clauses = append(clauses, "assignee_id IS NULL")
		} else {
			clauses = append(clauses, "assignee_id IS NOT NULL")
		}
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			args = append(args, sev)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, cat := range filter.Categories {
			args = append(args, cat)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	for _, cat := range filter.ExcludeCategories {
		args = append(args, cat)
		clauses = append(clauses, fmt.Sprintf("category <> $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	return clauses, args
}
