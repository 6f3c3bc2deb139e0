package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/opsdesk/internal/domain"
	"github.com/spec-kit/opsdesk/internal/events"
	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

func TestCreateTicket(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.lifecycle.CreateTicket(ctx, testTenant, requester, TicketCreateInput{
		Title:       "vpn down",
		Description: "cannot reach internal network",
		Category:    domain.CategoryNetwork,
		Severity:    domain.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, testTenant, ticket.TenantID)
	assert.Equal(t, requester.ID, ticket.RequesterID)
	assert.Equal(t, "P2", ticket.Priority)
	assert.Nil(t, ticket.AssigneeID)
	assert.NotEmpty(t, ticket.ID)

	created := env.recorder.ofType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, ticket.ID, created[0].TicketID)
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.lifecycle.CreateTicket(ctx, testTenant, requester, TicketCreateInput{
		Title:    "   ",
		Category: domain.CategoryGeneral,
		Severity: domain.Severity("ENORMOUS"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestCreateTicketWrongTenant(t *testing.T) {
	env := newTestEnv()

	_, err := env.lifecycle.CreateTicket(context.Background(), "tenant-other", requester, TicketCreateInput{
		Title:       "t",
		Description: "d",
		Category:    domain.CategoryGeneral,
		Severity:    domain.SeverityLow,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePermissionDenied))
}

func TestCrossTenantGetIsNotFound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityMedium)

	_, err := env.lifecycle.GetTicket(ctx, otherTenant.TenantID, otherTenant, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound),
		"cross-tenant access must be indistinguishable from a missing ticket")

	// Super admins do cross tenant boundaries.
	fetched, err := env.lifecycle.GetTicket(ctx, testTenant, superAdmin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, fetched.ID)
}

func TestSecurityTicketsHiddenFromITAnalysts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.lifecycle.CreateTicket(ctx, testTenant, requester, TicketCreateInput{
		Title:       "suspicious login",
		Description: "audit trail anomaly",
		Category:    domain.CategorySecurity,
		Severity:    domain.SeverityCritical,
	})
	require.NoError(t, err)

	_, err = env.lifecycle.GetTicket(ctx, testTenant, itAnalyst, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	fetched, err := env.lifecycle.GetTicket(ctx, testTenant, secAnalyst, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, fetched.ID)
}

func TestResolveRequiresResolution(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityHigh)

	_, err := env.assignment.SelfAssign(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)

	_, err = env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status: statusPtr(domain.TicketStatusResolved),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	resolved, err := env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status:     statusPtr(domain.TicketStatusResolved),
		Resolution: strPtr("replaced the fuser unit"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	assert.Nil(t, resolved.AssigneeID, "resolved tickets carry no assignee")
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, itAnalyst.ID, *resolved.ResolvedBy)
	require.Len(t, env.recorder.ofType(events.EventTicketResolved), 1)
}

func TestAwaitingResponseRequiresAssignee(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityMedium)

	// NEW -> AWAITING_RESPONSE is not an edge of the state machine.
	_, err := env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status: statusPtr(domain.TicketStatusAwaitingResponse),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidStateTransition))

	_, err = env.assignment.SelfAssign(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)

	awaiting, err := env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status: statusPtr(domain.TicketStatusAwaitingResponse),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAwaitingResponse, awaiting.Status)
	assert.True(t, awaiting.Assigned())
}

func TestDirectPatchToInProgressRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityLow)

	_, err := env.lifecycle.UpdateTicket(ctx, testTenant, tenantAdmin, ticket.ID, TicketPatch{
		Status: statusPtr(domain.TicketStatusInProgress),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidStateTransition),
		"IN_PROGRESS is reachable only through assignment or reopening")
}

func TestManualCloseIsAdminOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityMedium)

	_, err := env.lifecycle.CloseTicket(ctx, testTenant, itAnalyst, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePermissionDenied))

	closed, err := env.lifecycle.CloseTicket(ctx, testTenant, tenantAdmin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.Nil(t, closed.AssigneeID)
	require.Len(t, env.recorder.ofType(events.EventTicketClosed), 1)
}

func TestClosedIsTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityMedium)

	_, err := env.lifecycle.CloseTicket(ctx, testTenant, tenantAdmin, ticket.ID)
	require.NoError(t, err)

	_, err = env.lifecycle.UpdateTicket(ctx, testTenant, tenantAdmin, ticket.ID, TicketPatch{
		Status:     statusPtr(domain.TicketStatusResolved),
		Resolution: strPtr("n/a"),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidStateTransition))
}

func TestCanAutoCloseIsAlwaysFalse(t *testing.T) {
	env := newTestEnv()
	assert.False(t, env.lifecycle.CanAutoClose())
}

func TestRequesterCommentReopensResolvedTicket(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityHigh)

	_, err := env.assignment.SelfAssign(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	_, err = env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status:     statusPtr(domain.TicketStatusResolved),
		Resolution: strPtr("rebooted the print server"),
	})
	require.NoError(t, err)

	comment, err := env.lifecycle.AddComment(ctx, testTenant, requester, ticket.ID, CommentInput{
		Content: "it is still broken",
	})
	require.NoError(t, err)
	assert.Equal(t, requester.ID, comment.AuthorID)

	reopened, err := env.lifecycle.GetTicket(ctx, testTenant, tenantAdmin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
	require.NotNil(t, reopened.AssigneeID)
	assert.Equal(t, itAnalyst.ID, *reopened.AssigneeID, "ticket goes back to the resolving analyst")
	assert.Nil(t, reopened.Resolution)

	// Comment append and reopening are two separately audited events.
	require.Len(t, env.recorder.ofType(events.EventTicketCommentAdded), 1)
	require.Len(t, env.recorder.ofType(events.EventTicketReopened), 1)

	// The reopened ticket gets a freshly computed SLA schedule.
	_, tracked := env.registry.Status(ticket.ID)
	assert.True(t, tracked)
}

func TestAnalystCommentDoesNotReopen(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityHigh)

	_, err := env.assignment.SelfAssign(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	_, err = env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status:     statusPtr(domain.TicketStatusResolved),
		Resolution: strPtr("done"),
	})
	require.NoError(t, err)

	_, err = env.lifecycle.AddComment(ctx, testTenant, itAnalyst, ticket.ID, CommentInput{
		Content: "closing the loop",
	})
	require.NoError(t, err)

	current, err := env.lifecycle.GetTicket(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, current.Status)
	assert.Empty(t, env.recorder.ofType(events.EventTicketReopened))
}

func TestInternalCommentsHiddenFromRequester(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityMedium)

	_, err := env.lifecycle.AddComment(ctx, testTenant, requester, ticket.ID, CommentInput{Content: "any update?"})
	require.NoError(t, err)
	_, err = env.lifecycle.AddComment(ctx, testTenant, itAnalyst, ticket.ID, CommentInput{Content: "user seems confused", IsInternal: true})
	require.NoError(t, err)

	// Requester cannot author internal notes.
	_, err = env.lifecycle.AddComment(ctx, testTenant, requester, ticket.ID, CommentInput{Content: "sneaky", IsInternal: true})
	assert.True(t, apperrors.HasCode(err, apperrors.CodePermissionDenied))

	visible, err := env.lifecycle.GetTicketComments(ctx, testTenant, requester, ticket.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "any update?", visible[0].Content)

	all, err := env.lifecycle.GetTicketComments(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCommentsChronological(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := env.createTicket(ctx, domain.SeverityLow)

	for _, content := range []string{"first", "second", "third"} {
		_, err := env.lifecycle.AddComment(ctx, testTenant, itAnalyst, ticket.ID, CommentInput{Content: content})
		require.NoError(t, err)
	}

	comments, err := env.lifecycle.GetTicketComments(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	for i := 1; i < len(comments); i++ {
		assert.False(t, comments[i].CreatedAt.Before(comments[i-1].CreatedAt))
		assert.Greater(t, comments[i].Seq, comments[i-1].Seq)
	}
}

func TestNotificationFailureNeverBlocksMutations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Every notification handler blows up.
	boom := errors.New("smtp unreachable")
	for _, eventType := range events.All() {
		env.dispatcher.Subscribe(eventType, func(context.Context, events.Event) error {
			return boom
		})
	}

	ticket := env.createTicket(ctx, domain.SeverityCritical)
	_, err := env.assignment.SelfAssign(ctx, testTenant, itAnalyst, ticket.ID)
	require.NoError(t, err)
	_, err = env.lifecycle.UpdateTicket(ctx, testTenant, itAnalyst, ticket.ID, TicketPatch{
		Status:     statusPtr(domain.TicketStatusResolved),
		Resolution: strPtr("fixed"),
	})
	require.NoError(t, err)
	_, err = env.lifecycle.AddComment(ctx, testTenant, requester, ticket.ID, CommentInput{Content: "not fixed"})
	require.NoError(t, err)

	current, err := env.lifecycle.GetTicket(ctx, testTenant, tenantAdmin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, current.Status)
}

func TestGetTicketsScopedByRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	mine := env.createTicket(ctx, domain.SeverityMedium)
	_, err := env.lifecycle.CreateTicket(ctx, testTenant, otherRequester, TicketCreateInput{
		Title:       "keyboard sticky",
		Description: "coffee incident",
		Category:    domain.CategoryHardware,
		Severity:    domain.SeverityLow,
	})
	require.NoError(t, err)
	_, err = env.lifecycle.CreateTicket(ctx, testTenant, otherRequester, TicketCreateInput{
		Title:       "phishing wave",
		Description: "multiple reports",
		Category:    domain.CategorySecurity,
		Severity:    domain.SeverityCritical,
	})
	require.NoError(t, err)

	asRequester, err := env.lifecycle.GetTickets(ctx, testTenant, requester, TicketListInput{})
	require.NoError(t, err)
	require.Equal(t, 1, asRequester.Total)
	assert.Equal(t, mine.ID, asRequester.Tickets[0].ID)

	asITAnalyst, err := env.lifecycle.GetTickets(ctx, testTenant, itAnalyst, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, asITAnalyst.Total, "security-classified tickets are invisible to IT analysts")

	asAdmin, err := env.lifecycle.GetTickets(ctx, testTenant, tenantAdmin, TicketListInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, asAdmin.Total)
}

func TestGetTicketsQueueView(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	low := env.createTicket(ctx, domain.SeverityLow)
	critical := env.createTicket(ctx, domain.SeverityCritical)

	result, err := env.lifecycle.GetTickets(ctx, testTenant, itAnalyst, TicketListInput{Queue: true})
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	assert.Equal(t, critical.ID, result.Tickets[0].ID)
	assert.Equal(t, low.ID, result.Tickets[1].ID)
}
