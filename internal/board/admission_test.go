package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
)

func TestAdmission_ProceedAnyway(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.On("ListRecent", mock.Anything, 50).Return([]*models.Issue{
		issueWith("1", "Login button broken", models.IssueStatusOpen, models.IssuePriorityMedium),
	}, nil).Once()
	m.On("CreateIssue", mock.Anything, mock.MatchedBy(func(issue *models.Issue) bool {
		return issue.Title == "Login button broken"
	})).Run(assignID("2")).Return(nil).Once()

	a := svc.NewAdmission(ana)
	assert.Equal(t, Idle, a.State())

	state, err := a.Submit(ctx, models.IssueFields{Title: "Login button broken"})
	require.NoError(t, err)
	assert.Equal(t, PendingConfirmation, state)
	assert.Len(t, a.Matches(), 1)
	m.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything)

	issue, err := a.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", issue.ID)
	assert.Equal(t, Committed, a.State())
	assert.Same(t, issue, a.Issue())

	// Confirmation does not run detection again.
	m.AssertNumberOfCalls(t, "ListRecent", 1)
	m.AssertExpectations(t)
}

func TestAdmission_CleanSubmitCommits(t *testing.T) {
	svc, m := newTestService(t)
	m.On("ListRecent", mock.Anything, 50).Return([]*models.Issue{}, nil).Once()
	m.On("CreateIssue", mock.Anything, mock.Anything).Run(assignID("1")).Return(nil).Once()

	a := svc.NewAdmission(ana)
	state, err := a.Submit(context.Background(), models.IssueFields{Title: "Fresh"})
	require.NoError(t, err)
	assert.Equal(t, Committed, state)
	assert.Equal(t, "1", a.Issue().ID)

	_, err = a.Submit(context.Background(), models.IssueFields{Title: "again"})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = a.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAdmission_Cancel(t *testing.T) {
	svc, m := newTestService(t)
	m.On("ListRecent", mock.Anything, 50).Return([]*models.Issue{
		issueWith("1", "Dup", models.IssueStatusOpen, models.IssuePriorityMedium),
	}, nil)

	a := svc.NewAdmission(ana)
	_, err := a.Submit(context.Background(), models.IssueFields{Title: "Dup"})
	require.NoError(t, err)
	require.NoError(t, a.Cancel())
	assert.Equal(t, Idle, a.State())
	assert.Empty(t, a.Matches())

	assert.ErrorIs(t, a.Cancel(), ErrInvalidState)
	_, err = a.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	// Back in Idle the admission can be submitted again.
	state, err := a.Submit(context.Background(), models.IssueFields{Title: "Dup"})
	require.NoError(t, err)
	assert.Equal(t, PendingConfirmation, state)
	m.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything)
}

func TestAdmission_FailuresKeepState(t *testing.T) {
	svc, m := newTestService(t)
	m.On("ListRecent", mock.Anything, 50).Return(nil, errors.New("offline")).Once()

	a := svc.NewAdmission(ana)
	_, err := a.Submit(context.Background(), models.IssueFields{Title: "x"})
	assert.True(t, IsUpstream(err))
	assert.Equal(t, Idle, a.State())

	m.On("ListRecent", mock.Anything, 50).Return([]*models.Issue{
		issueWith("1", "x", models.IssueStatusOpen, models.IssuePriorityMedium),
	}, nil).Once()
	_, err = a.Submit(context.Background(), models.IssueFields{Title: "x"})
	require.NoError(t, err)

	m.On("CreateIssue", mock.Anything, mock.Anything).Return(errors.New("offline")).Once()
	_, err = a.Confirm(context.Background())
	assert.True(t, IsUpstream(err))
	assert.Equal(t, PendingConfirmation, a.State())
}

func TestAdmission_NoPrincipal(t *testing.T) {
	svc, m := newTestService(t)
	a := svc.NewAdmission(models.Principal{})
	_, err := a.Submit(context.Background(), models.IssueFields{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	m.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending_confirmation", PendingConfirmation.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestPending_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPending(time.Minute)
	p.now = func() time.Time { return now }

	token := p.Hold(ana, models.IssueFields{Title: "x"}, []models.IssueRef{{ID: "1", Title: "x"}})
	assert.Equal(t, 1, p.Len())

	now = now.Add(59 * time.Second)
	entry, err := p.Take(ana, token)
	require.NoError(t, err)
	assert.Equal(t, "x", entry.Fields.Title)
	assert.Len(t, entry.Matches, 1)

	token = p.Hold(ana, models.IssueFields{Title: "y"}, nil)
	now = now.Add(time.Minute)
	_, err = p.Take(ana, token)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, 0, p.Len())
}

func TestPending_OtherPrincipal(t *testing.T) {
	p := NewPending(time.Minute)
	token := p.Hold(ana, models.IssueFields{Title: "x"}, nil)

	_, err := p.Take(models.Principal{UID: "uid-bob"}, token)
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = p.Take(ana, token)
	assert.NoError(t, err, "the owner can still use it")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, 50, DefaultConfig().Window)

	tests := []Config{
		{Window: 0, PendingTTL: time.Minute},
		{Window: 501, PendingTTL: time.Minute},
		{Window: 50, PendingTTL: 0},
		{Window: 50, PendingTTL: 25 * time.Hour},
	}
	for _, cfg := range tests {
		assert.Error(t, cfg.Validate(), "%+v", cfg)
	}
}
