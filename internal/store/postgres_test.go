package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
)

// newPostgresStore connects to BOARD_TEST_POSTGRES_DSN and empties the board
// tables. Tests using it are skipped when the variable is unset.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("BOARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOARD_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, "TRUNCATE issues, sessions, users")
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresIntegration(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")

	rec := &recorder{}
	unsubscribe, err := s.Subscribe(rec.record)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, rec.last())

	first := newIssue("first")
	require.NoError(t, s.CreateIssue(ctx, first))
	second := newIssue("second")
	require.NoError(t, s.CreateIssue(ctx, second))
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))

	all, err := s.ListIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, titles(all))

	recent, err := s.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, titles(recent))

	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, 5*time.Second, 20*time.Millisecond)

	fields := first.IssueFields
	fields.Status = models.IssueStatusInProgress
	require.NoError(t, s.UpdateIssueFields(ctx, first.ID, fields))
	got, err := s.GetIssue(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)

	require.NoError(t, s.DeleteIssue(ctx, second.ID))
	assert.True(t, errors.Is(s.DeleteIssue(ctx, second.ID), ErrNotFound))
	_, err = s.GetIssue(ctx, second.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestPostgresUsersAndSessions(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{UID: "uid-1", Email: "ana@example.com", PasswordHash: "hash"}))
	err := s.CreateUser(ctx, &models.User{UID: "uid-2", Email: "ana@example.com", PasswordHash: "hash"})
	assert.True(t, errors.Is(err, ErrConflict))

	u, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.UID)

	require.NoError(t, s.CreateSession(ctx, &models.Session{TokenHash: "digest", UID: "uid-1"}))
	sess, err := s.GetSession(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", sess.UID)

	require.NoError(t, s.DeleteSession(ctx, "digest"))
	_, err = s.GetSession(ctx, "digest")
	assert.True(t, errors.Is(err, ErrNotFound))
}
