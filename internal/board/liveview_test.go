package board

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

type renders struct {
	mu   sync.Mutex
	last []*models.Issue
	n    int
}

func (r *renders) render(issues []*models.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = issues
	r.n++
}

func (r *renders) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.last))
	for i, issue := range r.last {
		out[i] = issue.Title
	}
	return out
}

func newSQLiteService(t *testing.T) *Service {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "board.db"), store.WithPollInterval(0))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc, err := NewService(s, DefaultConfig())
	require.NoError(t, err)
	return svc
}

func TestLiveView_FiltersLiveCollection(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, ana, models.IssueFields{Title: "first", Priority: models.IssuePriorityLow})
	require.NoError(t, err)

	r := &renders{}
	lv, err := svc.Watch(ana, "Open", "All", r.render)
	require.NoError(t, err)
	defer lv.Close()

	assert.Equal(t, []string{"first"}, r.titles(), "rendered once on subscribe")

	second, err := svc.Commit(ctx, ana, models.IssueFields{Title: "second", Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(r.titles()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"second", "first"}, r.titles())

	inProgress := models.IssueStatusInProgress
	_, err = svc.Update(ctx, ana, second.ID, models.IssuePatch{Status: &inProgress})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		titles := r.titles()
		return len(titles) == 1 && titles[0] == "first"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, lv.SetFilters("In Progress", "High"))
	assert.Equal(t, []string{"second"}, r.titles())
	assert.Len(t, lv.Snapshot(), 2)
	assert.Len(t, lv.Visible(), 1)

	require.NoError(t, lv.SetFilters("All", "All"))
	assert.Equal(t, []string{"second", "first"}, r.titles())

	assert.ErrorIs(t, lv.SetFilters("Closed", "All"), ErrPrecondition)
	assert.True(t, lv.Criteria().Wildcard(), "a rejected filter keeps the old one")
}

func TestLiveView_CloseStopsRendering(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	r := &renders{}
	lv, err := svc.Watch(ana, "", "", r.render)
	require.NoError(t, err)
	lv.Close()

	_, err = svc.Commit(ctx, ana, models.IssueFields{Title: "late"})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 1, r.n)
}

func TestWatch_Errors(t *testing.T) {
	svc, m := newTestService(t)

	_, err := svc.Watch(models.Principal{}, "", "", nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Watch(ana, "Closed", "", nil)
	assert.ErrorIs(t, err, ErrPrecondition)

	m.On("Subscribe", mock.Anything).Return(nil, errors.New("store closed")).Once()
	_, err = svc.Watch(ana, "", "", nil)
	assert.True(t, IsUpstream(err))
}
