package board

import (
	"sync"

	"github.com/joescharf/issueboard/internal/filter"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

// LiveView keeps the last snapshot delivered by the store and the current
// filters, and renders the filtered collection whenever either changes.
type LiveView struct {
	render func([]*models.Issue)

	mu       sync.Mutex
	criteria filter.Criteria
	last     []*models.Issue
	gen      uint64

	renderMu sync.Mutex
	rendered uint64

	unsubscribe func()
}

func newLiveView(issues store.IssueStore, crit filter.Criteria, render func([]*models.Issue)) (*LiveView, error) {
	lv := &LiveView{render: render, criteria: crit}
	unsubscribe, err := issues.Subscribe(lv.onSnapshot)
	if err != nil {
		return nil, &UpstreamError{Op: "subscribe", Err: err}
	}
	lv.unsubscribe = unsubscribe
	return lv, nil
}

func (lv *LiveView) onSnapshot(issues []*models.Issue) {
	lv.mu.Lock()
	lv.last = issues
	gen, visible := lv.bumpLocked()
	lv.mu.Unlock()
	lv.emit(gen, visible)
}

// SetFilters replaces both filters and renders again. Values follow
// filter.Parse.
func (lv *LiveView) SetFilters(status, priority string) error {
	crit, err := parseCriteria(status, priority)
	if err != nil {
		return err
	}
	lv.mu.Lock()
	lv.criteria = crit
	gen, visible := lv.bumpLocked()
	lv.mu.Unlock()
	lv.emit(gen, visible)
	return nil
}

// Visible returns the filtered view of the last snapshot.
func (lv *LiveView) Visible() []*models.Issue {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.criteria.Apply(lv.last)
}

// Snapshot returns the unfiltered last snapshot.
func (lv *LiveView) Snapshot() []*models.Issue {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.last
}

// Criteria returns the filters in effect.
func (lv *LiveView) Criteria() filter.Criteria {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.criteria
}

// Close stops the subscription. No render starts after Close returns.
func (lv *LiveView) Close() {
	if lv.unsubscribe != nil {
		lv.unsubscribe()
	}
	lv.renderMu.Lock()
	lv.rendered = ^uint64(0)
	lv.renderMu.Unlock()
}

func (lv *LiveView) bumpLocked() (uint64, []*models.Issue) {
	lv.gen++
	return lv.gen, lv.criteria.Apply(lv.last)
}

// emit renders visible unless a newer generation was already rendered.
func (lv *LiveView) emit(gen uint64, visible []*models.Issue) {
	if lv.render == nil {
		return
	}
	lv.renderMu.Lock()
	defer lv.renderMu.Unlock()
	if gen <= lv.rendered {
		return
	}
	lv.rendered = gen
	lv.render(visible)
}
