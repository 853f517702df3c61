package board

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/issueboard/internal/models"
)

// PendingEntry is a creation suspended on a duplicate advisory.
type PendingEntry struct {
	Owner   string
	Fields  models.IssueFields
	Matches []models.IssueRef
	Expires time.Time
}

// Pending parks suspended creations under single-use tokens so a stateless
// transport can confirm them in a later request.
type Pending struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]PendingEntry
}

// NewPending returns a registry whose tokens expire after ttl.
func NewPending(ttl time.Duration) *Pending {
	return &Pending{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]PendingEntry),
	}
}

// Hold parks fields for p and returns the confirmation token.
func (r *Pending) Hold(p models.Principal, fields models.IssueFields, matches []models.IssueRef) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	token := uuid.NewString()
	r.entries[token] = PendingEntry{
		Owner:   p.UID,
		Fields:  fields,
		Matches: matches,
		Expires: r.now().Add(r.ttl),
	}
	return token
}

// Take removes and returns the entry for token. A token that expired, was
// already taken, or was held by a different principal is ErrUnknownToken; in
// the last case the entry is left in place for its owner.
func (r *Pending) Take(p models.Principal, token string) (PendingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	entry, ok := r.entries[token]
	if !ok || entry.Owner != p.UID {
		return PendingEntry{}, ErrUnknownToken
	}
	delete(r.entries, token)
	return entry, nil
}

// Len returns the number of live entries.
func (r *Pending) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.entries)
}

func (r *Pending) restore(token string, entry PendingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Before(entry.Expires) {
		r.entries[token] = entry
	}
}

func (r *Pending) sweepLocked() {
	now := r.now()
	for token, entry := range r.entries {
		if !now.Before(entry.Expires) {
			delete(r.entries, token)
		}
	}
}
