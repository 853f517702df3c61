// Package board is the issue admission and edit engine. It composes the
// similarity detector, the workflow validator and the filter with the store.
package board

import (
	"context"
	"errors"
	"strings"

	"github.com/joescharf/issueboard/internal/filter"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
	"github.com/joescharf/issueboard/internal/workflow"
)

// State is the phase of a creation.
type State int

const (
	Idle State = iota
	PendingConfirmation
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingConfirmation:
		return "pending_confirmation"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// CreateResult is the outcome of a creation attempt. When State is
// PendingConfirmation nothing was written, Matches lists the similar issues
// and Fields holds the normalized payload to confirm. Token is set only when
// the payload was parked in the pending registry.
type CreateResult struct {
	State   State
	Issue   *models.Issue
	Matches []models.IssueRef
	Fields  models.IssueFields
	Token   string
}

// Service runs every board operation on behalf of a principal.
type Service struct {
	issues  store.IssueStore
	cfg     Config
	pending *Pending
}

// NewService returns a Service over the given store.
func NewService(issues store.IssueStore, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		issues:  issues,
		cfg:     cfg,
		pending: NewPending(cfg.PendingTTL),
	}, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() Config { return s.cfg }

// CheckSimilar returns the recent issues whose titles resemble title. The
// recency window is read fresh on every call.
func (s *Service) CheckSimilar(ctx context.Context, p models.Principal, title string) ([]models.IssueRef, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.findSimilar(ctx, title)
}

func (s *Service) findSimilar(ctx context.Context, title string) ([]models.IssueRef, error) {
	recent, err := s.issues.ListRecent(ctx, s.cfg.Window)
	if err != nil {
		return nil, &UpstreamError{Op: "list recent issues", Err: err}
	}
	return similarity.FindSimilar(title, recent), nil
}

// Create checks the payload against recent issues and writes it only when
// nothing similar exists. The check always completes before the write.
func (s *Service) Create(ctx context.Context, p models.Principal, fields models.IssueFields) (*CreateResult, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	fields, err := prepare(fields)
	if err != nil {
		return nil, err
	}

	matches, err := s.findSimilar(ctx, fields.Title)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return &CreateResult{State: PendingConfirmation, Matches: matches, Fields: fields}, nil
	}

	issue, err := s.write(ctx, p, fields)
	if err != nil {
		return nil, err
	}
	return &CreateResult{State: Committed, Issue: issue, Fields: fields}, nil
}

// Commit writes the payload without running the similarity check. It is the
// "proceed anyway" path.
func (s *Service) Commit(ctx context.Context, p models.Principal, fields models.IssueFields) (*models.Issue, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	fields, err := prepare(fields)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, p, fields)
}

func (s *Service) write(ctx context.Context, p models.Principal, fields models.IssueFields) (*models.Issue, error) {
	issue := &models.Issue{
		IssueFields:  fields,
		CreatedBy:    p.Email,
		CreatedByUID: p.UID,
	}
	if err := s.issues.CreateIssue(ctx, issue); err != nil {
		return nil, &UpstreamError{Op: "create issue", Err: err}
	}
	return issue, nil
}

// Submit is Create for callers that cannot hold an Admission between
// requests. A suspended payload is parked in the pending registry and the
// result carries the token that confirms it.
func (s *Service) Submit(ctx context.Context, p models.Principal, fields models.IssueFields) (*CreateResult, error) {
	res, err := s.Create(ctx, p, fields)
	if err != nil {
		return nil, err
	}
	if res.State == PendingConfirmation {
		res.Token = s.pending.Hold(p, res.Fields, res.Matches)
	}
	return res, nil
}

// Confirm writes the payload parked under token. A token confirms at most one
// write; if the write fails the token stays usable.
func (s *Service) Confirm(ctx context.Context, p models.Principal, token string) (*models.Issue, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	entry, err := s.pending.Take(p, token)
	if err != nil {
		return nil, err
	}
	issue, err := s.write(ctx, p, entry.Fields)
	if err != nil {
		s.pending.restore(token, entry)
		return nil, err
	}
	return issue, nil
}

// Cancel discards the payload parked under token.
func (s *Service) Cancel(p models.Principal, token string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if _, err := s.pending.Take(p, token); err != nil {
		return err
	}
	return nil
}

// Update merges patch over the stored issue and writes the result. A status
// change rejected by the workflow produces a *workflow.ValidationError and no
// write.
func (s *Service) Update(ctx context.Context, p models.Principal, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, preconditionf("issue id is required")
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	fields, err := prepare(patch.Apply(current.IssueFields))
	if err != nil {
		return nil, err
	}
	if err := workflow.ValidateTransition(current.Status, fields.Status); err != nil {
		return nil, err
	}

	if err := s.issues.UpdateIssueFields(ctx, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &UpstreamError{Op: "update issue", Err: err}
	}

	updated := *current
	updated.IssueFields = fields
	return &updated, nil
}

// Delete removes an issue.
func (s *Service) Delete(ctx context.Context, p models.Principal, id string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return preconditionf("issue id is required")
	}
	if err := s.issues.DeleteIssue(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &UpstreamError{Op: "delete issue", Err: err}
	}
	return nil
}

// Get returns one issue.
func (s *Service) Get(ctx context.Context, p models.Principal, id string) (*models.Issue, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.issues.GetIssue(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &UpstreamError{Op: "get issue", Err: err}
	}
	return issue, nil
}

// List returns the issues matching the two filters, newest first. Each filter
// is an exact enum value or "All"/empty.
func (s *Service) List(ctx context.Context, p models.Principal, status, priority string) ([]*models.Issue, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	crit, err := parseCriteria(status, priority)
	if err != nil {
		return nil, err
	}
	issues, err := s.issues.ListIssues(ctx)
	if err != nil {
		return nil, &UpstreamError{Op: "list issues", Err: err}
	}
	return crit.Apply(issues), nil
}

// Watch opens a LiveView rendering the filtered collection on every change.
func (s *Service) Watch(p models.Principal, status, priority string, render func([]*models.Issue)) (*LiveView, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	crit, err := parseCriteria(status, priority)
	if err != nil {
		return nil, err
	}
	return newLiveView(s.issues, crit, render)
}

func parseCriteria(status, priority string) (filter.Criteria, error) {
	crit, err := filter.Parse(status, priority)
	if err != nil {
		return filter.Criteria{}, preconditionf("%v", err)
	}
	return crit, nil
}

func requirePrincipal(p models.Principal) error {
	if p.UID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// prepare trims and normalizes a payload and checks the fields the store
// cannot default.
func prepare(f models.IssueFields) (models.IssueFields, error) {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return f, preconditionf("title is required")
	}
	f = models.Normalize(f)
	if !f.Priority.Valid() {
		return f, preconditionf("unknown priority %q", f.Priority)
	}
	if !f.Status.Valid() {
		return f, preconditionf("unknown status %q", f.Status)
	}
	return f, nil
}
