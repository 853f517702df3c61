package store

import (
	"context"
	"errors"

	"github.com/joescharf/issueboard/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a record collides with an existing one.
var ErrConflict = errors.New("already exists")

// IssueStore is the record store behind the board. Every listing is ordered
// newest first.
type IssueStore interface {
	// ListRecent returns at most n issues.
	ListRecent(ctx context.Context, n int) ([]*models.Issue, error)
	// ListIssues returns the full collection.
	ListIssues(ctx context.Context) ([]*models.Issue, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	// CreateIssue assigns ID and CreatedAt.
	CreateIssue(ctx context.Context, issue *models.Issue) error
	// UpdateIssueFields overwrites the editable fields of an issue.
	UpdateIssueFields(ctx context.Context, id string, fields models.IssueFields) error
	DeleteIssue(ctx context.Context, id string) error
	// Subscribe calls fn with the full collection right away and again after
	// every change. The returned function cancels the subscription.
	Subscribe(fn func([]*models.Issue)) (unsubscribe func(), err error)
}

// UserStore persists accounts and login sessions.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Store defines the persistence interface for the board.
type Store interface {
	IssueStore
	UserStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
