package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issueboard/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPollInterval is how often the store checks for commits made by other
// processes while it has subscribers.
const DefaultPollInterval = time.Second

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db        *sql.DB
	feed      *feed
	pollEvery time.Duration
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithPollInterval sets how often external changes are detected. Zero or a
// negative value disables polling; local changes are still delivered.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLiteStore) { s.pollEvery = d }
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection also
	// keeps PRAGMA data_version meaningful for change polling.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, pollEvery: DefaultPollInterval}
	for _, opt := range opts {
		opt(s)
	}
	var w watcher
	if s.pollEvery > 0 {
		w = s.pollDataVersion
	}
	s.feed = newFeed(s.ListIssues, w)
	return s, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newULID generates a new ULID string. IDs generated by one process sort in
// generation order.
func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close stops change polling and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.feed.close()
	return s.db.Close()
}

func (s *SQLiteStore) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

// pollDataVersion watches PRAGMA data_version, which changes whenever another
// connection commits to the database file.
func (s *SQLiteStore) pollDataVersion(stop <-chan struct{}, ready func(), changed func()) {
	ctx := context.Background()
	last, err := s.dataVersion(ctx)
	if err != nil {
		slog.Warn("read store version", "error", err)
	}
	ready()

	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v, err := s.dataVersion(ctx)
			if err != nil {
				slog.Warn("read store version", "error", err)
				continue
			}
			if v != last {
				last = v
				changed()
			}
		}
	}
}

// --- Issues ---

const issueColumns = `id, title, description, priority, status, assigned_to, created_by, created_by_uid, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var priority, status string
	var createdAt int64
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &priority, &status,
		&issue.AssignedTo, &issue.CreatedBy, &issue.CreatedByUID, &createdAt); err != nil {
		return nil, err
	}
	issue.Priority = models.IssuePriority(priority)
	issue.Status = models.IssueStatus(status)
	issue.CreatedAt = time.Unix(0, createdAt).UTC()
	return issue, nil
}

func (s *SQLiteStore) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) ListRecent(ctx context.Context, n int) ([]*models.Issue, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC LIMIT ?`, n)
}

func (s *SQLiteStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC`)
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}

	// created_at never goes backwards, even if the wall clock does.
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO issues (id, title, description, priority, status, assigned_to, created_by, created_by_uid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) FROM issues) + 1, 0)))
		RETURNING created_at`,
		issue.ID, issue.Title, issue.Description, string(issue.Priority), string(issue.Status),
		issue.AssignedTo, issue.CreatedBy, issue.CreatedByUID, time.Now().UTC().UnixNano(),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	issue.CreatedAt = time.Unix(0, createdAt).UTC()

	s.feed.publish(ctx)
	return nil
}

func (s *SQLiteStore) UpdateIssueFields(ctx context.Context, id string, f models.IssueFields) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, priority=?, status=?, assigned_to=? WHERE id=?`,
		f.Title, f.Description, string(f.Priority), string(f.Status), f.AssignedTo, id,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}

	s.feed.publish(ctx)
	return nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}

	s.feed.publish(ctx)
	return nil
}

func (s *SQLiteStore) Subscribe(fn func([]*models.Issue)) (func(), error) {
	return s.feed.subscribe(fn)
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.UID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLiteStore) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	return s.getUser(ctx, "uid", uid)
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, created_at FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.UID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	sess.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, uid, created_at) VALUES (?, ?, ?)`,
		sess.TokenHash, sess.UID, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT token_hash, uid, created_at FROM sessions WHERE token_hash = ?`, tokenHash,
	).Scan(&sess.TokenHash, &sess.UID, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
