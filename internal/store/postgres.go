package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/joescharf/issueboard/internal/models"
)

//go:embed pgmigrations/*.sql
var pgMigrationsFS embed.FS

// notifyChannel is the channel the issues trigger notifies on every commit.
const notifyChannel = "board_issues"

// issueClockLock serializes inserts so created_at stays non-decreasing across
// concurrent writers.
const issueClockLock = 0x626f617264

// PostgresStore implements Store on PostgreSQL. Every client sees every
// commit through LISTEN/NOTIFY, including its own.
type PostgresStore struct {
	pool *pgxpool.Pool
	dsn  string
	feed *feed
}

// NewPostgresStore connects a pool to dsn and checks it is reachable.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}

	s := &PostgresStore{pool: pool, dsn: dsn}
	s.feed = newFeed(s.ListIssues, s.listen)
	return s, nil
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlDB, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("open sql: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(pgMigrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "pgmigrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close stops the listener and closes the pool.
func (s *PostgresStore) Close() error {
	s.feed.close()
	s.pool.Close()
	return nil
}

// listen holds one pool connection in LISTEN mode and reconnects when it drops.
func (s *PostgresStore) listen(stop <-chan struct{}, ready func(), changed func()) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		err := s.listenOnce(ctx, ready, changed)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("issue listener dropped", "error", err)
		ready()
		// Notifications may have been missed while disconnected.
		changed()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context, ready func(), changed func()) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	ready()

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		changed()
	}
}

// --- Issues ---

func (s *PostgresStore) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) ListRecent(ctx context.Context, n int) ([]*models.Issue, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC LIMIT $1`, n)
}

func (s *PostgresStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	return s.queryIssues(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", issueClockLock); err != nil {
		return fmt.Errorf("lock issue clock: %w", err)
	}

	var createdAt int64
	err = tx.QueryRow(ctx,
		`INSERT INTO issues (id, title, description, priority, status, assigned_to, created_by, created_by_uid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, GREATEST($9, COALESCE((SELECT MAX(created_at) FROM issues) + 1, 0)))
		RETURNING created_at`,
		issue.ID, issue.Title, issue.Description, string(issue.Priority), string(issue.Status),
		issue.AssignedTo, issue.CreatedBy, issue.CreatedByUID, time.Now().UTC().UnixNano(),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit issue: %w", err)
	}

	issue.CreatedAt = time.Unix(0, createdAt).UTC()
	return nil
}

func (s *PostgresStore) UpdateIssueFields(ctx context.Context, id string, f models.IssueFields) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET title=$1, description=$2, priority=$3, status=$4, assigned_to=$5 WHERE id=$6`,
		f.Title, f.Description, string(f.Priority), string(f.Status), f.AssignedTo, id,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteIssue(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM issues WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Subscribe(fn func([]*models.Issue)) (func(), error) {
	return s.feed.subscribe(fn)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (uid, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.UID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *PostgresStore) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	return s.getUser(ctx, "uid", uid)
}

func (s *PostgresStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT uid, email, password_hash, created_at FROM users WHERE `+column+` = $1`, value,
	).Scan(&u.UID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	sess.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, uid, created_at) VALUES ($1, $2, $3)`,
		sess.TokenHash, sess.UID, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT token_hash, uid, created_at FROM sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&sess.TokenHash, &sess.UID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
