// Package identity signs users up, logs them in, and resolves session tokens
// to the principal the board acts on behalf of.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrAccountExists      = errors.New("account may already exist")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not logged in")
)

// Session is the result of a successful sign-up or log-in. Token is handed to
// the client and is never stored.
type Session struct {
	Token     string           `json:"token"`
	Principal models.Principal `json:"principal"`
}

// Service is the identity provider backed by a UserStore.
type Service struct {
	users store.UserStore
	cost  int
}

// NewService returns a Service hashing passwords at bcrypt.DefaultCost.
func NewService(users store.UserStore) *Service {
	return &Service{users: users, cost: bcrypt.DefaultCost}
}

// SignUp creates an account and opens a session for it.
func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (*Session, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		UID:          uuid.NewString(),
		Email:        addr,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.open(ctx, u)
}

// Login checks credentials and opens a new session. Unknown accounts and wrong
// passwords return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetUserByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.open(ctx, u)
}

// Resolve returns the principal a session token belongs to.
func (s *Service) Resolve(ctx context.Context, token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, ErrUnauthenticated
	}

	sess, err := s.users.GetSession(ctx, digest(token))
	if errors.Is(err, store.ErrNotFound) {
		return models.Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("get session: %w", err)
	}

	u, err := s.users.GetUserByUID(ctx, sess.UID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("get user: %w", err)
	}
	return u.Principal(), nil
}

// Logout ends a session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.users.DeleteSession(ctx, digest(token))
}

func (s *Service) open(ctx context.Context, u *models.User) (*Session, error) {
	token := uuid.NewString()
	if err := s.users.CreateSession(ctx, &models.Session{TokenHash: digest(token), UID: u.UID}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{Token: token, Principal: u.Principal()}, nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
