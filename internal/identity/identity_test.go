package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), store.WithPollInterval(0))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc := NewService(s)
	svc.cost = bcrypt.MinCost
	return svc, s
}

func TestSignUp(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "  Ana@Example.com ", "secret1", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.Principal.UID)
	assert.Equal(t, "ana@example.com", sess.Principal.Email)

	u, err := st.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", u.PasswordHash, "password is stored hashed")

	_, err = st.GetSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, store.ErrNotFound), "raw token is never stored")
}

func TestSignUp_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		confirm  string
		want     error
	}{
		{"bad email", "not-an-email", "secret1", "secret1", ErrInvalidEmail},
		{"named address", "Ana <ana@example.com>", "secret1", "secret1", ErrInvalidEmail},
		{"mismatch", "ana@example.com", "secret1", "secret2", ErrPasswordMismatch},
		{"too short", "ana@example.com", "12345", "12345", ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.email, tt.password, tt.confirm)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignUp_ExistingAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ana@example.com", "secret1", "secret1")
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, "ANA@example.com", "other12", "other12")
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, "account may already exist", err.Error())
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	signed, err := svc.SignUp(ctx, "ana@example.com", "secret1", "secret1")
	require.NoError(t, err)

	sess, err := svc.Login(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, signed.Principal, sess.Principal)
	assert.NotEqual(t, signed.Token, sess.Token, "each login opens a new session")

	_, err = svc.Login(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "invalid email or password", err.Error())
}

func TestResolveAndLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "ana@example.com", "secret1", "secret1")
	require.NoError(t, err)

	p, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{UID: sess.Principal.UID, Email: "ana@example.com"}, p)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Resolve(ctx, "unknown-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	require.NoError(t, svc.Logout(ctx, sess.Token))
	_, err = svc.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.NoError(t, svc.Logout(ctx, sess.Token), "logging out twice is fine")
}
