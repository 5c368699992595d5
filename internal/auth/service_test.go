package auth_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/store/memory"
)

type sentMail struct {
	email string
	link  string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{email: email, link: link})
	return nil
}

type fixture struct {
	store  *memory.AuthStore
	svc    *auth.Service
	rbac   *auth.RBACService
	tokens *auth.TokenService
	mailer *recordingMailer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewAuthStore(),
		mailer: &recordingMailer{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	rbac, err := auth.NewRBACService(f.store)
	require.NoError(t, err)
	require.NoError(t, rbac.EnsureBuiltins(context.Background()))
	f.rbac = rbac

	f.tokens, err = auth.NewTokenService(auth.TokenConfig{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "sparehub",
		Audience: "sparehub-clients",
		TTL:      time.Hour,
	}, auth.WithClock(clock))
	require.NoError(t, err)

	f.svc, err = auth.NewService(f.store, auth.NewHasher(auth.WithCost(bcrypt.MinCost)), f.tokens,
		auth.WithMailer(f.mailer),
		auth.WithResetURL("https://app.example.com/reset-password"),
		auth.WithServiceClock(clock),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) roleID(t *testing.T, name string) string {
	t.Helper()
	role, err := f.store.RoleByName(context.Background(), name)
	require.NoError(t, err)
	return role.ID
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, auth.RoleUser, profile.RoleName)
	assert.NotEmpty(t, profile.ID)

	res, err := f.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.Equal(f.now.Add(time.Hour)), "expires_at = %v", res.ExpiresAt)
	assert.Equal(t, auth.RoleUser, res.User.RoleName)
	assert.Equal(t, []string{auth.PermViewSpareParts}, res.User.Permissions)

	claims, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.Subject)
	assert.Equal(t, auth.RoleUser, claims.Role)
	assert.NoError(t, auth.Authorize(claims, auth.RequirePermission(auth.PermViewSpareParts)))
	assert.ErrorIs(t, auth.Authorize(claims, auth.RequirePermission(auth.PermManageRoles)), auth.ErrUnauthorized)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "A@X.COM", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials, "email lookup is case-sensitive")

	_, err = f.svc.Login(ctx, " a@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials, "email lookup is exact")

	_, err = f.svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestLoginCorruptCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateUser(ctx, auth.User{
		Email:        "broken@x.com",
		PasswordHash: "not-a-hash",
		RoleID:       f.roleID(t, auth.RoleUser),
	})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "broken@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrCorruptCredential)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	key := argon2.IDKey([]byte("secret1"), salt, 1, 8*1024, 1, 32)
	legacy := fmt.Sprintf("$argon2id$v=19$m=8192,t=1,p=1$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))

	user, err := f.store.CreateUser(ctx, auth.User{Email: "old@x.com", PasswordHash: legacy, RoleID: f.roleID(t, auth.RoleUser)})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "old@x.com", "secret1")
	require.NoError(t, err)

	stored, err := f.store.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"), "hash should be upgraded to bcrypt")

	_, err = f.svc.Login(ctx, "old@x.com", "secret1")
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct{ email, password string }{
		{"", "secret1"},
		{"no-at-sign", "secret1"},
		{"@x.com", "secret1"},
		{"a@", "secret1"},
		{"a b@x.com", "secret1"},
		{" a@x.com", "secret1"},
		{"a@x.com", "short"},
	}
	for _, tc := range cases {
		_, err := f.svc.Register(ctx, tc.email, tc.password)
		assert.ErrorIs(t, err, auth.ErrInvalidInput, "email=%q password=%q", tc.email, tc.password)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "a@x.com", "secret2")
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestConcurrentRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, "race@x.com", "secret1")
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, auth.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
}

func TestRegisterWithoutDefaultRole(t *testing.T) {
	store := memory.NewAuthStore()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"), Issuer: "i", Audience: "a", TTL: time.Hour,
	})
	require.NoError(t, err)
	svc, err := auth.NewService(store, auth.NewHasher(auth.WithCost(bcrypt.MinCost)), tokens)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrMisconfigured)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, profile.ID, "wrong-one", "secret2"), auth.ErrInvalidCredentials)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, profile.ID, "secret1", "tiny"), auth.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "missing-user", "secret1", "secret2"), auth.ErrNotFound)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "", "secret1", "secret2"), auth.ErrUnauthenticated)

	require.NoError(t, f.svc.ChangePassword(ctx, profile.ID, "secret1", "secret2"))
	_, err = f.svc.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "secret2")
	assert.NoError(t, err)
}

func resetTokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "/reset-password", u.Path)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.Len(t, raw, 32)
	return token
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@x.com"))
	assert.Empty(t, f.mailer.sent, "unknown email must not send mail")

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "a@x.com", f.mailer.sent[0].email)
	token := resetTokenFromLink(t, f.mailer.sent[0].link)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "tiny"), auth.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "bogus", "secret2"), auth.ErrInvalidInput)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "secret2"))
	_, err = f.svc.Login(ctx, "a@x.com", "secret2")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "secret3"), auth.ErrInvalidInput, "token is single use")
}

func TestForgotPasswordHidesDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	f.mailer.fail = errors.New("smtp down")

	known := f.svc.ForgotPassword(ctx, "a@x.com")
	unknown := f.svc.ForgotPassword(ctx, "nobody@x.com")
	assert.NoError(t, known)
	assert.NoError(t, unknown)
	assert.Empty(t, f.mailer.sent)
}

func TestResetTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	token := resetTokenFromLink(t, f.mailer.sent[0].link)

	f.now = f.now.Add(auth.DefaultResetTTL)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "secret2"), auth.ErrInvalidInput)

	_, err = f.svc.Login(ctx, "a@x.com", "secret1")
	assert.NoError(t, err, "password must be unchanged")
}

func TestPermissionStaleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	res, err := f.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.rbac.SetRolePermissions(ctx, f.roleID(t, auth.RoleUser), nil)
	require.NoError(t, err)

	claims, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.NoError(t, auth.Authorize(claims, auth.RequirePermission(auth.PermViewSpareParts)),
		"tokens carry the permissions granted at issuance")

	fresh, err := f.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	freshClaims, err := f.tokens.Validate(fresh.Token)
	require.NoError(t, err)
	assert.ErrorIs(t, auth.Authorize(freshClaims, auth.RequirePermission(auth.PermViewSpareParts)), auth.ErrUnauthorized)
}
