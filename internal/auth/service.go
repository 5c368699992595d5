package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sparehub.org/internal/obs"
)

const (
	DefaultResetTTL   = time.Hour
	MinPasswordLength = 6

	maxEmailLength  = 254
	resetTokenBytes = 32
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Profile   `json:"user"`
}

// Service implements the credential flows: login, registration, password change and reset.
type Service struct {
	store       Store
	hasher      *Hasher
	tokens      *TokenService
	mailer      Mailer
	defaultRole string
	resetTTL    time.Duration
	resetURL    string
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithMailer sets the reset link delivery channel.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) error {
		s.mailer = m
		return nil
	}
}

// WithDefaultRole names the role assigned to newly registered users.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: default role is empty", ErrMisconfigured)
		}
		s.defaultRole = name
		return nil
	}
}

// WithResetTTL sets how long reset tokens stay usable.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: reset ttl must be positive", ErrMisconfigured)
		}
		s.resetTTL = ttl
		return nil
	}
}

// WithResetURL sets the page the reset link points to; the token is appended as ?token=.
func WithResetURL(raw string) ServiceOption {
	return func(s *Service) error {
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("%w: reset url: %v", ErrMisconfigured, err)
		}
		s.resetURL = raw
		return nil
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewService wires the credential flows.
func NewService(store Store, hasher *Hasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if hasher == nil || tokens == nil {
		return nil, errors.New("hasher and token service are required")
	}
	s := &Service{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		defaultRole: RoleUser,
		resetTTL:    DefaultResetTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Login verifies credentials and issues a token carrying the user's current role and
// permissions. Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		obs.RecordLogin("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		obs.RecordLogin("error")
		return LoginResult{}, err
	}
	if err := s.hasher.Verify(ctx, password, user.PasswordHash); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			obs.RecordLogin("invalid_credentials")
		case errors.Is(err, ErrCorruptCredential):
			obs.RecordLogin("corrupt_credential")
			obs.Logger().WithField("user_id", user.ID).Warn("stored password hash is unreadable")
		default:
			obs.RecordLogin("error")
		}
		return LoginResult{}, err
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	role, perms, err := s.access(ctx, user.RoleID)
	if err != nil {
		obs.RecordLogin("error")
		return LoginResult{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user, role.Name, perms)
	if err != nil {
		obs.RecordLogin("error")
		return LoginResult{}, err
	}
	obs.RecordLogin("success")
	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User: Profile{
			ID:          user.ID,
			Email:       user.Email,
			RoleName:    role.Name,
			Permissions: perms,
		},
	}, nil
}

// Register creates an account with the default role. It does not log the user in.
func (s *Service) Register(ctx context.Context, email, password string) (Profile, error) {
	if err := validateEmail(email); err != nil {
		return Profile{}, err
	}
	if err := validatePassword(password); err != nil {
		return Profile{}, err
	}
	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return Profile{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	role, err := s.store.RoleByName(ctx, s.defaultRole)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, fmt.Errorf("%w: default role %q does not exist", ErrMisconfigured, s.defaultRole)
	}
	if err != nil {
		return Profile{}, err
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return Profile{}, err
	}
	user, err := s.store.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Profile{}, err
	}
	return Profile{ID: user.ID, Email: user.Email, RoleName: role.Name}, nil
}

// ChangePassword replaces the password of userID after verifying the current one.
// Already issued tokens stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUnauthenticated
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(ctx, current, user.PasswordHash); err != nil {
		return err
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, user.ID, hash)
}

// ForgotPassword mails a single-use reset link. Unknown emails and delivery failures
// both return nil; failures are only logged.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if s.mailer == nil {
		return fmt.Errorf("%w: no mailer configured", ErrMisconfigured)
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	raw, err := newResetToken()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.store.CreateResetToken(ctx, PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: HashResetToken(raw),
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}); err != nil {
		return err
	}
	link, err := resetLink(s.resetURL, raw)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		obs.Logger().WithFields(logrus.Fields{"user_id": user.ID, "error": err.Error()}).Error("reset link delivery failed")
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: reset token is required", ErrInvalidInput)
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	_, err = s.store.ConsumeResetToken(ctx, HashResetToken(token), hash, s.now().UTC())
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: reset token is invalid or expired", ErrInvalidInput)
	}
	return err
}

func (s *Service) access(ctx context.Context, roleID string) (Role, []string, error) {
	role, err := s.store.RoleByID(ctx, roleID)
	if err != nil {
		return Role{}, nil, fmt.Errorf("load role: %w", err)
	}
	perms, err := s.store.RolePermissions(ctx, roleID)
	if err != nil {
		return Role{}, nil, fmt.Errorf("load permissions: %w", err)
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return role, names, nil
}

func (s *Service) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("password rehash failed")
	}
}

// HashResetToken returns the stored form of a reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: reset url: %v", ErrMisconfigured, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(email) > maxEmailLength || strings.IndexFunc(email, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	return nil
}
