package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"sparehub.org/internal/obs"
)

const defaultHashConcurrency = 4

// Upper bounds for argon2id parameters read from stored hashes.
const (
	maxArgon2Memory      = 256 * 1024 // KiB
	maxArgon2Iterations  = 16
	maxArgon2Parallelism = 16
	maxArgon2KeyLen      = 64
)

type hashScheme int

const (
	schemeUnknown hashScheme = iota
	schemeBcrypt
	schemeArgon2id
)

// Hasher hashes and verifies passwords. New hashes are bcrypt with the configured cost;
// argon2id PHC strings written by earlier deployments still verify.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// HasherOption configures Hasher behavior.
type HasherOption func(*Hasher)

// WithCost sets the bcrypt work factor used for new hashes.
func WithCost(cost int) HasherOption {
	return func(h *Hasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithConcurrency bounds how many hash or verify operations run at once.
func WithConcurrency(n int) HasherOption {
	return func(h *Hasher) {
		if n > 0 {
			h.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewHasher constructs a Hasher.
func NewHasher(opts ...HasherOption) *Hasher {
	h := &Hasher{
		cost: bcrypt.DefaultCost,
		sem:  semaphore.NewWeighted(defaultHashConcurrency),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns a self-describing bcrypt hash of password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	obs.ObserveHash("hash", time.Since(start))
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares password with the stored hash. It returns ErrInvalidCredentials when the
// password does not match and ErrCorruptCredential when the stored hash cannot be read.
func (h *Hasher) Verify(ctx context.Context, password, stored string) error {
	scheme := schemeOf(stored)
	if scheme == schemeUnknown {
		return ErrCorruptCredential
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	start := time.Now()
	defer func() { obs.ObserveHash("verify", time.Since(start)) }()

	if scheme == schemeArgon2id {
		return verifyArgon2id(password, stored)
	}
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}
}

// NeedsRehash reports whether stored was produced with a weaker cost or a legacy scheme.
func (h *Hasher) NeedsRehash(stored string) bool {
	switch schemeOf(stored) {
	case schemeArgon2id:
		return true
	case schemeBcrypt:
		cost, err := bcrypt.Cost([]byte(stored))
		return err == nil && cost < h.cost
	default:
		return false
	}
}

func schemeOf(stored string) hashScheme {
	switch {
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return schemeBcrypt
	case strings.HasPrefix(stored, "$argon2id$"):
		return schemeArgon2id
	default:
		return schemeUnknown
	}
}

// verifyArgon2id checks a PHC string: $argon2id$v=19$m=<KiB>,t=<iter>,p=<lanes>$<salt>$<digest>.
func verifyArgon2id(password, phc string) error {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return ErrCorruptCredential
	}
	var memory, iterations uint32
	var parallelism uint8
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil || n != 3 {
		return ErrCorruptCredential
	}
	if parts[3] != fmt.Sprintf("m=%d,t=%d,p=%d", memory, iterations, parallelism) {
		return ErrCorruptCredential
	}
	if memory == 0 || memory > maxArgon2Memory ||
		iterations == 0 || iterations > maxArgon2Iterations ||
		parallelism == 0 || parallelism > maxArgon2Parallelism {
		return ErrCorruptCredential
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return ErrCorruptCredential
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 || len(digest) > maxArgon2KeyLen {
		return ErrCorruptCredential
	}
	key := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(digest)))
	if subtle.ConstantTimeCompare(key, digest) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
