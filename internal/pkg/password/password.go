// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-shop-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrHashing is returned when the bcrypt primitive fails.
var ErrHashing = fmt.Errorf("password hashing failed: %w", domain.ErrInternal)

// Hasher bounds the number of concurrent bcrypt computations so CPU-bound
// hashing cannot starve the goroutines serving other requests.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher using the given bcrypt cost. maxConcurrent <= 0
// means one slot.
func NewHasher(cost, maxConcurrent int) *Hasher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Hash returns the bcrypt hash of plain.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("password exceeds 72 bytes: %w", domain.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. A mismatch is not an error;
// a malformed hash is.
func (h *Hasher) Verify(ctx context.Context, plain, hash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrHashing, err)
	}
}
