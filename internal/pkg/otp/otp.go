package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces fixed-length numeric one-time codes. It holds no state
// between calls; expiry is the caller's concern.
type Generator struct {
	digits int
	max    *big.Int
}

// NewGenerator returns a generator for codes of the given length.
func NewGenerator(digits int) *Generator {
	return &Generator{
		digits: digits,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil),
	}
}

// Generate draws a uniformly distributed code in [0, 10^digits), zero padded.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n), nil
}
