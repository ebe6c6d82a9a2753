// Package password hashes and verifies user passwords and enforces the
// configured strength policy.
package password

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"unicode"
)

// Hasher hashes and verifies passwords. Hash values are opaque strings.
type Hasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	// Verify returns (false, nil) on mismatch and an error only when the
	// stored hash cannot be interpreted.
	Verify(ctx context.Context, plain, hash string) (bool, error)
	IsStrong(plain string) bool
}

// Supported algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Policy is the password strength policy.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy requires 10 characters with all four character classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      10,
		MaxLength:      128,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Check returns a description of the first rule plain breaks, or nil.
func (p Policy) Check(plain string) error {
	n := len([]rune(plain))
	if n < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("password must be at most %d characters long", p.MaxLength)
	}

	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	var missing []string
	if p.RequireUpper && !upper {
		missing = append(missing, "an uppercase letter")
	}
	if p.RequireLower && !lower {
		missing = append(missing, "a lowercase letter")
	}
	if p.RequireDigit && !digit {
		missing = append(missing, "a digit")
	}
	if p.RequireSpecial && !special {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("password must contain %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config selects and tunes the hasher built by New.
type Config struct {
	Algorithm   string
	BcryptCost  int
	Argon2      Argon2Params
	Policy      Policy
	Concurrency int
}

// New builds the configured hasher wrapped in a Pool. Concurrency <= 0
// defaults to GOMAXPROCS.
func New(cfg Config) (*Pool, error) {
	var h Hasher
	switch cfg.Algorithm {
	case "", AlgorithmBcrypt:
		b, err := NewBcrypt(cfg.BcryptCost, cfg.Policy)
		if err != nil {
			return nil, err
		}
		h = b
	case AlgorithmArgon2id:
		params := cfg.Argon2
		if params == (Argon2Params{}) {
			params = DefaultArgon2Params()
		}
		h = NewArgon2id(params, cfg.Policy)
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", cfg.Algorithm)
	}

	limit := cfg.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return NewPool(h, limit), nil
}
