package pow

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/crypto"
)

const (
	// Difficulty is the number of leading hexadecimal '0' characters a
	// block hash must carry. It is part of every block's hash pre-image.
	Difficulty = 4

	// maxDifficulty is the length of a hex SHA-256 digest
	maxDifficulty = 64

	// ctxCheckInterval is how many nonces are tried between context checks
	ctxCheckInterval = 1 << 12
)

var (
	// ErrDegenerateTarget is returned when the all-zero comparison prefix
	// cannot be built for a difficulty.
	ErrDegenerateTarget = errors.New("degenerate difficulty target")

	// ErrAttemptsExhausted is returned when a bounded search tries every
	// allowed nonce without success.
	ErrAttemptsExhausted = errors.New("mining attempts exhausted")
)

// Target is the leading-zero condition a digest must meet
type Target struct {
	difficulty int
	prefix     string
}

// NewTarget builds the comparison prefix for difficulty
func NewTarget(difficulty int) (Target, error) {
	if difficulty <= 0 || difficulty > maxDifficulty {
		return Target{}, errors.Wrapf(ErrDegenerateTarget, "difficulty %d", difficulty)
	}
	return Target{
		difficulty: difficulty,
		prefix:     strings.Repeat("0", difficulty),
	}, nil
}

// DefaultTarget returns the target for Difficulty
func DefaultTarget() (Target, error) {
	return NewTarget(Difficulty)
}

// Difficulty returns the number of leading zeros required
func (t Target) Difficulty() int {
	return t.difficulty
}

// IsMetBy checks if a hex digest meets the target
func (t Target) IsMetBy(digest string) bool {
	if t.prefix == "" {
		return false
	}
	return strings.HasPrefix(digest, t.prefix)
}

// PayloadFunc returns the hash pre-image for a nonce
type PayloadFunc func(nonce uint64) ([]byte, error)

// Result is a successful search
type Result struct {
	Nonce    uint64
	Hash     string
	Attempts uint64
}

// Search tries nonces 0, 1, 2, ... until the digest of payload(nonce)
// meets target. maxAttempts of zero means no bound. The search stops early
// if ctx is done or payload fails.
func Search(ctx context.Context, payload PayloadFunc, target Target, maxAttempts uint64) (Result, error) {
	if target.prefix == "" {
		return Result{}, errors.Wrap(ErrDegenerateTarget, "zero target")
	}

	for nonce := uint64(0); maxAttempts == 0 || nonce < maxAttempts; nonce++ {
		if nonce%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, errors.Wrapf(err, "mining stopped after %d attempts", nonce)
			}
		}

		data, err := payload(nonce)
		if err != nil {
			return Result{}, err
		}

		hash := crypto.HashHex(data)
		if target.IsMetBy(hash) {
			return Result{Nonce: nonce, Hash: hash, Attempts: nonce + 1}, nil
		}
	}

	return Result{}, errors.Wrapf(ErrAttemptsExhausted, "%d attempts", maxAttempts)
}

// Check recomputes the digest of payload at nonce and checks it against
// target.
func Check(payload PayloadFunc, nonce uint64, target Target) (string, bool, error) {
	data, err := payload(nonce)
	if err != nil {
		return "", false, err
	}
	hash := crypto.HashHex(data)
	return hash, target.IsMetBy(hash), nil
}
