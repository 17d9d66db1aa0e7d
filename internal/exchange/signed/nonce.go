package signed

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MaxNonce is the largest nonce the exchanges accept. The minimum-nonce
// state is bound server-side to the API key, so running past this value
// permanently exhausts the credential set.
const MaxNonce = 4294967294

// Sentinel errors for nonce handling.
var (
	// ErrInvalidNonce is returned when the exchange rejects a nonce as
	// too low or stale. This is fatal for the credential set: the
	// exchange tracks the minimum acceptable nonce per key, so the
	// condition is never locally retryable.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrNonceLimitReached refines ErrInvalidNonce: the counter has
	// reached MaxNonce and no further signed request can be made with
	// this key.
	ErrNonceLimitReached = fmt.Errorf("nonce limit reached: %w", ErrInvalidNonce)
)

// Nonce allocates strictly increasing nonce values for one credential set.
// Allocation is atomic, so concurrent signed calls never observe the same
// value. A nonce is consumed even when the request it signs ultimately
// fails; values are never reused or rolled back.
type Nonce struct {
	last atomic.Int64
}

// NewNonce creates a counter whose first allocated value is seed+1.
// Pass 0 for a fresh API key, or the last used value when resuming a
// previously-used key.
func NewNonce(seed int64) *Nonce {
	n := &Nonce{}
	n.last.Store(seed)
	return n
}

// Next allocates the next nonce value. Returns ErrNonceLimitReached once
// the counter would exceed MaxNonce.
func (n *Nonce) Next() (int64, error) {
	v := n.last.Add(1)
	if v > MaxNonce {
		return 0, ErrNonceLimitReached
	}
	return v, nil
}
