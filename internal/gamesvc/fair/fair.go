package fair

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// TicketScale is the default upper bound (exclusive) of derived tickets.
const TicketScale = 10000

// TicketsPerDigest is how many tickets one 32-byte HMAC digest yields.
const TicketsPerDigest = 8

// ErrEntropyExhausted means the pre-populated entropy pool is empty. The pool
// is refilled out of process, so this is fatal for the operation: there is no
// seed to commit.
var ErrEntropyExhausted = errors.New("entropy pool exhausted")

// EntropyPool pops one-time-use server seeds sourced from a public ledger.
type EntropyPool interface {
	Pop(ctx context.Context) (string, error)
}

// Engine derives deterministic ticket values from committed seeds.
type Engine struct {
	pool EntropyPool
}

func NewEngine(pool EntropyPool) *Engine {
	return &Engine{pool: pool}
}

// CommitServerSeed consumes one value from the entropy pool. Each value is
// used exactly once; an empty pool surfaces ErrEntropyExhausted.
func (e *Engine) CommitServerSeed(ctx context.Context) (string, error) {
	seed, err := e.pool.Pop(ctx)
	if err != nil {
		return "", err
	}
	if seed == "" {
		return "", ErrEntropyExhausted
	}
	return seed, nil
}

// Tickets derives up to TicketsPerDigest ticket values in [0, scale) from the
// committed inputs. HMAC-SHA256 is keyed by serverSeed over the message
// "clientSeed:userId:roundId"; each successive 4-byte group of the digest is
// read as a base-256 fixed-point fraction and scaled.
//
// The derivation is pure: identical inputs always produce identical tickets,
// which is what makes outcomes independently re-verifiable.
func Tickets(clientSeed, userID, roundID, serverSeed string, scale float64) []float64 {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(mac, "%s:%s:%s", clientSeed, userID, roundID)
	digest := mac.Sum(nil)

	tickets := make([]float64, 0, TicketsPerDigest)
	for off := 0; off+4 <= len(digest); off += 4 {
		frac := 0.0
		divider := 256.0
		for i := 0; i < 4; i++ {
			frac += float64(digest[off+i]) / divider
			divider *= 256
		}
		tickets = append(tickets, frac*scale)
	}
	return tickets
}

// Ticket returns the first derived ticket at the default scale.
func Ticket(clientSeed, userID, roundID, serverSeed string) float64 {
	return Tickets(clientSeed, userID, roundID, serverSeed, TicketScale)[0]
}

// RandomSeed produces a throwaway seed for demo openings, which bypass the
// committed entropy pool entirely.
func RandomSeed() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
