package fair

import (
	"context"
	"errors"
	"testing"
)

type stubPool struct {
	seed string
	err  error
}

func (p stubPool) Pop(ctx context.Context) (string, error) { return p.seed, p.err }

func TestTicketsDeterministic(t *testing.T) {
	a := Tickets("client", "user-1", "0", "server-seed", TicketScale)
	b := Tickets("client", "user-1", "0", "server-seed", TicketScale)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("ticket %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTicketsPerDigest(t *testing.T) {
	tickets := Tickets("client", "user-1", "0", "server-seed", TicketScale)
	if len(tickets) != TicketsPerDigest {
		t.Fatalf("got %d tickets, want %d", len(tickets), TicketsPerDigest)
	}
}

func TestTicketsRange(t *testing.T) {
	cases := []struct {
		clientSeed, userID, roundID, serverSeed string
		scale                                   float64
	}{
		{"client", "user-1", "0", "seed-a", TicketScale},
		{"", "user-2", "3", "seed-b", TicketScale},
		{"GUEST", "user-3", "7", "seed-c", 25},
		{"client", "user-4", "0", "seed-d", 1},
	}
	for _, tc := range cases {
		for i, ticket := range Tickets(tc.clientSeed, tc.userID, tc.roundID, tc.serverSeed, tc.scale) {
			if ticket < 0 || ticket >= tc.scale {
				t.Errorf("ticket %d for %q/%q out of [0,%v): %v", i, tc.userID, tc.roundID, tc.scale, ticket)
			}
		}
	}
}

func TestTicketMatchesFirstDerived(t *testing.T) {
	want := Tickets("client", "user-1", "0", "seed", TicketScale)[0]
	if got := Ticket("client", "user-1", "0", "seed"); got != want {
		t.Fatalf("Ticket = %v, want %v", got, want)
	}
}

func TestTicketsVaryWithInputs(t *testing.T) {
	base := Ticket("client", "user-1", "0", "seed")
	variants := []float64{
		Ticket("other", "user-1", "0", "seed"),
		Ticket("client", "user-2", "0", "seed"),
		Ticket("client", "user-1", "1", "seed"),
		Ticket("client", "user-1", "0", "other-seed"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base ticket %v", i, base)
		}
	}
}

func TestCommitServerSeed(t *testing.T) {
	engine := NewEngine(stubPool{seed: "txid-1"})
	seed, err := engine.CommitServerSeed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seed != "txid-1" {
		t.Fatalf("got seed %q, want txid-1", seed)
	}
}

func TestCommitServerSeedExhausted(t *testing.T) {
	engine := NewEngine(stubPool{err: ErrEntropyExhausted})
	if _, err := engine.CommitServerSeed(context.Background()); !errors.Is(err, ErrEntropyExhausted) {
		t.Fatalf("got %v, want ErrEntropyExhausted", err)
	}
	engine = NewEngine(stubPool{seed: ""})
	if _, err := engine.CommitServerSeed(context.Background()); !errors.Is(err, ErrEntropyExhausted) {
		t.Fatalf("empty seed: got %v, want ErrEntropyExhausted", err)
	}
}

func TestRandomSeedUnique(t *testing.T) {
	if RandomSeed() == RandomSeed() {
		t.Fatal("two random seeds collided")
	}
	if len(RandomSeed()) != 64 {
		t.Fatalf("seed length %d, want 64 hex chars", len(RandomSeed()))
	}
}
