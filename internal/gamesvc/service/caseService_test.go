package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

func newCaseFixture(seeds ...string) (*CaseOpenService, *fakeLedger, *fixedClock) {
	kv := store.NewMemory()
	catalog := newFakeCatalog(
		testCase("case_a", 1, item("black", 2, 5000), item("white", 0.5, 5000)),
	)
	ledger := newFakeLedger()
	ledger.addAccount("u1", 100)
	engine := fair.NewEngine(store.NewMemoryEntropy(seeds...))
	svc := NewCaseOpenService(kv, catalog, ledger, engine)
	clock := newFixedClock()
	svc.Now = clock.Now
	return svc, ledger, clock
}

func TestOpenDemo(t *testing.T) {
	svc, ledger, _ := newCaseFixture()
	result, err := svc.Open(context.Background(), "case_a", "", 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.WonItems) != 1 || len(result.Tickets) != 1 {
		t.Fatalf("result = %+v, want a single draw", result)
	}
	if result.ServerSeed == "" {
		t.Error("demo opening has no seed to verify against")
	}
	if len(ledger.wagers) != 0 {
		t.Errorf("demo opening debited the ledger: %v", ledger.wagers)
	}
}

func TestOpenPersistsAndDebits(t *testing.T) {
	svc, ledger, _ := newCaseFixture("seed-a")
	ctx := context.Background()

	result, err := svc.Open(ctx, "case_a", "u1", 3, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.WonItems) != 3 {
		t.Fatalf("won items = %d, want 3", len(result.WonItems))
	}
	if result.ServerSeed != "seed-a" {
		t.Errorf("server seed = %q, want the committed pool value", result.ServerSeed)
	}
	if len(ledger.wagers) != 1 || ledger.wagers[0] != 3 {
		t.Errorf("wagers = %v, want one debit of 3", ledger.wagers)
	}

	opening, err := svc.Running(ctx, "case_a", "u1")
	if err != nil {
		t.Fatalf("running failed: %v", err)
	}
	if opening == nil {
		t.Fatal("no live session after open")
	}
	if len(opening.WonItems) != 3 || opening.ServerSeed != "seed-a" {
		t.Errorf("session = %+v, does not match the open result", opening)
	}
}

func TestOpenValidation(t *testing.T) {
	svc, _, _ := newCaseFixture("seed-a", "seed-b")
	ctx := context.Background()

	if _, err := svc.Open(ctx, "case_a", "u1", MaxCasesPerOpen+1, false); err == nil {
		t.Fatal("amount above cap accepted")
	}
	if _, err := svc.Open(ctx, "missing", "u1", 1, false); err == nil {
		t.Fatal("unknown case accepted")
	}
	if _, err := svc.Open(ctx, "case_a", "", 1, false); err == nil {
		t.Fatal("anonymous non-demo opening accepted")
	}

	if _, err := svc.Open(ctx, "case_a", "u1", 1, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Open(ctx, "case_a", "u1", 1, false); !errors.Is(err, ErrOpeningInProgress) {
		t.Fatalf("second open: got %v, want ErrOpeningInProgress", err)
	}
}

func TestFinishCreditsExactlyOnce(t *testing.T) {
	svc, ledger, _ := newCaseFixture("seed-a")
	ctx := context.Background()

	result, err := svc.Open(ctx, "case_a", "u1", 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 0.0
	for _, item := range result.WonItems {
		want += item.Price
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Finish(ctx, "case_a", "u1"); err != nil {
				t.Errorf("finish failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if ledger.creditCount() != 1 {
		t.Fatalf("credits = %v, want exactly one", ledger.credits)
	}
	if ledger.creditTotal() != want {
		t.Errorf("credited %v, want %v", ledger.creditTotal(), want)
	}

	opening, err := svc.Running(ctx, "case_a", "u1")
	if err != nil || opening != nil {
		t.Errorf("session survived settlement: %+v %v", opening, err)
	}
}

func TestLateFinishStillSettles(t *testing.T) {
	svc, ledger, clock := newCaseFixture("seed-a")
	ctx := context.Background()

	result, err := svc.Open(ctx, "case_a", "u1", 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(time.Duration(caseLeaseSeconds+1) * time.Second)

	if opening, _ := svc.Running(ctx, "case_a", "u1"); opening != nil {
		t.Error("expired lease still reported as running")
	}

	// the delete decides ownership, so the payout lands even past the lease
	if err := svc.Finish(ctx, "case_a", "u1"); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if ledger.creditCount() != 1 || ledger.credits[0] != result.WonItems[0].Price {
		t.Fatalf("credits = %v, want the late finish settled once", ledger.credits)
	}

	// the sweep finds nothing left to settle
	if err := svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if ledger.creditCount() != 1 {
		t.Fatalf("sweep double-credited: %v", ledger.credits)
	}
}

func TestSweepSettlesExpiredSessions(t *testing.T) {
	svc, ledger, clock := newCaseFixture("seed-a")
	ctx := context.Background()

	result, err := svc.Open(ctx, "case_a", "u1", 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(time.Duration(caseLeaseSeconds+1) * time.Second)

	if err := svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if ledger.creditCount() != 1 || ledger.credits[0] != result.WonItems[0].Price {
		t.Fatalf("credits = %v, want the abandoned opening settled once", ledger.credits)
	}

	// a second sweep finds nothing to settle
	if err := svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if ledger.creditCount() != 1 {
		t.Fatalf("second sweep double-credited: %v", ledger.credits)
	}
}

func TestOpenDeterministicOutcome(t *testing.T) {
	first, _, _ := newCaseFixture("seed-a")
	second, _, _ := newCaseFixture("seed-a")
	ctx := context.Background()

	a, err := first.Open(ctx, "case_a", "u1", 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := second.Open(ctx, "case_a", "u1", 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a.WonItems {
		if a.WonItems[i].ID != b.WonItems[i].ID || a.Tickets[i] != b.Tickets[i] {
			t.Fatalf("draw %d differs across identical seeds", i)
		}
	}
}
