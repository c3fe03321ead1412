package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

// fakeLedger is an in-memory Ledger recording every debit and credit.
type fakeLedger struct {
	mu       sync.Mutex
	accounts map[string]models.AccountData
	balances map[string]float64
	wagers   []float64
	credits  []float64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: map[string]models.AccountData{},
		balances: map[string]float64{},
	}
}

func (l *fakeLedger) addAccount(id string, balance float64) {
	l.accounts[id] = models.AccountData{ID: id, DisplayName: "player " + id}
	l.balances[id] = balance
}

func (l *fakeLedger) GetAccountData(ctx context.Context, userID string) (*models.AccountData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (l *fakeLedger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return decimal.NewFromFloat(l.balances[userID]), nil
}

func (l *fakeLedger) WagerBalance(ctx context.Context, userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] -= amount
	l.wagers = append(l.wagers, amount)
	return nil
}

func (l *fakeLedger) AddWinnings(ctx context.Context, userID string, amount float64, reward bool, xpMultiplier float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.credits = append(l.credits, amount)
	return nil
}

func (l *fakeLedger) creditCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.credits)
}

func (l *fakeLedger) creditTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for _, c := range l.credits {
		total += c
	}
	return total
}

// fakeCatalog serves cases from a fixed map.
type fakeCatalog struct {
	cases map[string]models.Case
}

func newFakeCatalog(cases ...models.Case) *fakeCatalog {
	c := &fakeCatalog{cases: map[string]models.Case{}}
	for _, crate := range cases {
		c.cases[crate.ID] = crate
	}
	return c
}

func (c *fakeCatalog) GetCrate(ctx context.Context, crateID string) (*models.Case, error) {
	crate, ok := c.cases[crateID]
	if !ok {
		return nil, nil
	}
	return &crate, nil
}

func (c *fakeCatalog) GetCrates(ctx context.Context, crateIDs []string) ([]models.Case, error) {
	var crates []models.Case
	seen := map[string]bool{}
	for _, id := range crateIDs {
		if crate, ok := c.cases[id]; ok && !seen[id] {
			crates = append(crates, crate)
			seen[id] = true
		}
	}
	return crates, nil
}

func item(id string, price, weight float64) models.CaseItem {
	return models.CaseItem{
		MarketItem: models.MarketItem{ID: id, Price: price},
		Weight:     weight,
	}
}

func testCase(id string, price float64, items ...models.CaseItem) models.Case {
	return models.Case{ID: id, Name: id, Price: price, Items: items}
}

// fixedClock pins Now to a mutable instant for expiry tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Unix(1700000000, 0)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
