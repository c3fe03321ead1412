package service

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

// Ledger is the balance collaborator boundary. The engine debits at creation
// or join and credits at settlement; everything it reports is authoritative.
type Ledger interface {
	GetAccountData(ctx context.Context, userID string) (*models.AccountData, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	WagerBalance(ctx context.Context, userID string, amount float64) error
	AddWinnings(ctx context.Context, userID string, amount float64, reward bool, xpMultiplier float64) error
}

type LedgerService struct {
	balances *store.BalanceStore
	accounts *store.AccountStore
}

func NewLedgerService(balances *store.BalanceStore, accounts *store.AccountStore) *LedgerService {
	return &LedgerService{balances: balances, accounts: accounts}
}

func (s *LedgerService) GetAccountData(ctx context.Context, userID string) (*models.AccountData, error) {
	if bot := FindBot(userID); bot != nil {
		return bot, nil
	}
	return s.accounts.GetAccount(ctx, userID)
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.balances.GetBalanceByUserID(ctx, userID)
}

func (s *LedgerService) WagerBalance(ctx context.Context, userID string, amount float64) error {
	return s.balances.InsertEntry(ctx, userID, "wager",
		decimal.Zero, decimal.NewFromFloat(amount), "")
}

func (s *LedgerService) AddWinnings(ctx context.Context, userID string, amount float64, reward bool, xpMultiplier float64) error {
	ttype := "winnings"
	if reward {
		ttype = "reward"
	}
	// XP accrual lives with the account subsystem; the multiplier is recorded
	// for it to consume downstream.
	log.Infof("crediting %s %.2f (%s, xp x%.1f)", userID, amount, ttype, xpMultiplier)
	return s.balances.InsertEntry(ctx, userID, ttype,
		decimal.NewFromFloat(amount), decimal.Zero, "")
}
