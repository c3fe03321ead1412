package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

const (
	// MaxCasesPerOpen caps the multi-spin amount of one opening.
	MaxCasesPerOpen = 5
	// caseLeaseSeconds is how long a session may stay unsettled before the
	// sweep settles it.
	caseLeaseSeconds = 30
)

func openingKey(userID, caseID string) string {
	return fmt.Sprintf("crate_openings_%s_%s", userID, caseID)
}

// CaseOpenService runs the ephemeral single/multi-spin case-opening flow.
// Sessions live outside the multiplayer game store, one live session per
// (user, case), and settle exactly once: deleting the session key is the
// linearization point for the credit.
type CaseOpenService struct {
	kv     store.KV
	crates CrateCatalog
	ledger Ledger
	fair   *fair.Engine
	Now    func() time.Time
}

func NewCaseOpenService(kv store.KV, crates CrateCatalog, ledger Ledger, engine *fair.Engine) *CaseOpenService {
	return &CaseOpenService{
		kv:     kv,
		crates: crates,
		ledger: ledger,
		fair:   engine,
		Now:    time.Now,
	}
}

type OpenResult struct {
	WonItems   []models.CaseItem `json:"wonItems"`
	Tickets    []float64         `json:"tickets"`
	ServerSeed string            `json:"serverSeed"`
	RoundIDs   []string          `json:"roundIDs"`
}

// Open starts a case opening. Demo mode is a pure computation: no balance
// check, no debit, no session — it uses a throwaway seed instead of the
// committed pool. Non-demo openings debit the cost up front and persist a
// leased session holding the outcome.
func (s *CaseOpenService) Open(ctx context.Context, caseID, userID string, amount int, demo bool) (*OpenResult, error) {
	if userID == "" && !demo {
		return nil, invalidf("user", "login required")
	}
	if amount < 1 {
		amount = 1
	}
	if amount > MaxCasesPerOpen {
		return nil, invalidf("amount", "at most %d cases per opening", MaxCasesPerOpen)
	}
	crate, err := s.crates.GetCrate(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if crate == nil {
		return nil, invalidf("crate", "unknown case %q", caseID)
	}
	price := crate.Price * float64(amount)

	clientSeed := "GUEST"
	var serverSeed string
	if demo {
		serverSeed = fair.RandomSeed()
	} else {
		running, err := s.Running(ctx, caseID, userID)
		if err != nil {
			return nil, err
		}
		if running != nil {
			return nil, ErrOpeningInProgress
		}
		account, err := s.ledger.GetAccountData(ctx, userID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, invalidf("user", "unknown account %s", userID)
		}
		if account.ClientSeed != "" {
			clientSeed = account.ClientSeed
		}
		balance, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(decimal.NewFromFloat(price)) {
			return nil, ErrInsufficientBalance
		}
		serverSeed, err = s.fair.CommitServerSeed(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := &OpenResult{ServerSeed: serverSeed}
	for i := 0; i < amount; i++ {
		roundID := strconv.Itoa(i)
		ticket := fair.Ticket(clientSeed, userID, roundID, serverSeed)
		item := fair.ResolveItem(ticket, crate.Items)
		result.WonItems = append(result.WonItems, item)
		result.RoundIDs = append(result.RoundIDs, roundID)
		result.Tickets = append(result.Tickets, ticket)
	}

	if !demo {
		now := s.Now().UnixMilli()
		opening := models.CaseOpening{
			ServerSeed: serverSeed,
			RoundIDs:   result.RoundIDs,
			Expiry:     now + caseLeaseSeconds*1000,
			StartTime:  now,
			WonItems:   result.WonItems,
			Tickets:    result.Tickets,
		}
		data, err := json.Marshal(opening)
		if err != nil {
			return nil, err
		}
		if err := s.kv.Set(ctx, openingKey(userID, caseID), data); err != nil {
			return nil, err
		}
		if err := s.ledger.WagerBalance(ctx, userID, price); err != nil {
			log.Errorf("failed to debit case opening for %s: %v", userID, err)
		}
	}
	return result, nil
}

// Running returns the user's live session for the case, treating an expired
// lease as absent.
func (s *CaseOpenService) Running(ctx context.Context, caseID, userID string) (*models.CaseOpening, error) {
	entry, err := s.kv.Get(ctx, openingKey(userID, caseID))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	opening := &models.CaseOpening{}
	if err := json.Unmarshal(entry.Value, opening); err != nil {
		return nil, err
	}
	if opening.Expiry < s.Now().UnixMilli() {
		return nil, nil
	}
	return opening, nil
}

// Finish settles a session. Deleting the key decides the winner between
// concurrent callers and the sweep, so the credit happens exactly once; a
// second call is a no-op. A finish arriving after the lease expired still
// settles: the delete already decided ownership, and the sweep finds nothing.
func (s *CaseOpenService) Finish(ctx context.Context, caseID, userID string) error {
	value, err := s.kv.Delete(ctx, openingKey(userID, caseID))
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	opening := &models.CaseOpening{}
	if err := json.Unmarshal(value, opening); err != nil {
		return err
	}
	wonBalance := 0.0
	for _, item := range opening.WonItems {
		wonBalance += item.Price
	}
	return s.ledger.AddWinnings(ctx, userID, wonBalance, false, 1.0)
}

// Sweep finishes every session whose lease expired without explicit
// settlement, guaranteeing the payout even if the client vanished.
func (s *CaseOpenService) Sweep(ctx context.Context) error {
	entries, err := s.kv.List(ctx, "crate_openings_")
	if err != nil {
		return err
	}
	now := s.Now().UnixMilli()
	for _, entry := range entries {
		opening := &models.CaseOpening{}
		if err := json.Unmarshal(entry.Value, opening); err != nil {
			log.Errorf("bad opening snapshot at %s: %v", entry.Key, err)
			continue
		}
		if opening.Expiry >= now {
			continue
		}
		userID, caseID, ok := splitOpeningKey(entry.Key)
		if !ok {
			continue
		}
		if err := s.Finish(ctx, caseID, userID); err != nil {
			log.Errorf("failed to sweep opening %s: %v", entry.Key, err)
		}
	}
	return nil
}

// Run sweeps on a fixed interval; each sweep completes before the next
// starts.
func (s *CaseOpenService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Errorf("case opening sweep failed: %v", err)
			}
		}
	}
}

func splitOpeningKey(key string) (userID, caseID string, ok bool) {
	rest := key[len("crate_openings_"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '_' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
