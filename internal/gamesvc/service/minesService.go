package service

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

const (
	minesGameSeconds      = 60 * 30
	minesRetentionSeconds = 300
)

// MinesService owns the solo mines flow: one active game per user, keyed by
// the user id. The server seed is committed from the entropy pool at
// creation, so mines never pass through the eos state.
type MinesService struct {
	games     *store.GameStore
	ledger    Ledger
	fair      *fair.Engine
	broadcast Broadcaster
	Now       func() time.Time
}

func NewMinesService(games *store.GameStore, ledger Ledger, engine *fair.Engine, broadcast Broadcaster) *MinesService {
	return &MinesService{
		games:     games,
		ledger:    ledger,
		fair:      engine,
		broadcast: broadcast,
		Now:       time.Now,
	}
}

// Active returns the user's live mines game, or nil.
func (s *MinesService) Active(ctx context.Context, userID string) (*models.Mines, error) {
	g, err := s.games.Get(ctx, models.GameTypeMines, userID)
	if err != nil || g == nil {
		return nil, err
	}
	mines, ok := g.(*models.Mines)
	if !ok {
		return nil, nil
	}
	return mines, nil
}

// Create starts a mines game. The committed seed comes from the entropy
// pool; an exhausted pool is fatal and surfaces as fair.ErrEntropyExhausted.
func (s *MinesService) Create(ctx context.Context, userID string, bet float64, mineCount int) (*models.Mines, error) {
	active, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil && active.Status != models.StatusEnded {
		return active, nil
	}

	if bet < models.MinMinesBet {
		bet = models.MinMinesBet
	}
	if mineCount < 1 {
		mineCount = 1
	}
	if mineCount > models.MaxMines {
		mineCount = models.MaxMines
	}

	account, err := s.ledger.GetAccountData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, invalidf("user", "unknown account %s", userID)
	}
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(decimal.NewFromFloat(bet)) {
		return nil, ErrInsufficientBalance
	}

	serverSeed, err := s.fair.CommitServerSeed(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Now().UnixMilli()
	mines := &models.Mines{
		Game: models.Game{
			ID:         userID,
			Type:       models.GameTypeMines,
			Status:     models.StatusStarting,
			Teams:      []models.Team{{ID: 0, Players: []models.AccountData{*account}, MaxPlayers: 1}},
			Cost:       bet,
			Private:    true,
			CreatorID:  userID,
			RoundIDs:   []string{"0"},
			ServerSeed: serverSeed,
			Round:      -1,
			StartDate:  now,
		},
		MineCount: mineCount,
		Bet:       bet,
		Revealed:  []int{},
	}
	s.Setup(mines)

	if err := s.games.Save(ctx, mines); err != nil {
		return nil, err
	}
	if err := s.ledger.WagerBalance(ctx, userID, bet); err != nil {
		log.Errorf("failed to debit mines bet for %s: %v", userID, err)
	}
	return mines, nil
}

// Setup places each mine by drawing a ticket over the shrinking set of
// remaining cells, without replacement, from the committed seed. It then
// moves the game straight to in_progress.
func (s *MinesService) Setup(mines *models.Mines) {
	clientSeed := mines.CreatorID
	if len(mines.Teams) > 0 && len(mines.Teams[0].Players) > 0 && mines.Teams[0].Players[0].ClientSeed != "" {
		clientSeed = mines.Teams[0].Players[0].ClientSeed
	}
	roundID := mines.RoundIDs[0]

	grid := make([][]int, models.MineGridSize)
	for i := range grid {
		grid[i] = make([]int, models.MineGridSize)
	}
	possibilities := make([]int, models.MineGridSize*models.MineGridSize)
	for i := range possibilities {
		possibilities[i] = i
	}
	for i := 0; i < mines.MineCount; i++ {
		ticket := fair.Tickets(clientSeed, mines.CreatorID, roundID, mines.ServerSeed, float64(len(possibilities)))[0]
		index := int(ticket)
		if index >= len(possibilities) {
			index = len(possibilities) - 1
		}
		cell := possibilities[index]
		grid[cell/models.MineGridSize][cell%models.MineGridSize] = 1
		possibilities = append(possibilities[:index], possibilities[index+1:]...)
	}

	mines.Grid = grid
	mines.Status = models.StatusInProgress
	mines.Expires = s.Now().UnixMilli() + minesGameSeconds*1000
}

// Reveal uncovers one cell. A mine ends the game with no payout; clearing
// every safe cell auto-ends it as a full win.
func (s *MinesService) Reveal(ctx context.Context, userID string, x, y int) (*models.Mines, error) {
	mines, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if mines == nil {
		return nil, ErrGameNotFound
	}
	if mines.Status != models.StatusInProgress {
		return nil, ErrGameEnded
	}
	if x < 0 || y < 0 || x >= models.MineGridSize || y >= models.MineGridSize {
		return nil, invalidf("cell", "out of grid")
	}
	cell := x*models.MineGridSize + y
	for _, revealed := range mines.Revealed {
		if revealed == cell {
			return nil, ErrAlreadyRevealed
		}
	}
	mines.Revealed = append(mines.Revealed, cell)

	if mines.Grid[x][y] == 1 {
		return mines, s.Finish(ctx, mines, false)
	}
	if len(mines.Revealed) == mines.SafeCells() {
		return mines, s.Finish(ctx, mines, true)
	}
	if err := s.games.SaveCAS(ctx, mines); err != nil {
		return nil, err
	}
	return mines, nil
}

// Cash settles the game at the current multiplier.
func (s *MinesService) Cash(ctx context.Context, userID string) (*models.Mines, error) {
	mines, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if mines == nil {
		return nil, ErrGameNotFound
	}
	if mines.Status != models.StatusInProgress {
		return nil, ErrGameEnded
	}
	return mines, s.Finish(ctx, mines, true)
}

// Finish ends the game, crediting bet * multiplier on a win. The credit fires
// at most once: Finish is only reachable while status is in_progress and the
// ended transition is persisted in the same write.
func (s *MinesService) Finish(ctx context.Context, mines *models.Mines, won bool) error {
	if won {
		payout := mines.Bet * Multiplier(mines.MineCount, len(mines.Revealed))
		if err := s.ledger.AddWinnings(ctx, mines.CreatorID, payout, false, 1.0); err != nil {
			return err
		}
	}
	mines.Status = models.StatusEnded
	mines.Expires = s.Now().UnixMilli() + minesRetentionSeconds*1000
	if err := s.games.SaveCAS(ctx, mines); err != nil {
		return err
	}
	s.broadcast.EmitToGame(mines.ID, "ended", comm.MinesFinishedData{
		Grid:       mines.Grid,
		Mines:      mines.MineCount,
		Bet:        mines.Bet,
		ServerSeed: mines.ServerSeed,
		RoundID:    mines.RoundIDs[0],
		Won:        won,
	})
	return nil
}

// Multiplier is the payout ladder applied to the bet: 2^(mines - revealed).
func Multiplier(mineCount, revealed int) float64 {
	return math.Pow(2, float64(mineCount-revealed))
}
