package service

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

type BattleService struct {
	games     *store.GameStore
	crates    CrateCatalog
	ledger    Ledger
	broadcast Broadcaster
	Now       func() time.Time
}

func NewBattleService(games *store.GameStore, crates CrateCatalog, ledger Ledger, broadcast Broadcaster) *BattleService {
	return &BattleService{
		games:     games,
		crates:    crates,
		ledger:    ledger,
		broadcast: broadcast,
		Now:       time.Now,
	}
}

type CreateBattleRequest struct {
	Crates         []string        `json:"crates"`
	Mode           models.TeamMode `json:"mode"`
	Cursed         bool            `json:"cursed"`
	Rainbow        bool            `json:"rainbow"`
	Terminal       bool            `json:"terminal"`
	Private        bool            `json:"priv"`
	PartialFunding float64         `json:"partialFunding"` // percent, 0..100
}

// CreateCaseBattle validates the request, prices the pot, seats the creator
// and persists the waiting game.
//
// With partial funding the creator pre-funds a fraction of every seat: each
// joiner pays the reduced joinCost and the creator is debited
// price + funding*(totalPlayers-1), so the final pot is always whole once the
// game fills.
func (s *BattleService) CreateCaseBattle(ctx context.Context, userID string, req CreateBattleRequest) (*models.CrateBattle, error) {
	if len(req.Crates) == 0 {
		return nil, invalidf("crates", "at least one case required")
	}
	if len(req.Crates) > models.MaxCasesPerBattle {
		return nil, invalidf("crates", "at most %d cases per battle", models.MaxCasesPerBattle)
	}
	if !req.Mode.Valid() {
		return nil, invalidf("mode", "unknown mode token %q", req.Mode)
	}
	if req.PartialFunding < 0 || req.PartialFunding > 100 {
		return nil, invalidf("partialFunding", "must be between 0 and 100")
	}
	funding := req.PartialFunding / 100

	crates, err := s.crates.GetCrates(ctx, req.Crates)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(crates))
	for _, crate := range crates {
		prices[crate.ID] = crate.Price
	}
	for _, id := range req.Crates {
		if _, ok := prices[id]; !ok {
			return nil, invalidf("crates", "unknown case %q", id)
		}
	}

	// single-case and group battles have nothing for terminal/rainbow/cursed
	// to distinguish
	if len(req.Crates) <= 1 || !req.Mode.Versus() {
		req.Terminal = false
		req.Rainbow = false
	}
	if req.Cursed && !req.Mode.Versus() {
		req.Cursed = false
	}

	caseIDs := append([]string(nil), req.Crates...)
	sort.SliceStable(caseIDs, func(i, j int) bool {
		return prices[caseIDs[i]] < prices[caseIDs[j]]
	})

	host, err := s.ledger.GetAccountData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, invalidf("user", "unknown account %s", userID)
	}
	teams := req.Mode.BuildTeams(host)

	price := 0.0
	for _, id := range caseIDs {
		price += prices[id]
	}
	totalPlayers := 0
	for _, t := range teams {
		totalPlayers += t.MaxPlayers
	}
	joinCost := price - price*funding
	partialFunding := price * funding
	price += partialFunding * float64(totalPlayers-1)

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(decimal.NewFromFloat(price)) {
		return nil, ErrInsufficientBalance
	}

	roundIDs := make([]string, len(caseIDs))
	for i := range caseIDs {
		roundIDs[i] = strconv.Itoa(i)
	}

	now := s.Now().UnixMilli()
	waitSeconds := int64(300)
	if partialFunding > 0 {
		waitSeconds = 500
	}
	battle := &models.CrateBattle{
		Game: models.Game{
			ID:             uuid.NewString()[:10],
			Type:           models.GameTypeCrateBattle,
			Status:         models.StatusWaiting,
			Teams:          teams,
			JoinCost:       joinCost,
			Cost:           price,
			Private:        req.Private,
			Expires:        now + waitSeconds*1000,
			CreatorID:      userID,
			RoundIDs:       roundIDs,
			Round:          -1,
			PartialFunding: partialFunding,
			StartDate:      now,
		},
		Mode:       req.Mode,
		CaseIDs:    caseIDs,
		RoundStart: now,
		Rainbow:    req.Rainbow,
		Terminal:   req.Terminal,
		Cursed:     req.Cursed,
		WonItems:   []models.CaseItem{},
		Crates:     crates,
	}

	if err := s.games.Save(ctx, battle); err != nil {
		return nil, err
	}
	if err := s.ledger.WagerBalance(ctx, userID, price); err != nil {
		log.Errorf("failed to debit battle cost for %s: %v", userID, err)
	}
	EmitCreated(s.broadcast, battle)
	return battle, nil
}

// OnRound draws one item per player from the round's case, appends them in
// round-major, team-major, player-major order and resets the round expiry.
func (s *BattleService) OnRound(ctx context.Context, battle *models.CrateBattle) error {
	roundID := battle.RoundIDs[battle.Round]
	crate, err := s.crates.GetCrate(ctx, battle.CaseIDs[battle.Round])
	if err != nil {
		return err
	}
	if crate == nil {
		return invalidf("crates", "case %q vanished from catalog", battle.CaseIDs[battle.Round])
	}

	for _, team := range battle.Teams {
		for _, player := range team.Players {
			clientSeed := player.ClientSeed
			if clientSeed == "" {
				clientSeed = player.ID
			}
			ticket := fair.Ticket(clientSeed, player.ID, roundID, battle.ServerSeed)
			item := fair.ResolveItem(ticket, crate.Items)
			battle.WonItems = append(battle.WonItems, item)
		}
	}

	battle.RoundStart = s.Now().UnixMilli()
	battle.Expires = battle.RoundStart + int64(models.CrateBattleRoundTimeSeconds*1000)
	if err := s.games.Save(ctx, battle); err != nil {
		return err
	}
	s.broadcast.EmitToGame(battle.ID, "new_round", comm.NewRoundData{
		Round:    battle.Round,
		WonItems: battle.WonItems,
		Start:    battle.RoundStart,
		Expires:  battle.Expires,
	})
	return nil
}

// Winnings computes the winner set and payout split for a battle whose
// processed rounds are reflected in wonItems.
//
// Versus modes award the teams tied for the extreme metric: summed item value
// (minimum when cursed), or distinct rarity-color count when rainbow; only
// the final round counts when terminal. Group modes split the pot across
// everyone. The payout is the value actually won, not the original pot.
func (s *BattleService) Winnings(battle *models.CrateBattle) models.Winnings {
	teamCount := len(battle.Teams)
	wonBalances := make([]float64, teamCount)
	lastWonBalances := make([]float64, teamCount)
	colors := make([]map[string]bool, teamCount)
	lastColors := make([]map[string]bool, teamCount)
	for i := range colors {
		colors[i] = map[string]bool{}
	}

	rounds := len(battle.WonItems)
	if players := battle.TotalPlayers(); players > 0 {
		rounds /= players
	}

	i := 0
	for j := 0; j < rounds; j++ {
		cratePrice := s.cratePrice(battle, j)
		for _, team := range battle.Teams {
			roundBalance := 0.0
			roundColors := map[string]bool{}
			for range team.Players {
				item := battle.WonItems[i]
				i++
				percentage := 0.0
				if cratePrice > 0 {
					percentage = item.Price / cratePrice
				}
				roundColors[models.ItemColor(percentage, item.Price)] = true
				roundBalance += item.Price
			}
			wonBalances[team.ID] += roundBalance
			for c := range roundColors {
				colors[team.ID][c] = true
			}
			if j == len(battle.RoundIDs)-1 {
				lastWonBalances[team.ID] = roundBalance
				lastColors[team.ID] = roundColors
			}
		}
	}

	var winningTeams []int
	if battle.Mode.Versus() {
		balances := wonBalances
		colorSets := colors
		if battle.Terminal {
			balances = lastWonBalances
			colorSets = lastColors
		}
		metrics := balances
		if battle.Rainbow {
			metrics = make([]float64, teamCount)
			for t, set := range colorSets {
				metrics[t] = float64(len(set))
			}
		}
		winner := metrics[0]
		for _, m := range metrics[1:] {
			if (battle.Cursed && m < winner) || (!battle.Cursed && m > winner) {
				winner = m
			}
		}
		for _, team := range battle.Teams {
			if metrics[team.ID] == winner {
				winningTeams = append(winningTeams, team.ID)
			}
		}
	} else {
		for _, team := range battle.Teams {
			winningTeams = append(winningTeams, team.ID)
		}
	}

	totalWon := 0.0
	for _, b := range wonBalances {
		totalWon += b
	}
	return models.Winnings{
		WonBalances:  wonBalances,
		WinningTeams: winningTeams,
		WinPerTeam:   totalWon / float64(len(winningTeams)),
	}
}

func (s *BattleService) cratePrice(battle *models.CrateBattle, round int) float64 {
	if round >= len(battle.CaseIDs) {
		return 0
	}
	id := battle.CaseIDs[round]
	for _, crate := range battle.Crates {
		if crate.ID == id {
			return crate.Price
		}
	}
	return 0
}

// XPMultiplier halves XP for group battles, where everyone wins by design.
func XPMultiplier(g models.AnyGame) float64 {
	if battle, ok := g.(*models.CrateBattle); ok && battle.Mode.Group() {
		return 0.5
	}
	return 1.0
}
