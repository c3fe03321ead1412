package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

// casRetries bounds how often a join re-reads after losing a snapshot race.
const casRetries = 3

// CrateCatalog is the read side of the case catalog.
type CrateCatalog interface {
	GetCrate(ctx context.Context, crateID string) (*models.Case, error)
	GetCrates(ctx context.Context, crateIDs []string) ([]models.Case, error)
}

type GameService struct {
	games     *store.GameStore
	crates    CrateCatalog
	ledger    Ledger
	broadcast Broadcaster
	Now       func() time.Time
}

func NewGameService(games *store.GameStore, crates CrateCatalog, ledger Ledger, broadcast Broadcaster) *GameService {
	return &GameService{
		games:     games,
		crates:    crates,
		ledger:    ledger,
		broadcast: broadcast,
		Now:       time.Now,
	}
}

// GetGame loads one game and denormalizes crate snapshots onto battles.
func (s *GameService) GetGame(ctx context.Context, gameType models.GameType, id string) (models.AnyGame, error) {
	g, err := s.games.Get(ctx, gameType, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	if battle, ok := g.(*models.CrateBattle); ok {
		if err := s.hydrateCrates(ctx, battle); err != nil {
			log.Errorf("failed to hydrate crates for %s: %v", battle.ID, err)
		}
	}
	return g, nil
}

func (s *GameService) hydrateCrates(ctx context.Context, battle *models.CrateBattle) error {
	crates, err := s.crates.GetCrates(ctx, battle.CaseIDs)
	if err != nil {
		return err
	}
	battle.Crates = crates
	return nil
}

// ListGames returns public views of every game of a type.
func (s *GameService) ListGames(ctx context.Context, gameType models.GameType) ([]models.AnyGame, error) {
	games, err := s.games.ListByType(ctx, gameType)
	if err != nil {
		return nil, err
	}
	views := make([]models.AnyGame, 0, len(games))
	for _, g := range games {
		views = append(views, g.PublicView())
	}
	return views, nil
}

// JoinGame seats userID in the game, debiting joinCost for non-bots. The
// write is a compare-and-swap: a concurrent join of the same slot makes one
// caller lose with ErrSlotTaken after re-reading, never a double seat.
func (s *GameService) JoinGame(ctx context.Context, userID string, gameType models.GameType, id string, teamID int) (models.AnyGame, error) {
	player, err := s.ledger.GetAccountData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if player == nil {
		return nil, invalidf("user", "unknown account %s", userID)
	}
	return s.seatPlayer(ctx, *player, gameType, id, teamID)
}

func (s *GameService) seatPlayer(ctx context.Context, player models.AccountData, gameType models.GameType, id string, teamID int) (models.AnyGame, error) {
	for attempt := 0; ; attempt++ {
		g, err := s.games.Get(ctx, gameType, id)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, ErrGameNotFound
		}
		base := g.Base()
		if base.Status != models.StatusWaiting {
			return nil, ErrGameEnded
		}
		if base.FindPlayerTeam(player.ID) != nil {
			return nil, ErrAlreadyJoined
		}
		team := pickTeam(base, teamID)
		if team == nil {
			return nil, ErrSlotTaken
		}
		if !player.Bot {
			balance, err := s.ledger.GetBalance(ctx, player.ID)
			if err != nil {
				return nil, err
			}
			if balance.LessThan(decimal.NewFromFloat(base.JoinCost)) {
				return nil, ErrInsufficientBalance
			}
		}
		team.Players = append(team.Players, player)

		err = s.games.SaveCAS(ctx, g)
		if errors.Is(err, store.ErrVersionConflict) && attempt < casRetries {
			continue
		}
		if err != nil {
			return nil, err
		}

		// the seat is won; debit after the write so race losers never pay
		if !player.Bot {
			if err := s.ledger.WagerBalance(ctx, player.ID, base.JoinCost); err != nil {
				log.Errorf("failed to debit join cost for %s: %v", player.ID, err)
			}
		}
		s.broadcast.EmitToGame(base.ID, "player_joined", comm.PlayerJoinedData{
			Teams: base.Teams,
		})
		EmitUpdated(s.broadcast, g)
		return g, nil
	}
}

func pickTeam(base *models.Game, teamID int) *models.Team {
	if teamID >= 0 {
		for i := range base.Teams {
			if base.Teams[i].ID == teamID {
				if len(base.Teams[i].Players) >= base.Teams[i].MaxPlayers {
					return nil
				}
				return &base.Teams[i]
			}
		}
	}
	for i := range base.Teams {
		if len(base.Teams[i].Players) < base.Teams[i].MaxPlayers {
			return &base.Teams[i]
		}
	}
	return nil
}

// CallBots fills empty seats with roster bots. Only the creator may call bots
// explicitly; the poller calls with an empty userID when a waiting game
// expires.
func (s *GameService) CallBots(ctx context.Context, gameType models.GameType, id, userID string, teamID int) (models.AnyGame, error) {
	g, err := s.games.Get(ctx, gameType, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	base := g.Base()
	if userID != "" && base.CreatorID != "" && base.CreatorID != userID {
		return nil, invalidf("user", "only the creator may call bots")
	}

	needed := 0
	if teamID >= 0 {
		needed = 1
	} else {
		for _, t := range base.Teams {
			needed += t.MaxPlayers - len(t.Players)
		}
	}
	picked := UniqueBots(needed, base.Teams)
	if len(picked) == 0 {
		return g, nil
	}

	var joined models.AnyGame
	for _, bot := range picked {
		// teamID < 0 lets seatPlayer take the first open slot
		joined, err = s.seatPlayer(ctx, bot, gameType, id, teamID)
		if err != nil && !errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
	}
	return joined, nil
}
