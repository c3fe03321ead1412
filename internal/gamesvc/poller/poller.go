package poller

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/service"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

const (
	DefaultInterval = time.Second

	startingCountdownMs = 5 * 1000
	eosWaitMs           = 3 * 1000
	eosExtendMs         = 2 * 1000
	retentionMs         = 300 * 1000

	// payoutDelay lets clients render the final round before balances move.
	payoutDelay = 5 * time.Second
)

// Poller advances every persisted game on a fixed interval. Ticks never
// overlap: RunOnce finishes all work before the next tick fires, so a game is
// mutated by at most one in-flight pass at a time.
type Poller struct {
	games     *store.GameStore
	eos       fair.EOSClient
	ledger    service.Ledger
	broadcast service.Broadcaster
	rules     map[models.GameType]Rules

	// BotFill seats roster bots on a waiting game past its expiry.
	BotFill func(ctx context.Context, g models.AnyGame) error
	// History commits a finished game to player histories, exactly once.
	History func(ctx context.Context, g models.AnyGame) error

	Interval time.Duration
	Now      func() time.Time
	// After schedules the delayed payout; replaced by tests to fire inline.
	After func(d time.Duration, f func())
}

func New(games *store.GameStore, eos fair.EOSClient, ledger service.Ledger, broadcast service.Broadcaster) *Poller {
	return &Poller{
		games:     games,
		eos:       eos,
		ledger:    ledger,
		broadcast: broadcast,
		rules:     make(map[models.GameType]Rules),
		Interval:  DefaultInterval,
		Now:       time.Now,
		After:     func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

func (p *Poller) Register(gameType models.GameType, rules Rules) {
	p.rules[gameType] = rules
}

// Run ticks until ctx is done, awaiting each pass fully.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				log.Errorf("game sweep failed: %v", err)
			}
		}
	}
}

// RunOnce lists all persisted games and advances each independently. A
// failure on one game never blocks the rest.
func (p *Poller) RunOnce(ctx context.Context) error {
	games, err := p.games.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		if err := p.advance(ctx, g); err != nil {
			log.Errorf("failed to advance game %s: %v", g.Base().ID, err)
		}
	}
	return nil
}

func (p *Poller) advance(ctx context.Context, g models.AnyGame) error {
	base := g.Base()
	rules, ok := p.rules[base.Type]
	if !ok {
		return nil
	}
	now := p.Now().UnixMilli()

	switch base.Status {
	case models.StatusWaiting:
		if base.Expires < now && !base.Full() && p.BotFill != nil {
			if err := p.BotFill(ctx, g); err != nil {
				log.Errorf("bot fill failed for %s: %v", base.ID, err)
			}
			// bots joined through the store; work from the fresh snapshot
			reloaded, err := p.games.Get(ctx, base.Type, base.ID)
			if err != nil || reloaded == nil {
				return err
			}
			g, base = reloaded, reloaded.Base()
		}
		if !base.Full() {
			return nil
		}
		base.Status = models.StatusStarting
		base.Expires = now + startingCountdownMs
		if err := p.save(ctx, g); err != nil {
			return err
		}
		p.broadcast.EmitToGame(base.ID, "starting", comm.StartingData{
			Start: base.Expires,
			Teams: base.Teams,
		})
		service.EmitUpdated(p.broadcast, g)
		return nil

	case models.StatusEnded:
		if !base.SavedHistory {
			base.SavedHistory = true
			if err := p.save(ctx, g); err != nil {
				return err
			}
			if p.History != nil {
				if err := p.History(ctx, g); err != nil {
					log.Errorf("failed to save history for %s: %v", base.ID, err)
				}
			}
		}
		if base.Expires < now {
			return p.games.Delete(ctx, base.Type, base.ID)
		}
		return nil
	}

	if base.Expires > now {
		return nil
	}

	if base.Status == models.StatusEOS && base.EOSBlock != 0 {
		passed, err := p.eos.HasBlockPassed(ctx, base.EOSBlock)
		if err != nil {
			return err
		}
		if !passed {
			// the committed block has not confirmed yet; without this wait
			// the operator could learn the outcome before commitment
			base.Expires = now + eosExtendMs
			return p.save(ctx, g)
		}
	}

	if base.Status == models.StatusStarting || (base.Status == models.StatusEOS && base.EOSBlock == 0) {
		height, id, err := p.eos.GetLatestBlock(ctx)
		if err != nil {
			return err
		}
		base.Status = models.StatusEOS
		base.EOSBlock = height
		base.ServerSeed = id
		base.Expires = now + eosWaitMs
		if err := rules.Setup(ctx, g); err != nil {
			return err
		}
		if err := p.save(ctx, g); err != nil {
			return err
		}
		p.broadcast.EmitToGame(base.ID, "eos", comm.EOSData{BlockHeight: height})
		service.EmitUpdated(p.broadcast, g)
		return nil
	}

	return p.startNextRound(ctx, g, rules)
}

func (p *Poller) startNextRound(ctx context.Context, g models.AnyGame, rules Rules) error {
	base := g.Base()
	base.Status = models.StatusInProgress
	base.Round++

	if base.Round >= len(base.RoundIDs) {
		return p.finalize(ctx, g, rules)
	}
	if err := rules.OnRound(ctx, g); err != nil {
		return err
	}
	service.EmitUpdated(p.broadcast, g)
	return nil
}

func (p *Poller) finalize(ctx context.Context, g models.AnyGame, rules Rules) error {
	base := g.Base()
	base.Status = models.StatusEnded
	base.Round--
	base.Expires = p.Now().UnixMilli() + retentionMs
	winnings := rules.Winnings(g)
	base.Winnings = &winnings

	// the persisted ended transition is the single-fire guard for the payout:
	// losing this CAS means another writer already finalized, so no payout
	// may be scheduled here
	if err := p.games.SaveCAS(ctx, g); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil
		}
		return err
	}
	p.After(payoutDelay, func() {
		p.giveWinnings(context.Background(), g, winnings)
	})

	ended := comm.EndedData{Winnings: &winnings}
	if battle, ok := g.(*models.CrateBattle); ok {
		ended.WonItems = battle.WonItems
	}
	p.broadcast.EmitToGame(base.ID, "ended", ended)
	service.EmitUpdated(p.broadcast, g)
	return nil
}

func (p *Poller) giveWinnings(ctx context.Context, g models.AnyGame, winnings models.Winnings) {
	base := g.Base()
	if len(base.Teams) == 0 || winnings.WinPerTeam == 0 {
		return
	}
	winPerPlayer := winnings.WinPerTeam / float64(base.Teams[0].MaxPlayers)
	xp := service.XPMultiplier(g)
	for _, teamID := range winnings.WinningTeams {
		for _, player := range base.Teams[teamID].Players {
			if player.Bot {
				continue
			}
			if err := p.ledger.AddWinnings(ctx, player.ID, winPerPlayer, false, xp); err != nil {
				log.Errorf("failed to credit winnings to %s for %s: %v", player.ID, base.ID, err)
			}
		}
	}
}

// save persists through compare-and-swap; losing the race just defers the
// transition to the next tick, which re-reads and re-evaluates.
func (p *Poller) save(ctx context.Context, g models.AnyGame) error {
	err := p.games.SaveCAS(ctx, g)
	if errors.Is(err, store.ErrVersionConflict) {
		log.Warnf("snapshot race on game %s, retrying next tick", g.Base().ID)
		return nil
	}
	return err
}
