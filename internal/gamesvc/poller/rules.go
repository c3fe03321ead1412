package poller

import (
	"context"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/service"
)

// Rules are the per-type hooks of the state machine. Dispatch happens on the
// game's type tag through the poller's registry, never on scattered type
// assertions.
type Rules interface {
	// Setup fires once when the server seed is committed.
	Setup(ctx context.Context, g models.AnyGame) error
	// OnRound advances one round after the previous round's expiry.
	OnRound(ctx context.Context, g models.AnyGame) error
	// Winnings computes the final payout split once rounds are exhausted.
	Winnings(g models.AnyGame) models.Winnings
}

// BattleRules adapts crate battles to the state machine.
type BattleRules struct {
	Battles *service.BattleService
}

func (r BattleRules) Setup(ctx context.Context, g models.AnyGame) error { return nil }

func (r BattleRules) OnRound(ctx context.Context, g models.AnyGame) error {
	return r.Battles.OnRound(ctx, g.(*models.CrateBattle))
}

func (r BattleRules) Winnings(g models.AnyGame) models.Winnings {
	return r.Battles.Winnings(g.(*models.CrateBattle))
}

// MinesRules exists for the poller only as a timeout: an abandoned game is
// auto-lost. Everything else in mines is player-driven; its seed is committed
// at creation so it never passes the eos state.
type MinesRules struct {
	Mines *service.MinesService
}

func (r MinesRules) Setup(ctx context.Context, g models.AnyGame) error {
	r.Mines.Setup(g.(*models.Mines))
	return nil
}

func (r MinesRules) OnRound(ctx context.Context, g models.AnyGame) error {
	return r.Mines.Finish(ctx, g.(*models.Mines), false)
}

func (r MinesRules) Winnings(g models.AnyGame) models.Winnings {
	return models.Winnings{WonBalances: []float64{}, WinningTeams: []int{}}
}

// SpinnerRules is a placeholder for the reserved spinner type.
type SpinnerRules struct{}

func (SpinnerRules) Setup(ctx context.Context, g models.AnyGame) error   { return nil }
func (SpinnerRules) OnRound(ctx context.Context, g models.AnyGame) error { return nil }
func (SpinnerRules) Winnings(g models.AnyGame) models.Winnings {
	return models.Winnings{WonBalances: []float64{}, WinningTeams: []int{}}
}
