package service

import "github.com/zuiy/crate-services/internal/gamesvc/models"

// Broadcaster fans events out to the presentation collaborator. Persistence
// always happens before broadcast; a crash in between leaves observers stale
// until the next poll, never wrong.
type Broadcaster interface {
	// Emit publishes a site-wide event ({type}_created, {type}_updated).
	Emit(event string, data interface{})
	// EmitToGame publishes a per-game channel event (new_round_{id},
	// starting_{id}, eos_{id}, player_joined_{id}, ended_{id}).
	EmitToGame(gameID, event string, data interface{})
}

func EmitCreated(b Broadcaster, g models.AnyGame) {
	if g.Base().Private {
		return
	}
	b.Emit(string(g.Base().Type)+"_created", g.PublicView())
}

func EmitUpdated(b Broadcaster, g models.AnyGame) {
	if g.Base().Private {
		return
	}
	b.Emit(string(g.Base().Type)+"_updated", g.PublicView())
}

// NopBroadcaster discards events; used by tests.
type NopBroadcaster struct{}

func (NopBroadcaster) Emit(string, interface{})               {}
func (NopBroadcaster) EmitToGame(string, string, interface{}) {}
