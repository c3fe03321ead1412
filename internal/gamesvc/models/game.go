package models

import (
	"encoding/json"
	"fmt"
)

type GameType string

const (
	GameTypeCrateBattle GameType = "crate_battle"
	GameTypeSpinner     GameType = "spinner"
	GameTypeMines       GameType = "mines"
)

func IsValidType(t string) bool {
	switch GameType(t) {
	case GameTypeCrateBattle, GameTypeSpinner, GameTypeMines:
		return true
	}
	return false
}

type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusStarting   GameStatus = "starting"
	StatusEOS        GameStatus = "eos"
	StatusInProgress GameStatus = "in_progress"
	StatusEnded      GameStatus = "ended"
)

// Rank orders statuses for the monotonic-transition invariant: a game never
// moves to a lower-ranked status.
func (s GameStatus) Rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusStarting:
		return 1
	case StatusEOS:
		return 2
	case StatusInProgress:
		return 3
	case StatusEnded:
		return 4
	}
	return -1
}

// AccountData is an opaque reference to a platform account, snapshotted into
// team rosters. Balance and ledger state live with the ledger collaborator,
// never here.
type AccountData struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	ProfilePicture string `json:"profilePicture"`
	ClientSeed     string `json:"clientSeed,omitempty"`
	Bot            bool   `json:"bot,omitempty"`
}

type Team struct {
	ID         int           `json:"id"`
	Players    []AccountData `json:"players"`
	MaxPlayers int           `json:"maxPlayers"`
}

type Winnings struct {
	WonBalances  []float64 `json:"wonBalances"`
	WinningTeams []int     `json:"winningTeams"`
	WinPerTeam   float64   `json:"winPerTeam"`
}

// Game holds the fields shared by every game variant. Timestamps are unix
// milliseconds. Version is the store snapshot version used for
// compare-and-swap writes and is never serialized into the snapshot itself.
type Game struct {
	ID             string     `json:"id"`
	Type           GameType   `json:"type"`
	Status         GameStatus `json:"status"`
	EOSBlock       int64      `json:"eosBlock,omitempty"`
	Teams          []Team     `json:"teams"`
	JoinCost       float64    `json:"joinCost"`
	Cost           float64    `json:"cost"`
	Private        bool       `json:"private"`
	SavedHistory   bool       `json:"savedHistory,omitempty"`
	Expires        int64      `json:"expires"`
	CreatorID      string     `json:"creatorId"`
	RoundIDs       []string   `json:"roundIDs"`
	ServerSeed     string     `json:"serverSeed"`
	Round          int        `json:"round"`
	PartialFunding float64    `json:"partialFunding"`
	Winnings       *Winnings  `json:"winnings,omitempty"`
	StartDate      int64      `json:"startDate"`

	Version int64 `json:"-"`
}

func (g *Game) Base() *Game { return g }

// TotalPlayers counts slots across all teams.
func (g *Game) TotalPlayers() int {
	n := 0
	for _, t := range g.Teams {
		n += t.MaxPlayers
	}
	return n
}

// Full reports whether every team slot is taken.
func (g *Game) Full() bool {
	for _, t := range g.Teams {
		if len(t.Players) < t.MaxPlayers {
			return false
		}
	}
	return true
}

// FindPlayerTeam returns the team containing userID, or nil.
func (g *Game) FindPlayerTeam(userID string) *Team {
	for i := range g.Teams {
		for _, p := range g.Teams[i].Players {
			if p.ID == userID {
				return &g.Teams[i]
			}
		}
	}
	return nil
}

// AnyGame is the tagged union over game variants. Concrete types are
// *CrateBattle, *Mines and *Spinner; dispatch happens on Base().Type.
type AnyGame interface {
	Base() *Game
	// PublicView returns a copy safe to send to clients, with server-only
	// fields redacted.
	PublicView() AnyGame
}

type Spinner struct {
	Game
}

func (s *Spinner) PublicView() AnyGame {
	cp := *s
	return &cp
}

// DecodeGame unmarshals a full game snapshot into its concrete variant.
func DecodeGame(data []byte) (AnyGame, error) {
	var tag struct {
		Type GameType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to decode game snapshot: %w", err)
	}
	var g AnyGame
	switch tag.Type {
	case GameTypeCrateBattle:
		g = &CrateBattle{}
	case GameTypeMines:
		g = &Mines{}
	case GameTypeSpinner:
		g = &Spinner{}
	default:
		return nil, fmt.Errorf("unknown game type %q", tag.Type)
	}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", tag.Type, err)
	}
	return g, nil
}
