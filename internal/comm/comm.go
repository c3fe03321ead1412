package comm

import (
	"encoding/json"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "join_game", "reveal_mine"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
	CallerId string          `json:"callerid,omitempty"` // authenticated user id, set by socket service
}

type Res struct {
	Status bool   `json:"status"`
	Error  string `json:"error,omitempty"`
}

// starting_{id} payload
type StartingData struct {
	Start int64         `json:"start"`
	Teams []models.Team `json:"teams"`
}

// eos_{id} payload
type EOSData struct {
	BlockHeight int64 `json:"blockHeight"`
}

// player_joined_{id} payload
type PlayerJoinedData struct {
	Teams []models.Team `json:"teams"`
}

// new_round_{id} payload
type NewRoundData struct {
	Round    int               `json:"round"`
	WonItems []models.CaseItem `json:"wonItems"`
	Start    int64             `json:"start"`
	Expires  int64             `json:"expires"`
}

// ended_{id} payload
type EndedData struct {
	Winnings *models.Winnings  `json:"winnings"`
	WonItems []models.CaseItem `json:"wonItems,omitempty"`
}

type MinesFinishedData struct {
	Grid       [][]int `json:"grid"`
	Mines      int     `json:"mines"`
	Bet        float64 `json:"bet"`
	ServerSeed string  `json:"serverSeed"`
	RoundID    string  `json:"roundID"`
	Won        bool    `json:"won"`
}
