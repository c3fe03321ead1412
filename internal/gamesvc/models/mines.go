package models

const (
	MineGridSize = 5
	MinMinesBet  = 0.1
	MaxMines     = 24
)

type Mines struct {
	Game
	// Grid is the server-only mine mask; 1 marks a mine. It must never reach
	// a client before the game ends.
	Grid      [][]int `json:"grid,omitempty"`
	MineCount int     `json:"mines"`
	Bet       float64 `json:"bet"`
	Revealed  []int   `json:"revealed"` // flat cell indices, x*size+y
}

func (m *Mines) PublicView() AnyGame {
	cp := *m
	if cp.Status != StatusEnded {
		// the seed reproduces the grid, so both stay hidden until the end
		cp.Grid = nil
		cp.ServerSeed = ""
	}
	return &cp
}

// SafeCells is the number of reveals that completes a full win.
func (m *Mines) SafeCells() int {
	return MineGridSize*MineGridSize - m.MineCount
}
