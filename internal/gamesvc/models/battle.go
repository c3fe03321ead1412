package models

import (
	"strconv"
	"strings"
)

const (
	CrateBattleRoundTimeSeconds = 7.5
	MaxCasesPerBattle           = 75
)

// TeamMode is the layout token for a crate battle: "1v1", "2v2", "1v1v1"...
// for versus play, "2p".."6p" for a single shared team.
type TeamMode string

var validModes = map[TeamMode]bool{
	"1v1": true, "1v1v1": true, "1v1v1v1": true,
	"1v1v1v1v1": true, "1v1v1v1v1v1": true,
	"2v2": true, "3v3": true,
	"2p": true, "3p": true, "4p": true, "5p": true, "6p": true,
}

func (m TeamMode) Valid() bool  { return validModes[m] }
func (m TeamMode) Versus() bool { return strings.Contains(string(m), "v") }
func (m TeamMode) Group() bool  { return strings.Contains(string(m), "p") }

// BuildTeams expands a mode token into its team layout, seating the host on
// team 0 when given.
func (m TeamMode) BuildTeams(host *AccountData) []Team {
	var sizes []int
	if m.Versus() {
		for _, part := range strings.Split(string(m), "v") {
			n, _ := strconv.Atoi(part)
			sizes = append(sizes, n)
		}
	} else {
		n, _ := strconv.Atoi(strings.TrimSuffix(string(m), "p"))
		sizes = []int{n}
	}
	teams := make([]Team, len(sizes))
	for i, size := range sizes {
		teams[i] = Team{ID: i, Players: []AccountData{}, MaxPlayers: size}
	}
	if host != nil {
		teams[0].Players = append(teams[0].Players, *host)
	}
	return teams
}

type CrateBattle struct {
	Game
	Mode       TeamMode   `json:"mode"`
	CaseIDs    []string   `json:"caseIDs"`
	RoundStart int64      `json:"roundStart"`
	Rainbow    bool       `json:"rainbow"`
	Terminal   bool       `json:"terminal,omitempty"`
	Cursed     bool       `json:"cursed"`
	WonItems   []CaseItem `json:"wonItems"`
	// Crates carries denormalized case snapshots for clients; it is filled
	// from the catalog on fetch and not authoritative.
	Crates []Case `json:"crates,omitempty"`
}

func (b *CrateBattle) PublicView() AnyGame {
	cp := *b
	return &cp
}
