package service

import (
	"math/rand"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

// bots is the static fill roster. Bot seats never touch the ledger.
var bots = []models.AccountData{
	{ID: "bot1", DisplayName: "Professional Zuiy", ProfilePicture: "/bots/zuiy2.png", Bot: true},
	{ID: "bot2", DisplayName: "GBO Gaston", ProfilePicture: "/bots/zuiy1.png", Bot: true},
	{ID: "bot3", DisplayName: "Shirtless Zuiy", ProfilePicture: "/bots/zuiy3.png", Bot: true},
	{ID: "bot4", DisplayName: "Zuiy 4", ProfilePicture: "/bots/zuiy3.png", Bot: true},
	{ID: "bot5", DisplayName: "Zuiy 5", ProfilePicture: "/bots/zuiy3.png", Bot: true},
	{ID: "bot6", DisplayName: "Zuiy 6", ProfilePicture: "/bots/zuiy3.png", Bot: true},
}

func FindBot(userID string) *models.AccountData {
	for i := range bots {
		if bots[i].ID == userID {
			bot := bots[i]
			return &bot
		}
	}
	return nil
}

// UniqueBots picks amount bots not already seated in any of the teams.
func UniqueBots(amount int, teams []models.Team) []models.AccountData {
	var available []models.AccountData
	for _, bot := range bots {
		seated := false
		for _, team := range teams {
			for _, p := range team.Players {
				if p.ID == bot.ID {
					seated = true
				}
			}
		}
		if !seated {
			available = append(available, bot)
		}
	}
	if amount > len(available) {
		amount = len(available)
	}
	result := make([]models.AccountData, 0, amount)
	for i := 0; i < amount; i++ {
		j := rand.Intn(len(available))
		result = append(result, available[j])
		available = append(available[:j], available[j+1:]...)
	}
	return result
}
