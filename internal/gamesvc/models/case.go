package models

// MarketItem is a priced catalog item.
type MarketItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
}

// CaseItem is a market item with its lottery weight inside a case. Weights in
// a case should sum to the ticket scale (10000); violations are reported, not
// enforced.
type CaseItem struct {
	MarketItem `bson:",inline"`
	Weight     float64 `json:"weight"`
}

type Case struct {
	ID    string     `json:"id" bson:"id"`
	Name  string     `json:"name" bson:"name"`
	Price float64    `json:"price" bson:"price"`
	Image string     `json:"image" bson:"image"`
	Tags  []string   `json:"tags" bson:"tags"`
	Level int        `json:"level,omitempty" bson:"level,omitempty"`
	Items []CaseItem `json:"items" bson:"items"`
}

// ItemColor bands an item into its rarity color from its share of the case
// price and its absolute price. Rainbow battles count distinct colors.
func ItemColor(percentage, price float64) string {
	switch {
	case price >= 400:
		return "255, 221, 89"
	case price >= 90:
		return "235, 77, 75"
	case price < 1 && percentage < 1:
		return "207, 215, 223"
	case percentage <= 1:
		return "118, 185, 199"
	case percentage <= 10:
		return "100, 191, 129"
	case percentage <= 20:
		return "174, 110, 238"
	case percentage <= 100:
		return "235, 77, 75"
	}
	return "255, 221, 89"
}

// CaseOpening is the ephemeral single-user case opening session, stored under
// its own key namespace with a short lease.
type CaseOpening struct {
	ServerSeed string     `json:"serverSeed"`
	RoundIDs   []string   `json:"roundIDs"`
	Expiry     int64      `json:"expiry"`
	StartTime  int64      `json:"startTime"`
	WonItems   []CaseItem `json:"wonItems"`
	Tickets    []float64  `json:"tickets"`
}
