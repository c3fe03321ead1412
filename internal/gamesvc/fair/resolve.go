package fair

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/gamesvc/models"
)

// ResolveItem maps a ticket onto a weighted item list. Items are walked in
// descending price order accumulating weight; the first item whose cumulative
// weight reaches the ticket wins. A ticket equal to a boundary belongs to the
// item that completes the range, never the preceding one — existing fairness
// proofs depend on this exact comparison.
//
// A ticket beyond the total weight (misconfigured pool) falls back to the
// last item in sorted order.
func ResolveItem(ticket float64, items []models.CaseItem) models.CaseItem {
	if len(items) == 0 {
		log.Warn("resolving a ticket against a case with no items")
		return models.CaseItem{}
	}
	sorted := make([]models.CaseItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price > sorted[j].Price
	})

	total := 0.0
	for _, item := range sorted {
		total += item.Weight
	}
	if total != TicketScale {
		log.Warnf("case item weights sum to %.2f, expected %d", total, TicketScale)
	}

	currentWeight := 0.0
	for _, item := range sorted {
		currentWeight += item.Weight
		if ticket <= currentWeight {
			return item
		}
	}
	return sorted[len(sorted)-1]
}
