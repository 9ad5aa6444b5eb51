package domain

// TotalAssets is the one, canonical definition of an account's valuation:
// cash plus the mark-to-market value of every position. Both the decision
// pipeline (C5, for prompt context) and the asset snapshot service (C7, for
// persisted snapshots) call this so the two can never disagree (see
// DESIGN.md's Open Question decisions).
func TotalAssets(cash float64, positions []Position, priceFor func(symbol string) float64) float64 {
	total := cash
	for _, p := range positions {
		total += p.TotalQty * priceFor(p.Symbol)
	}
	return total
}
