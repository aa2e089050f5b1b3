package tribute

import (
	"fmt"
	"sort"
	"strings"
)

// ProductDurationResolver maps a provider product id to a subscription
// duration in months.
type ProductDurationResolver interface {
	MonthsForProduct(productID int64) int
}

// LinkHeuristicResolver is the best-effort legacy mapping from product ids to
// durations: it scans the configured months→payment-link table for a link that
// embeds the product id ("p{id}" for t.me mini-app links, "p/{id}" for web
// links) and takes the first match in ascending month order. It is not a
// guaranteed-correct classifier; unknown products fall back to one month. Kept
// behind ProductDurationResolver so an exact lookup table can replace it
// without touching callers.
type LinkHeuristicResolver struct {
	Links map[int]string
}

func (r LinkHeuristicResolver) MonthsForProduct(productID int64) int {
	months := make([]int, 0, len(r.Links))
	for m := range r.Links {
		months = append(months, m)
	}
	sort.Ints(months)

	appRef := fmt.Sprintf("p%d", productID)
	webRef := fmt.Sprintf("p/%d", productID)
	for _, m := range months {
		link := r.Links[m]
		if strings.Contains(link, appRef) || strings.Contains(link, webRef) {
			return m
		}
	}
	return 1
}

var periodMonths = map[string]int{
	"weekly":      1,
	"monthly":     1,
	"quarterly":   3,
	"half-yearly": 6,
	"halfyearly":  6,
	"half_yearly": 6,
	"6months":     6,
	"yearly":      12,
	"annual":      12,
}

// MonthsForPeriod maps a named recurrence period to a duration in months.
// Unknown periods default to 1.
func MonthsForPeriod(period string) int {
	if m, ok := periodMonths[strings.ToLower(strings.TrimSpace(period))]; ok {
		return m
	}
	return 1
}

// NormalizeAmount converts a provider amount to major currency units. Tribute
// delivers minor units (cents) for the currencies in minorUnitCurrencies and
// major units otherwise.
func NormalizeAmount(amount int64, currency string, minorUnitCurrencies map[string]struct{}) float64 {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := minorUnitCurrencies[cur]; ok {
		return float64(amount) / 100
	}
	return float64(amount)
}
