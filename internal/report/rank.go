// Package report builds the final shop comparison once every call of a
// session has reached a terminal state.
package report

import (
	"sort"

	calldomain "garagecall_backend/internal/calls/domain"
	"garagecall_backend/internal/sessions/domain"
)

// BuildQuotes converts terminal call records into per-shop quote entries,
// one per shop in the session, in session order. Shops without a call
// record (dispatch never created one) appear as failed entries.
func BuildQuotes(session *domain.Session, calls []calldomain.Call) []domain.ShopQuote {
	byShop := make(map[string]calldomain.Call, len(calls))
	for _, c := range calls {
		byShop[c.ShopID] = c
	}

	quotes := make([]domain.ShopQuote, 0, len(session.Shops))
	for _, shop := range session.Shops {
		q := domain.ShopQuote{ShopID: shop.ID, ShopName: shop.Name}
		call, ok := byShop[shop.ID]
		if !ok || call.Status == calldomain.StatusFailed {
			q.CallFailed = true
			if ok {
				q.Notes = call.EndedReason
			}
			quotes = append(quotes, q)
			continue
		}
		if e := call.Extraction; e != nil {
			q.QuoteProvided = e.QuoteProvided
			q.PriceEstimateLow = e.PriceEstimateLow
			q.PriceEstimateHigh = e.PriceEstimateHigh
			q.Timeframe = e.Timeframe
			q.Notes = e.Notes
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// Rank orders quotes best-first: shops that quoted a price come first,
// cheapest midpoint wins; shops that completed without a price follow;
// failed calls sink to the bottom. The sort is stable so ties keep the
// session's shop order.
func Rank(quotes []domain.ShopQuote) []domain.ShopQuote {
	ranked := make([]domain.ShopQuote, len(quotes))
	copy(ranked, quotes)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CallFailed != b.CallFailed {
			return !a.CallFailed
		}
		if a.QuoteProvided != b.QuoteProvided {
			return a.QuoteProvided
		}
		if a.QuoteProvided && b.QuoteProvided {
			return midpoint(a) < midpoint(b)
		}
		return false
	})
	return ranked
}

// QuotesObtained counts entries with an actual price quote.
func QuotesObtained(quotes []domain.ShopQuote) int {
	n := 0
	for _, q := range quotes {
		if q.QuoteProvided {
			n++
		}
	}
	return n
}

func midpoint(q domain.ShopQuote) int {
	if q.PriceEstimateHigh == 0 {
		return q.PriceEstimateLow
	}
	return (q.PriceEstimateLow + q.PriceEstimateHigh) / 2
}
