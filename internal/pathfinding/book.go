package pathfinding

import (
	"math"
	"sort"

	"YONASettlement/internal/currency"
	"YONASettlement/internal/models"
)

// quote is one offer seen from the taker converting the input currency.
type quote struct {
	rate     float64
	capacity float64
}

type walk struct {
	out      float64
	consumed float64
	used     int
}

// walkBook consumes offers best rate first until amount is spent or the book runs out.
//
// An offer giving the input asset is forward: take = min(remaining, gives) and each
// unit yields wants/gives. An offer wanting the input asset is reverse: take =
// min(remaining, wants) and each unit yields gives/wants.
func walkBook(offers []models.Offer, input models.Issue, amount float64) walk {
	quotes := make([]quote, 0, len(offers))
	for _, o := range offers {
		gives, err := o.TakerGets.Units()
		if err != nil || gives <= 0 {
			continue
		}
		wants, err := o.TakerPays.Units()
		if err != nil || wants <= 0 {
			continue
		}
		switch {
		case isAsset(o.TakerGets, input):
			quotes = append(quotes, quote{rate: wants / gives, capacity: gives})
		case isAsset(o.TakerPays, input):
			quotes = append(quotes, quote{rate: gives / wants, capacity: wants})
		}
	}
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].rate > quotes[j].rate })

	var w walk
	remaining := amount
	for _, q := range quotes {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, q.capacity)
		w.out += take * q.rate
		w.consumed += take
		remaining -= take
		w.used++
	}
	return w
}

// isAsset reports whether a is denominated in the issue. Same-code assets of different
// issuers are distinct; an issue without an issuer matches on the code alone.
func isAsset(a models.Amount, issue models.Issue) bool {
	if !currency.Equal(a.CurrencyCode(), issue.Currency) {
		return false
	}
	return issue.Issuer == "" || a.IssuerAddress() == issue.Issuer
}
