package purchase

import (
	"sort"
	"strings"

	"plinth/internal/purchase/models"
)

// tldPriority orders search results by extension desirability. Lower index
// sorts first; unlisted extensions follow in their incoming order.
var tldPriority = []string{".com", ".net", ".org", ".io", ".co"}

func tldRank(domain string) int {
	for i, tld := range tldPriority {
		if strings.HasSuffix(domain, tld) {
			return i
		}
	}
	return len(tldPriority)
}

// SortOffers orders search results for display: preferred extensions first,
// available names before taken ones, then ascending price. The sort is
// stable so the registrar's own ordering breaks remaining ties.
func SortOffers(offers []models.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		ri, rj := tldRank(offers[i].Domain), tldRank(offers[j].Domain)
		if ri != rj {
			return ri < rj
		}
		if offers[i].Available != offers[j].Available {
			return offers[i].Available
		}
		pi, pj := offers[i].Price, offers[j].Price
		switch {
		case pi == nil && pj == nil:
			return false
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})
}
