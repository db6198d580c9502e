package search

import (
	"cmp"
	"slices"
	"strings"

	"streamfinder/models"
)

// SortKey selects the client-side order of a result page.
type SortKey string

const (
	SortRelevance  SortKey = "relevance"
	SortRating     SortKey = "rating"
	SortYear       SortKey = "year"
	SortPopularity SortKey = "popularity"
)

// SortKeys lists the keys in the order the sort select shows them.
var SortKeys = []SortKey{SortRelevance, SortRating, SortYear, SortPopularity}

// ParseSortKey maps raw onto a known key; anything else is relevance.
func ParseSortKey(raw string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(raw))); k {
	case SortRating, SortYear, SortPopularity:
		return k
	default:
		return SortRelevance
	}
}

// Label is the option text for the sort select.
func (k SortKey) Label() string {
	switch k {
	case SortRating:
		return "Highest Rated"
	case SortYear:
		return "Newest First"
	case SortPopularity:
		return "Most Popular"
	default:
		return "Most Relevant"
	}
}

// SortResults returns a sorted copy of results. The sort is stable and the
// input slice is left untouched. Relevance keeps the backend order.
func SortResults(results []models.ResultItem, key SortKey) []models.ResultItem {
	out := slices.Clone(results)
	switch key {
	case SortRating:
		slices.SortStableFunc(out, func(a, b models.ResultItem) int {
			return cmp.Compare(b.VoteAverage, a.VoteAverage)
		})
	case SortYear:
		slices.SortStableFunc(out, func(a, b models.ResultItem) int {
			return b.EffectiveDate().Compare(a.EffectiveDate())
		})
	case SortPopularity:
		slices.SortStableFunc(out, func(a, b models.ResultItem) int {
			return cmp.Compare(b.VoteCount, a.VoteCount)
		})
	}
	return out
}
