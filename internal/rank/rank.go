// Package rank enriches deduplicated places with derived fields and imposes
// the final response ordering.
package rank

import (
	"math"
	"sort"

	"github.com/sells-group/pizza-search/internal/geo"
	"github.com/sells-group/pizza-search/internal/model"
)

// Enrich fills DistanceMiles (when absent and coordinates are known) and
// DisplayScore for every place, measured from the search origin. The input
// slice is returned with copies updated in place.
func Enrich(places []model.Place, origin model.Coordinates) []model.Place {
	for i := range places {
		p := &places[i]
		if p.DistanceMiles == nil && p.Coordinates.Valid() {
			d := round2(geo.DistanceMiles(origin, p.Coordinates))
			p.DistanceMiles = &d
		}
		p.DisplayScore = displayScore(*p)
	}
	return places
}

// displayScore combines closeness, rating, review volume and the delivery /
// dedicated-pizzeria bonuses into a single informational score. It is not
// the sort key; ordering stays distance-first (see Sort).
func displayScore(p model.Place) float64 {
	var score float64

	if p.DistanceMiles != nil {
		score += math.Max(0, 50-*p.DistanceMiles*2)
	}
	if p.Rating != nil {
		score += *p.Rating * 10
	}
	if p.ReviewCount > 0 {
		score += math.Log10(float64(p.ReviewCount)+1) * 5
	}
	if p.HasDelivery {
		score += 10
	}
	if p.IsDedicatedPizzeria {
		score += 5
	}

	return round2(score)
}

// Sort orders places by ascending distance, breaking ties by descending
// rating with absent ratings treated as 0. Places with no distance sort
// last.
func Sort(places []model.Place) {
	sort.SliceStable(places, func(i, j int) bool {
		di, dj := places[i].DistanceMiles, places[j].DistanceMiles
		switch {
		case di == nil && dj == nil:
			// fall through to rating
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di != *dj:
			return *di < *dj
		}
		return places[i].RatingValue() > places[j].RatingValue()
	})
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
