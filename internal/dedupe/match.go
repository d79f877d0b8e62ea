package dedupe

import (
	"math"

	"github.com/sells-group/pizza-search/internal/geo"
	"github.com/sells-group/pizza-search/internal/model"
)

// Pairwise signal weights. They sum to 1.0.
const (
	nameWeight    = 0.4
	geoWeight     = 0.3
	phoneWeight   = 0.2
	addressWeight = 0.1
)

// Strong-match thresholds. Two strong votes classify a pair as duplicate
// even when the weighted confidence stays below the threshold.
const (
	strongSimilarity    = 0.8
	strongGeoMeters     = 50.0
	geoFalloffMeters    = 200.0
	confidenceThreshold = 0.7
)

// MatchResult reports the duplicate decision for a pair of places.
type MatchResult struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Confidence  float64 `json:"confidence"`
}

// Match decides whether two places describe the same physical business.
// Records sharing (source, external_id) are duplicates with confidence 1.0.
// Otherwise a weighted confidence is built from name, geo proximity, phone
// and address signals, with per-signal strong-match votes as an alternative
// trigger.
func Match(a, b model.Place) MatchResult {
	if a.Source == b.Source && a.ExternalID == b.ExternalID {
		return MatchResult{IsDuplicate: true, Confidence: 1.0}
	}

	var confidence float64
	var votes int

	nameSim := StringSimilarity(a.Name, b.Name)
	confidence += nameSim * nameWeight
	if nameSim > strongSimilarity {
		votes++
	}

	if a.Coordinates.Valid() && b.Coordinates.Valid() {
		meters := geo.DistanceMeters(a.Coordinates, b.Coordinates)
		confidence += math.Max(0, 1-meters/geoFalloffMeters) * geoWeight
		if meters < strongGeoMeters {
			votes++
		}
	}

	if a.Phone != "" && b.Phone != "" {
		if NormalizePhone(a.Phone) == NormalizePhone(b.Phone) {
			confidence += phoneWeight
			votes++
		}
	}

	if a.Address != "" && b.Address != "" {
		addrSim := StringSimilarity(a.Address, b.Address)
		confidence += addrSim * addressWeight
		if addrSim > strongSimilarity {
			votes++
		}
	}

	return MatchResult{
		IsDuplicate: confidence > confidenceThreshold || votes >= 2,
		Confidence:  math.Round(confidence*100) / 100,
	}
}
