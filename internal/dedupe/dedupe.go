// Package dedupe resolves place records from multiple sources down to one
// record per physical business. Identity resolution is fuzzy: weighted
// similarity across name, location, phone and address, with exact
// (source, external_id) equality as a shortcut.
package dedupe

import (
	"go.uber.org/zap"

	"github.com/sells-group/pizza-search/internal/model"
)

// Absorption records one merge decision for the dedup trace.
type Absorption struct {
	Source     model.Source `json:"source"`
	ExternalID string       `json:"external_id"`
	MergedInto string       `json:"merged_into"`
	Confidence float64      `json:"confidence"`
}

// Result is the outcome of deduplicating one input sequence.
type Result struct {
	Survivors   []model.Place `json:"survivors"`
	Absorptions []Absorption  `json:"absorptions"`
}

// Strategy assigns input records to duplicate clusters. Implementations are
// pure over the input slice and must not retain or mutate it.
type Strategy interface {
	Deduplicate(places []model.Place) Result
}

// Greedy is the first-match clustering strategy: each record is compared
// against accepted survivors in order and merged into the first duplicate
// found. O(n^2) and input-order sensitive: a record can merge into an
// earlier survivor even when a later one would match with higher confidence.
// That bias is accepted and documented, not corrected.
type Greedy struct{}

// NewGreedy returns the greedy first-match strategy.
func NewGreedy() *Greedy {
	return &Greedy{}
}

// Deduplicate implements Strategy.
func (g *Greedy) Deduplicate(places []model.Place) Result {
	if len(places) == 0 {
		return Result{}
	}

	var res Result
	for _, place := range places {
		merged := false
		for i, survivor := range res.Survivors {
			m := Match(survivor, place)
			if !m.IsDuplicate {
				continue
			}

			res.Survivors[i] = Merge(survivor, place)
			res.Absorptions = append(res.Absorptions, Absorption{
				Source:     place.Source,
				ExternalID: place.ExternalID,
				MergedInto: survivor.ExternalID,
				Confidence: m.Confidence,
			})
			zap.L().Debug("dedupe: merged duplicate",
				zap.String("name", place.Name),
				zap.String("source", string(place.Source)),
				zap.Float64("confidence", m.Confidence),
			)
			merged = true
			break
		}
		if !merged {
			res.Survivors = append(res.Survivors, place)
		}
	}

	zap.L().Info("dedupe: complete",
		zap.Int("input", len(places)),
		zap.Int("survivors", len(res.Survivors)),
		zap.Int("absorbed", len(res.Absorptions)),
	)

	return res
}
