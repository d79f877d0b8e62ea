package dedupe

import "github.com/sells-group/pizza-search/internal/model"

// Metadata keys recording merge provenance. Both lists are append-only
// across successive merges into the same survivor.
const (
	metaDuplicateSources = "duplicate_sources"
	metaMergedIDs        = "merged_ids"
)

// Merge folds an absorbed duplicate into a survivor and returns the merged
// record. The survivor's fields win except: rating takes the max of the two
// (absent only when both are absent), review counts are summed, and phone /
// website fall back to the absorbed value when the survivor's is empty.
// Neither input is mutated, so merging is safe against a chain of
// absorptions.
func Merge(survivor, absorbed model.Place) model.Place {
	merged := survivor

	switch {
	case survivor.Rating == nil && absorbed.Rating == nil:
		merged.Rating = nil
	default:
		best := survivor.RatingValue()
		if absorbed.RatingValue() > best {
			best = absorbed.RatingValue()
		}
		merged.Rating = &best
	}

	merged.ReviewCount = survivor.ReviewCount + absorbed.ReviewCount

	if merged.Phone == "" {
		merged.Phone = absorbed.Phone
	}
	if merged.Website == "" {
		merged.Website = absorbed.Website
	}

	merged.Metadata = mergeMetadata(survivor.Metadata, absorbed)

	return merged
}

// mergeMetadata copies the survivor's metadata and appends the absorbed
// record's provenance. The copy keeps already-returned records immutable.
func mergeMetadata(meta map[string]any, absorbed model.Place) map[string]any {
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}

	out[metaDuplicateSources] = append(stringList(meta[metaDuplicateSources]), string(absorbed.Source))
	out[metaMergedIDs] = append(stringList(meta[metaMergedIDs]), absorbed.ExternalID)

	return out
}

// stringList coerces a metadata value into a fresh []string. JSON round-trips
// through the cache turn []string into []any, so both shapes are accepted.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
