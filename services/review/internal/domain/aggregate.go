package domain

// Aggregate holds the fields derived from a section's visible reviews.
type Aggregate struct {
	AverageRating    float64 `json:"averageRating"`
	TotalReviewCount int     `json:"totalReviewCount"`
}

// RecomputeAggregate derives the aggregate from reviews. Hidden reviews do
// not count. With no visible reviews both fields are zero.
func RecomputeAggregate(reviews []Review) Aggregate {
	var sum, count int
	for _, r := range reviews {
		if !r.IsVisible {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return Aggregate{}
	}
	return Aggregate{
		AverageRating:    roundTenths(sum, count),
		TotalReviewCount: count,
	}
}

// roundTenths returns sum/count rounded half away from zero to one decimal.
// The rounding is done on integer tenths so .x5 boundaries are exact.
func roundTenths(sum, count int) float64 {
	neg := sum < 0
	if neg {
		sum = -sum
	}
	tenths := (20*sum + count) / (2 * count)
	if neg {
		tenths = -tenths
	}
	return float64(tenths) / 10
}

// RecalculateSummary reports the outcome of a repair pass over all sections.
type RecalculateSummary struct {
	Scanned   int `json:"scanned"`
	Corrected int `json:"corrected"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}
