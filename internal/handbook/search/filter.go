package search

import "github.com/kart-io/handbook-rag/internal/handbook/vectorindex"

// BuildFilter builds the metadata filter for the optional request constraints.
// Absent fields are omitted, so no arguments yields an empty filter.
func BuildFilter(season, examType string, minCredits, maxCredits *float64) vectorindex.Filter {
	f := vectorindex.Filter{}
	if season != "" {
		f[vectorindex.FieldSeason] = map[string]any{vectorindex.OpEq: season}
	}
	if examType != "" {
		f[vectorindex.FieldExamType] = map[string]any{vectorindex.OpEq: examType}
	}

	credits := map[string]any{}
	if minCredits != nil {
		credits[vectorindex.OpGte] = *minCredits
	}
	if maxCredits != nil {
		credits[vectorindex.OpLte] = *maxCredits
	}
	if len(credits) > 0 {
		f[vectorindex.FieldCreditPointsNum] = credits
	}
	return f
}
