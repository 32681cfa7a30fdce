package pipeline

import (
	"time"

	"commentguard/internal/domain"
)

// BuildStats aggregates the run into its report. All rates fall back to
// zero when their denominator is zero.
func BuildStats(state *domain.RunState) domain.ProcessingStats {
	flagged := state.Flagged()
	candidates := state.Candidates()

	stats := domain.ProcessingStats{
		TotalComments:    len(state.Comments),
		AnalyzedComments: len(state.Ranked),
		SpamDetected:     len(flagged),
		ModeratedCount:   len(state.Moderated),
		SpamCategories:   map[domain.SpamType]int{},
		RiskLevels:       map[domain.RiskLevel]int{},
		ErrorsCount:      len(state.Errors),
		DryRun:           state.Params.DryRun,
		CompletedAt:      time.Now().UTC(),
	}

	for _, rc := range flagged {
		stats.SpamCategories[rc.Verdict.SpamType]++
		stats.RiskLevels[rc.Verdict.RiskLevel]++
	}

	if stats.TotalComments > 0 {
		stats.SpamRatePercent = roundRate(float64(stats.SpamDetected) / float64(stats.TotalComments) * 100)
	}
	if len(candidates) > 0 {
		stats.ActionRatePercent = roundRate(float64(stats.ModeratedCount) / float64(len(candidates)) * 100)
	}

	return stats
}

func roundRate(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
