package pipeline

import (
	"math"
	"sort"

	"commentguard/internal/domain"
)

var riskWeights = map[domain.RiskLevel]int{
	domain.RiskCritical: 50,
	domain.RiskHigh:     30,
	domain.RiskMedium:   10,
	domain.RiskLow:      0,
}

var typeBonuses = map[domain.SpamType]int{
	domain.SpamTypeGambling:    40,
	domain.SpamTypePromotional: 20,
	domain.SpamTypeSuspicious:  10,
	domain.SpamTypeClean:       0,
}

// Priority scores one verdict for moderation ordering.
func Priority(v domain.Verdict) int {
	return int(math.Round(v.Confidence*100)) + riskWeights[v.RiskLevel] + typeBonuses[v.SpamType]
}

// Rank derives priorities for every analyzed comment and stable-sorts the
// whole set by priority descending, so equal-priority comments keep their
// fetch order. Both spam and clean comments are retained; candidate
// selection happens in the moderation stage.
func Rank(analyzed []domain.AnalyzedComment) []domain.RankedComment {
	ranked := make([]domain.RankedComment, 0, len(analyzed))
	for _, ac := range analyzed {
		ranked = append(ranked, domain.RankedComment{
			AnalyzedComment:   ac,
			Priority:          Priority(ac.Verdict),
			SpamCategory:      ac.Verdict.SpamType,
			ActionRecommended: ac.Verdict.RecommendedAction,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	return ranked
}
