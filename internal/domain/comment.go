package domain

import "time"

// Comment is a single top-level comment fetched from a video. Immutable
// once fetched.
type Comment struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Author          string    `json:"author"`
	PublishedAt     time.Time `json:"published_at"`
	LikeCount       int64     `json:"like_count"`
	AuthorChannelID string    `json:"author_channel_id"`
}

// SpamType categorizes what kind of spam the classifier saw.
type SpamType string

const (
	SpamTypeGambling    SpamType = "gambling"
	SpamTypePromotional SpamType = "promotional"
	SpamTypeSuspicious  SpamType = "suspicious"
	SpamTypeClean       SpamType = "clean"
	SpamTypeError       SpamType = "error"
)

// RiskLevel grades how urgent a verdict is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RecommendedAction is the classifier's suggested follow-up.
type RecommendedAction string

const (
	ActionIgnore  RecommendedAction = "ignore"
	ActionReview  RecommendedAction = "review"
	ActionDelete  RecommendedAction = "delete"
	ActionBanUser RecommendedAction = "ban_user"
)

// Verdict is the classifier's structured answer for one comment.
type Verdict struct {
	IsSpam            bool              `json:"is_spam"`
	Confidence        float64           `json:"confidence"`
	SpamType          SpamType          `json:"spam_type"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	DetectedPatterns  []string          `json:"detected_patterns"`
	Reason            string            `json:"reason"`
}

// FallbackVerdict is substituted when classification fails so the run
// keeps one verdict per fetched comment.
func FallbackVerdict(reason string) Verdict {
	return Verdict{
		IsSpam:            false,
		Confidence:        0,
		SpamType:          SpamTypeError,
		RiskLevel:         RiskLow,
		RecommendedAction: ActionIgnore,
		DetectedPatterns:  []string{},
		Reason:            reason,
	}
}

// AnalyzedComment pairs a comment with its verdict.
type AnalyzedComment struct {
	Comment    Comment   `json:"comment"`
	Verdict    Verdict   `json:"verdict"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// RankedComment adds the derived priority used to order moderation work.
type RankedComment struct {
	AnalyzedComment
	Priority          int               `json:"priority"`
	SpamCategory      SpamType          `json:"spam_category"`
	ActionRecommended RecommendedAction `json:"action_recommended"`
}
