package domain

import "time"

// ModerationThreshold is the confidence above which a flagged comment
// becomes a moderation candidate.
const ModerationThreshold = 0.7

// RunParams are the caller-supplied inputs of one pipeline run.
type RunParams struct {
	VideoID    string `json:"video_id"`
	MaxResults int    `json:"max_results"`
	DryRun     bool   `json:"dry_run"`
}

// ErrorClass labels how a moderation call failed.
type ErrorClass string

const (
	ErrorClassNone        ErrorClass = "none"
	ErrorClassPermanent   ErrorClass = "permanent"
	ErrorClassTransient   ErrorClass = "transient"
	ErrorClassAuthExpired ErrorClass = "auth_expired"
)

// ModerationOutcome records the result of one moderation attempt.
type ModerationOutcome struct {
	CommentID  string     `json:"comment_id"`
	Succeeded  bool       `json:"succeeded"`
	ErrorClass ErrorClass `json:"error_class"`
}

// ProcessingStats aggregates one run for reporting.
type ProcessingStats struct {
	TotalComments     int               `json:"total_comments"`
	AnalyzedComments  int               `json:"analyzed_comments"`
	SpamDetected      int               `json:"spam_detected"`
	ModeratedCount    int               `json:"moderated_count"`
	SpamRatePercent   float64           `json:"spam_rate_percent"`
	ActionRatePercent float64           `json:"action_rate_percent"`
	SpamCategories    map[SpamType]int  `json:"spam_categories"`
	RiskLevels        map[RiskLevel]int `json:"risk_levels"`
	ErrorsCount       int               `json:"errors_count"`
	DryRun            bool              `json:"dry_run"`
	CompletedAt       time.Time         `json:"completed_at"`
}

// RunState is the aggregate threaded through the five pipeline stages.
// Every field is always present; empty slices rather than nil where the
// stage has run with no results. Created per invocation, never shared.
type RunState struct {
	Params    RunParams           `json:"params"`
	Comments  []Comment           `json:"comments"`
	Ranked    []RankedComment     `json:"ranked"`
	Outcomes  []ModerationOutcome `json:"outcomes"`
	Moderated []string            `json:"moderated"`
	Errors    []string            `json:"errors"`
	Stats     ProcessingStats     `json:"stats"`
	StartedAt time.Time           `json:"started_at"`
}

// NewRunState builds the empty per-run aggregate.
func NewRunState(params RunParams) *RunState {
	return &RunState{
		Params:    params,
		Comments:  []Comment{},
		Ranked:    []RankedComment{},
		Outcomes:  []ModerationOutcome{},
		Moderated: []string{},
		Errors:    []string{},
		StartedAt: time.Now().UTC(),
	}
}

// RecordError appends to the run's append-only error log.
func (s *RunState) RecordError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Flagged returns the ranked comments the classifier marked as spam.
func (s *RunState) Flagged() []RankedComment {
	flagged := make([]RankedComment, 0, len(s.Ranked))
	for _, rc := range s.Ranked {
		if rc.Verdict.IsSpam {
			flagged = append(flagged, rc)
		}
	}
	return flagged
}

// Candidates returns flagged comments above the moderation threshold, in
// ranked order.
func (s *RunState) Candidates() []RankedComment {
	candidates := make([]RankedComment, 0)
	for _, rc := range s.Ranked {
		if rc.Verdict.IsSpam && rc.Verdict.Confidence > ModerationThreshold {
			candidates = append(candidates, rc)
		}
	}
	return candidates
}

// RunSummary is one persisted audit row, returned by the runs-history
// listing.
type RunSummary struct {
	VideoID           string    `json:"video_id"`
	StartedAt         time.Time `json:"started_at"`
	DryRun            bool      `json:"dry_run"`
	TotalComments     int       `json:"total_comments"`
	SpamDetected      int       `json:"spam_detected"`
	ModeratedCount    int       `json:"moderated_count"`
	SpamRatePercent   float64   `json:"spam_rate_percent"`
	ActionRatePercent float64   `json:"action_rate_percent"`
}

// Identity describes the authenticated channel bound to the delegated
// credential.
type Identity struct {
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
}

// VideoInfo is the metadata summary returned by the video lookup.
type VideoInfo struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	ViewCount    uint64    `json:"view_count"`
	LikeCount    uint64    `json:"like_count"`
	CommentCount uint64    `json:"comment_count"`
}
