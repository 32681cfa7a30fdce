package ports

import (
	"context"

	"commentguard/internal/domain"
)

// CommentSource lists top-level comments of one video, one page at a time.
// An empty next cursor means the listing is exhausted.
type CommentSource interface {
	List(ctx context.Context, videoID string, pageSize int64, cursor string) (items []domain.Comment, nextCursor string, err error)
}

// Classifier produces a verdict for one comment text.
type Classifier interface {
	Classify(ctx context.Context, comment domain.Comment) (domain.Verdict, error)
}

// Moderator applies a moderation status to one comment. The mutation is
// idempotent on the platform side; banAuthor is only legal with the
// rejected status.
type Moderator interface {
	SetStatus(ctx context.Context, commentID, status string, banAuthor bool) error
}

// VideoSource looks up metadata for one video.
type VideoSource interface {
	Get(ctx context.Context, videoID string) (domain.VideoInfo, error)
}

// CredentialGate is the narrow capability the moderation stage needs from
// the credential manager: confirm a usable credential exists before any
// moderation call, and force a refresh when the platform rejects it.
type CredentialGate interface {
	EnsureValid(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
}

// RunRepository persists completed run summaries for audit and lists
// them back for operator review.
type RunRepository interface {
	SaveRun(ctx context.Context, state *domain.RunState) error
	RecentRuns(ctx context.Context, videoID string, limit uint64) ([]domain.RunSummary, error)
}
