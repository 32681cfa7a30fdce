package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"commentguard/internal/domain"
	"commentguard/internal/metrics"
	"commentguard/internal/ports"
	"commentguard/internal/retry"
)

const (
	// YouTube caps commentThreads pages at 100 items.
	maxPageSize = 100

	defaultClassifyPause = 500 * time.Millisecond
	defaultModeratePause = time.Second

	moderationStatusRejected = "rejected"
)

// Deps wires the collaborators into the runner. Repository and Metrics
// are optional; everything else is required for a full run.
type Deps struct {
	Source     ports.CommentSource
	Classifier ports.Classifier
	Moderator  ports.Moderator
	Gate       ports.CredentialGate
	Caller     *retry.Caller
	Repository ports.RunRepository
	Metrics    *metrics.Set
	Logger     *slog.Logger

	// Pacing between successive classifier and moderation calls. These
	// are deliberate throughput caps against upstream quotas, not tuning
	// knobs to race; zero values take the defaults.
	ClassifyPause time.Duration
	ModeratePause time.Duration
}

// Runner executes the fixed five-stage moderation workflow:
// fetch, classify, rank, moderate, report. One run is strictly
// sequential; no stage failure aborts the run and no single item failure
// aborts its stage.
type Runner struct {
	source        ports.CommentSource
	classifier    ports.Classifier
	moderator     ports.Moderator
	gate          ports.CredentialGate
	caller        *retry.Caller
	repository    ports.RunRepository
	metrics       *metrics.Set
	logger        *slog.Logger
	classifyPause time.Duration
	moderatePause time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewRunner constructs the workflow runner.
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	caller := deps.Caller
	if caller == nil {
		caller = retry.NewCaller(retry.WithRefresher(refresherFromGate(deps.Gate)))
	}
	classifyPause := deps.ClassifyPause
	if classifyPause == 0 {
		classifyPause = defaultClassifyPause
	}
	moderatePause := deps.ModeratePause
	if moderatePause == 0 {
		moderatePause = defaultModeratePause
	}
	return &Runner{
		source:        deps.Source,
		classifier:    deps.Classifier,
		moderator:     deps.Moderator,
		gate:          deps.Gate,
		caller:        caller,
		repository:    deps.Repository,
		metrics:       deps.Metrics,
		logger:        logger,
		classifyPause: classifyPause,
		moderatePause: moderatePause,
		sleep:         pause,
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gateRefresher struct {
	gate ports.CredentialGate
}

func (g gateRefresher) ForceRefresh(ctx context.Context) error {
	if g.gate == nil {
		return errors.New("no credential gate configured")
	}
	return g.gate.ForceRefresh(ctx)
}

func refresherFromGate(gate ports.CredentialGate) retry.Refresher {
	return gateRefresher{gate: gate}
}

// Run executes the five stages in order against one video and returns the
// completed run state. Failures are contained: a fetch failure yields an
// empty comment set, classification failures yield fallback verdicts, and
// moderation failures skip their item. The run itself never fails.
func (r *Runner) Run(ctx context.Context, params domain.RunParams) *domain.RunState {
	state := domain.NewRunState(params)
	log := r.logger.With("video_id", params.VideoID)

	r.fetchComments(ctx, state, log)
	r.classifyComments(ctx, state, log)
	r.rankComments(state, log)
	r.moderateComments(ctx, state, log)
	r.buildReport(state, log)

	if r.metrics != nil {
		r.metrics.RunsTotal.Inc()
	}
	if r.repository != nil {
		if err := r.repository.SaveRun(ctx, state); err != nil {
			log.Warn("run audit save failed", "error", err)
		}
	}

	return state
}

// RunBatch processes the given video ids one after another. Each id gets
// its own run state; one video's failures never touch its neighbors.
func (r *Runner) RunBatch(ctx context.Context, videoIDs []string, maxResults int, dryRun bool) []*domain.RunState {
	results := make([]*domain.RunState, 0, len(videoIDs))
	for _, id := range videoIDs {
		results = append(results, r.Run(ctx, domain.RunParams{
			VideoID:    id,
			MaxResults: maxResults,
			DryRun:     dryRun,
		}))
	}
	return results
}

// fetchComments pages through the comment listing until the cap is
// reached or no continuation cursor remains. Any fetch error leaves an
// empty comment set and one error-log entry; the rest of the pipeline
// proceeds with zero comments.
func (r *Runner) fetchComments(ctx context.Context, state *domain.RunState, log *slog.Logger) {
	limit := state.Params.MaxResults
	if limit <= 0 {
		return
	}

	pageSize := int64(limit)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	cursor := ""
	for len(state.Comments) < limit {
		items, next, err := r.source.List(ctx, state.Params.VideoID, pageSize, cursor)
		if err != nil {
			state.RecordError(fmt.Sprintf("fetch comments: %v", err))
			state.Comments = []domain.Comment{}
			log.Error("comment fetch failed", "error", err)
			return
		}

		state.Comments = append(state.Comments, items...)
		if next == "" {
			break
		}
		cursor = next
	}

	if len(state.Comments) > limit {
		state.Comments = state.Comments[:limit]
	}

	if r.metrics != nil {
		r.metrics.CommentsFetched.Add(float64(len(state.Comments)))
	}
	log.Info("comments fetched", "count", len(state.Comments))
}

// classifyComments produces exactly one verdict per fetched comment, in
// fetch order. Classifier failures substitute the fallback verdict so the
// analyzed count always equals the fetched count. Calls are serialized
// with a pacing delay against the classifier's rate limit.
func (r *Runner) classifyComments(ctx context.Context, state *domain.RunState, log *slog.Logger) {
	analyzed := make([]domain.AnalyzedComment, 0, len(state.Comments))

	for i, comment := range state.Comments {
		if i > 0 {
			if err := r.sleep(ctx, r.classifyPause); err != nil {
				// Cancelled mid-stage: fall back for the remainder so the
				// one-verdict-per-comment invariant holds.
				for _, rest := range state.Comments[i:] {
					state.RecordError(fmt.Sprintf("classify comment %s: %v", rest.ID, err))
					analyzed = append(analyzed, fallbackFor(rest, err))
				}
				break
			}
		}

		verdict, err := r.classifier.Classify(ctx, comment)
		if err != nil {
			state.RecordError(fmt.Sprintf("classify comment %s: %v", comment.ID, err))
			if r.metrics != nil {
				r.metrics.ClassifierFailures.Inc()
			}
			analyzed = append(analyzed, fallbackFor(comment, err))
			continue
		}

		analyzed = append(analyzed, domain.AnalyzedComment{
			Comment:    comment,
			Verdict:    verdict,
			AnalyzedAt: time.Now().UTC(),
		})
	}

	state.Ranked = Rank(analyzed)
	log.Info("comments classified", "count", len(analyzed))
}

func fallbackFor(comment domain.Comment, err error) domain.AnalyzedComment {
	return domain.AnalyzedComment{
		Comment:    comment,
		Verdict:    domain.FallbackVerdict(fmt.Sprintf("analysis failed: %v", err)),
		AnalyzedAt: time.Now().UTC(),
	}
}

// rankComments is folded into classifyComments' Rank call; this stage
// only reports the derived view.
func (r *Runner) rankComments(state *domain.RunState, log *slog.Logger) {
	flagged := state.Flagged()
	if r.metrics != nil {
		r.metrics.SpamDetected.Add(float64(len(flagged)))
	}
	log.Info("comments ranked", "flagged", len(flagged), "candidates", len(state.Candidates()))
}

// moderateComments rejects every high-confidence spam comment in ranked
// order, one at a time with a pacing delay. Dry-run suppresses every
// external call. A missing credential records the authentication-required
// condition and skips the stage without failing the run.
func (r *Runner) moderateComments(ctx context.Context, state *domain.RunState, log *slog.Logger) {
	if state.Params.DryRun {
		log.Info("dry run, moderation suppressed", "candidates", len(state.Candidates()))
		return
	}

	candidates := state.Candidates()
	if len(candidates) == 0 {
		return
	}

	if err := r.gate.EnsureValid(ctx); err != nil {
		state.RecordError(fmt.Sprintf("authentication required: %v", err))
		log.Warn("moderation skipped, no usable credential", "error", err)
		return
	}

	for i, rc := range candidates {
		if i > 0 {
			if err := r.sleep(ctx, r.moderatePause); err != nil {
				state.RecordError(fmt.Sprintf("moderation interrupted: %v", err))
				return
			}
		}

		commentID := rc.Comment.ID
		err := r.caller.Execute(ctx, "set moderation status", func(ctx context.Context) error {
			return r.moderator.SetStatus(ctx, commentID, moderationStatusRejected, true)
		})

		outcome := domain.ModerationOutcome{CommentID: commentID, Succeeded: err == nil, ErrorClass: domain.ErrorClassNone}
		if err != nil {
			outcome.ErrorClass = errorClassOf(err)
			state.RecordError(fmt.Sprintf("moderate comment %s: %v", commentID, err))
			log.Warn("moderation failed", "comment_id", commentID, "class", outcome.ErrorClass)
		} else {
			state.Moderated = append(state.Moderated, commentID)
			log.Info("comment rejected", "comment_id", commentID, "priority", rc.Priority)
		}
		state.Outcomes = append(state.Outcomes, outcome)

		if r.metrics != nil {
			r.metrics.ModerationCalls.WithLabelValues(string(outcome.ErrorClass)).Inc()
		}
	}
}

func errorClassOf(err error) domain.ErrorClass {
	switch retry.ClassOf(err) {
	case retry.ClassPermanent:
		return domain.ErrorClassPermanent
	case retry.ClassAuthExpired:
		return domain.ErrorClassAuthExpired
	case retry.ClassNone:
		return domain.ErrorClassNone
	default:
		return domain.ErrorClassTransient
	}
}

// buildReport aggregates the final statistics. No I/O.
func (r *Runner) buildReport(state *domain.RunState, log *slog.Logger) {
	state.Stats = BuildStats(state)
	log.Info("run complete",
		"total", state.Stats.TotalComments,
		"spam", state.Stats.SpamDetected,
		"moderated", state.Stats.ModeratedCount,
		"errors", state.Stats.ErrorsCount,
	)
}
