package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"commentguard/internal/domain"
	"commentguard/internal/retry"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type stubSource struct {
	comments []domain.Comment
	pageSize int64
	err      error
	calls    int
}

func (s *stubSource) List(ctx context.Context, videoID string, pageSize int64, cursor string) ([]domain.Comment, string, error) {
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	size := s.pageSize
	if size == 0 || size > pageSize {
		size = pageSize
	}

	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "page-%d", &start)
	}
	if start >= len(s.comments) {
		return []domain.Comment{}, "", nil
	}
	end := start + int(size)
	if end > len(s.comments) {
		end = len(s.comments)
	}
	next := ""
	if end < len(s.comments) {
		next = fmt.Sprintf("page-%d", end)
	}
	return s.comments[start:end], next, nil
}

type stubClassifier struct {
	verdicts map[string]domain.Verdict
	errs     map[string]error
	calls    int
}

func (s *stubClassifier) Classify(ctx context.Context, comment domain.Comment) (domain.Verdict, error) {
	s.calls++
	if err := s.errs[comment.ID]; err != nil {
		return domain.Verdict{}, err
	}
	if v, ok := s.verdicts[comment.ID]; ok {
		return v, nil
	}
	return domain.Verdict{SpamType: domain.SpamTypeClean, RiskLevel: domain.RiskLow, RecommendedAction: domain.ActionIgnore}, nil
}

type stubModerator struct {
	errs  map[string]error
	calls []string
}

func (s *stubModerator) SetStatus(ctx context.Context, commentID, status string, banAuthor bool) error {
	s.calls = append(s.calls, commentID)
	if status != "rejected" {
		return fmt.Errorf("unexpected status %s", status)
	}
	if !banAuthor {
		return errors.New("expected banAuthor")
	}
	return s.errs[commentID]
}

type stubGate struct {
	ensureErr    error
	refreshCalls int
}

func (s *stubGate) EnsureValid(ctx context.Context) error { return s.ensureErr }
func (s *stubGate) ForceRefresh(ctx context.Context) error {
	s.refreshCalls++
	return nil
}

func comments(ids ...string) []domain.Comment {
	out := make([]domain.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Comment{ID: id, Text: "text " + id, Author: "author"})
	}
	return out
}

func spamVerdict(confidence float64) domain.Verdict {
	return domain.Verdict{
		IsSpam:            true,
		Confidence:        confidence,
		SpamType:          domain.SpamTypeGambling,
		RiskLevel:         domain.RiskHigh,
		RecommendedAction: domain.ActionDelete,
		DetectedPatterns:  []string{"site name"},
		Reason:            "gambling promotion",
	}
}

func newTestRunner(deps Deps) *Runner {
	if deps.Caller == nil {
		deps.Caller = retry.NewCaller(retry.WithSleeper(noSleep), retry.WithRefresher(refresherFromGate(deps.Gate)))
	}
	r := NewRunner(deps)
	r.sleep = noSleep
	return r
}

func TestRunModeratesHighConfidenceSpam(t *testing.T) {
	source := &stubSource{comments: comments("spam1", "clean1", "clean2")}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{
		"spam1": spamVerdict(0.9),
	}}
	moderator := &stubModerator{}
	gate := &stubGate{}

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: gate})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if got := len(state.Moderated); got != 1 {
		t.Fatalf("moderated count = %d, want 1", got)
	}
	if state.Moderated[0] != "spam1" {
		t.Errorf("moderated id = %s, want spam1", state.Moderated[0])
	}
	if len(moderator.calls) != 1 {
		t.Errorf("moderator calls = %d, want 1", len(moderator.calls))
	}
	if state.Stats.SpamDetected != 1 || state.Stats.TotalComments != 3 {
		t.Errorf("stats spam/total = %d/%d, want 1/3", state.Stats.SpamDetected, state.Stats.TotalComments)
	}
	if len(state.Errors) != 0 {
		t.Errorf("unexpected errors: %v", state.Errors)
	}
	if len(state.Outcomes) != 1 || !state.Outcomes[0].Succeeded {
		t.Errorf("outcome = %+v, want one success", state.Outcomes)
	}
}

func TestRunDryRunSuppressesModeration(t *testing.T) {
	source := &stubSource{comments: comments("spam1", "clean1")}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{
		"spam1": spamVerdict(0.95),
	}}
	moderator := &stubModerator{}
	gate := &stubGate{}

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: gate})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10, DryRun: true})

	if len(moderator.calls) != 0 {
		t.Errorf("dry run made %d moderation calls, want 0", len(moderator.calls))
	}
	if state.Stats.SpamDetected != 1 {
		t.Errorf("spam detected = %d, want 1", state.Stats.SpamDetected)
	}
	if state.Stats.ModeratedCount != 0 {
		t.Errorf("moderated = %d, want 0", state.Stats.ModeratedCount)
	}
	if !state.Stats.DryRun {
		t.Error("stats must carry the dry-run flag")
	}
}

func TestRunWithoutCredentialSkipsModeration(t *testing.T) {
	source := &stubSource{comments: comments("spam1")}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{
		"spam1": spamVerdict(0.9),
	}}
	moderator := &stubModerator{}
	gate := &stubGate{ensureErr: errors.New("no stored credential")}

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: gate})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if len(moderator.calls) != 0 {
		t.Errorf("made %d moderation calls without a credential, want 0", len(moderator.calls))
	}
	found := false
	for _, msg := range state.Errors {
		if strings.Contains(msg, "authentication required") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want an authentication-required entry", state.Errors)
	}
	if state.Stats.ModeratedCount != 0 {
		t.Errorf("moderated = %d, want 0", state.Stats.ModeratedCount)
	}
}

func TestRunFetchFailureYieldsEmptyRun(t *testing.T) {
	source := &stubSource{err: errors.New("comments disabled")}
	classifier := &stubClassifier{}
	moderator := &stubModerator{}

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: &stubGate{}})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if state.Stats.TotalComments != 0 {
		t.Errorf("total comments = %d, want 0", state.Stats.TotalComments)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times on an empty run, want 0", classifier.calls)
	}
	if len(state.Errors) != 1 {
		t.Fatalf("errors = %v, want one fetch entry", state.Errors)
	}
	if !strings.Contains(state.Errors[0], "fetch comments") {
		t.Errorf("error = %q, want fetch comments prefix", state.Errors[0])
	}
}

func TestRunClassifierFailureSubstitutesFallback(t *testing.T) {
	source := &stubSource{comments: comments("a", "b", "c")}
	classifier := &stubClassifier{
		verdicts: map[string]domain.Verdict{"a": spamVerdict(0.9)},
		errs:     map[string]error{"b": errors.New("model overloaded")},
	}
	moderator := &stubModerator{}

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: &stubGate{}})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if len(state.Ranked) != len(state.Comments) {
		t.Fatalf("ranked %d of %d comments, want one verdict per comment", len(state.Ranked), len(state.Comments))
	}

	var fallback *domain.RankedComment
	for i := range state.Ranked {
		if state.Ranked[i].Comment.ID == "b" {
			fallback = &state.Ranked[i]
		}
	}
	if fallback == nil {
		t.Fatal("comment b missing from ranked set")
	}
	if fallback.Verdict.IsSpam || fallback.Verdict.SpamType != domain.SpamTypeError {
		t.Errorf("fallback verdict = %+v, want non-spam error type", fallback.Verdict)
	}
	// The failed comment must never become a moderation candidate.
	for _, id := range state.Moderated {
		if id == "b" {
			t.Error("fallback-classified comment was moderated")
		}
	}
}

func TestRunPagesUntilLimit(t *testing.T) {
	source := &stubSource{comments: comments("a", "b", "c", "d", "e"), pageSize: 2}
	r := newTestRunner(Deps{Source: source, Classifier: &stubClassifier{}, Moderator: &stubModerator{}, Gate: &stubGate{}})

	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 3, DryRun: true})

	if len(state.Comments) != 3 {
		t.Errorf("fetched %d comments, want the 3-item cap honored", len(state.Comments))
	}
	if source.calls < 2 {
		t.Errorf("source called %d times, want paging across calls", source.calls)
	}
}

func TestRunModerationFailureIsolated(t *testing.T) {
	source := &stubSource{comments: comments("spam1", "spam2")}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{
		"spam1": spamVerdict(0.95),
		"spam2": spamVerdict(0.9),
	}}
	moderator := &stubModerator{errs: map[string]error{
		"spam1": errors.New("comment not found"),
	}}

	caller := retry.NewCaller(
		retry.WithSleeper(noSleep),
		retry.WithClassifier(func(error) retry.Class { return retry.ClassPermanent }),
	)
	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: &stubGate{}, Caller: caller})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if len(state.Moderated) != 1 || state.Moderated[0] != "spam2" {
		t.Errorf("moderated = %v, want spam2 despite spam1 failing", state.Moderated)
	}
	if len(state.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(state.Outcomes))
	}
	for _, outcome := range state.Outcomes {
		if outcome.CommentID == "spam1" && outcome.ErrorClass != domain.ErrorClassPermanent {
			t.Errorf("spam1 error class = %s, want permanent", outcome.ErrorClass)
		}
	}
}

func TestRunBatchIsolatesVideoFailures(t *testing.T) {
	failing := &stubSource{err: errors.New("video not found")}
	working := &stubSource{comments: comments("spam1")}

	// Route the first video to the failing source, the rest to the
	// working one.
	router := &routingSource{byVideo: map[string]*stubSource{
		"bad00000001": failing,
		"good0000001": working,
	}}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{"spam1": spamVerdict(0.9)}}

	r := newTestRunner(Deps{Source: router, Classifier: classifier, Moderator: &stubModerator{}, Gate: &stubGate{}})
	states := r.RunBatch(context.Background(), []string{"bad00000001", "good0000001"}, 10, true)

	if len(states) != 2 {
		t.Fatalf("batch produced %d states, want 2", len(states))
	}
	if len(states[0].Errors) == 0 {
		t.Error("failing video recorded no errors")
	}
	if states[1].Stats.SpamDetected != 1 {
		t.Errorf("second video spam = %d, want 1 despite first video failing", states[1].Stats.SpamDetected)
	}
	if len(states[1].Errors) != 0 {
		t.Errorf("second video errors = %v, want none", states[1].Errors)
	}
}

type routingSource struct {
	byVideo map[string]*stubSource
}

func (r *routingSource) List(ctx context.Context, videoID string, pageSize int64, cursor string) ([]domain.Comment, string, error) {
	src, ok := r.byVideo[videoID]
	if !ok {
		return nil, "", fmt.Errorf("no source for %s", videoID)
	}
	return src.List(ctx, videoID, pageSize, cursor)
}

func TestRunAuthExpiredTriggersRefresh(t *testing.T) {
	source := &stubSource{comments: comments("spam1")}
	classifier := &stubClassifier{verdicts: map[string]domain.Verdict{"spam1": spamVerdict(0.9)}}
	gate := &stubGate{}

	attempts := 0
	moderator := &flakyModerator{fn: func() error {
		attempts++
		if attempts == 1 {
			return errors.New("credentials expired")
		}
		return nil
	}}

	caller := retry.NewCaller(
		retry.WithSleeper(noSleep),
		retry.WithRefresher(refresherFromGate(gate)),
		retry.WithClassifier(func(err error) retry.Class {
			if attempts == 1 {
				return retry.ClassAuthExpired
			}
			return retry.ClassTransient
		}),
	)

	r := newTestRunner(Deps{Source: source, Classifier: classifier, Moderator: moderator, Gate: gate, Caller: caller})
	state := r.Run(context.Background(), domain.RunParams{VideoID: "video000001", MaxResults: 10})

	if gate.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", gate.refreshCalls)
	}
	if len(state.Moderated) != 1 {
		t.Errorf("moderated = %v, want success after refresh", state.Moderated)
	}
}

type flakyModerator struct {
	fn func() error
}

func (f *flakyModerator) SetStatus(ctx context.Context, commentID, status string, banAuthor bool) error {
	return f.fn()
}
