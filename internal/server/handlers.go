package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"commentguard/internal/auth"
	"commentguard/internal/domain"
)

const (
	videoIDLength   = 11
	maxResultsCap   = 100
	maxBatchSize    = 10
	defaultRunLimit = 20
	maxRunLimit     = 100
)

type processVideoRequest struct {
	VideoID    string `json:"video_id"`
	MaxResults int    `json:"max_results"`
	DryRun     *bool  `json:"dry_run"`
}

type batchProcessRequest struct {
	VideoIDs   []string `json:"video_ids"`
	MaxResults int      `json:"max_results"`
	DryRun     *bool    `json:"dry_run"`
}

type analyzeCommentRequest struct {
	CommentText string `json:"comment_text"`
	Author      string `json:"author"`
	LikeCount   int64  `json:"like_count"`
}

type videoInfoRequest struct {
	VideoID string `json:"video_id"`
}

type runResponse struct {
	VideoID   string                     `json:"video_id"`
	Stats     domain.ProcessingStats     `json:"stats"`
	Flagged   []domain.RankedComment     `json:"flagged"`
	Moderated []string                   `json:"moderated"`
	Outcomes  []domain.ModerationOutcome `json:"outcomes"`
	Errors    []string                   `json:"errors"`
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func validVideoID(id string) bool {
	return len(id) == videoIDLength
}

func clampMaxResults(requested, fallback int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > maxResultsCap {
		return maxResultsCap
	}
	return requested
}

// dryRunOrDefault keeps dry-run as the safe default when the request
// omits the flag.
func dryRunOrDefault(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	authenticated := s.auth != nil && s.auth.EnsureValid(c.UserContext()) == nil
	return c.JSON(fiber.Map{
		"status":        "healthy",
		"service":       "commentguard",
		"authenticated": authenticated,
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleProcessVideo(c *fiber.Ctx) error {
	var req processVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !validVideoID(req.VideoID) {
		return badRequest(c, "video_id must be 11 characters")
	}

	params := domain.RunParams{
		VideoID:    req.VideoID,
		MaxResults: clampMaxResults(req.MaxResults, s.defaultMaxResults),
		DryRun:     dryRunOrDefault(req.DryRun),
	}

	state := s.runner.Run(c.UserContext(), params)
	return c.JSON(toRunResponse(state))
}

func (s *Server) handleBatchProcess(c *fiber.Ctx) error {
	var req batchProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.VideoIDs) == 0 {
		return badRequest(c, "video_ids must be a non-empty list")
	}
	if len(req.VideoIDs) > maxBatchSize {
		return badRequest(c, "maximum 10 videos per batch")
	}
	for _, id := range req.VideoIDs {
		if !validVideoID(id) {
			return badRequest(c, "video_id must be 11 characters: "+id)
		}
	}

	states := s.runner.RunBatch(c.UserContext(), req.VideoIDs,
		clampMaxResults(req.MaxResults, s.defaultMaxResults),
		dryRunOrDefault(req.DryRun))

	results := make([]runResponse, 0, len(states))
	for _, state := range states {
		results = append(results, toRunResponse(state))
	}
	return c.JSON(fiber.Map{"results": results})
}

func (s *Server) handleAnalyzeComment(c *fiber.Ctx) error {
	var req analyzeCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CommentText == "" {
		return badRequest(c, "comment_text is required")
	}
	if len(req.CommentText) > 5000 {
		return badRequest(c, "comment_text too long")
	}

	verdict, err := s.classifier.Classify(c.UserContext(), domain.Comment{
		Text:      req.CommentText,
		Author:    req.Author,
		LikeCount: req.LikeCount,
	})
	if err != nil {
		s.logger.Warn("single comment classification failed", "error", err)
		verdict = domain.FallbackVerdict(err.Error())
	}

	return c.JSON(fiber.Map{"verdict": verdict})
}

func (s *Server) handleVideoInfo(c *fiber.Ctx) error {
	var req videoInfoRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !validVideoID(req.VideoID) {
		return badRequest(c, "video_id must be 11 characters")
	}

	info, err := s.videos.Get(c.UserContext(), req.VideoID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"video_info": info})
}

func (s *Server) handleRuns(c *fiber.Ctx) error {
	videoID := c.Query("video_id")
	if !validVideoID(videoID) {
		return badRequest(c, "video_id must be 11 characters")
	}

	limit := c.QueryInt("limit", defaultRunLimit)
	if limit <= 0 || limit > maxRunLimit {
		limit = defaultRunLimit
	}

	runs, err := s.runs.RecentRuns(c.UserContext(), videoID, uint64(limit))
	if err != nil {
		s.logger.Error("run history lookup failed", "video_id", videoID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot load run history"})
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func (s *Server) handleAuthLogin(c *fiber.Ctx) error {
	url, err := s.auth.AuthorizationURL()
	if err != nil {
		s.logger.Error("authorization url failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cannot start authorization"})
	}
	return c.JSON(fiber.Map{"authorization_url": url})
}

func (s *Server) handleOAuthCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return badRequest(c, "code and state are required")
	}

	identity, err := s.auth.ExchangeAuthorizationCode(c.UserContext(), code, state)
	if err != nil {
		if errors.Is(err, auth.ErrStateMismatch) {
			return badRequest(c, "invalid oauth state")
		}
		s.logger.Error("oauth exchange failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authorization failed"})
	}

	return c.JSON(fiber.Map{
		"authenticated": true,
		"channel_id":    identity.ChannelID,
		"channel_title": identity.ChannelTitle,
	})
}

func (s *Server) handleAuthStatus(c *fiber.Ctx) error {
	identity, err := s.auth.Identity(c.UserContext())
	if err != nil {
		return c.JSON(fiber.Map{"authenticated": false})
	}
	return c.JSON(fiber.Map{
		"authenticated": true,
		"channel_id":    identity.ChannelID,
		"channel_title": identity.ChannelTitle,
	})
}

func (s *Server) handleAuthLogout(c *fiber.Ctx) error {
	if err := s.auth.Logout(); err != nil {
		s.logger.Error("logout failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "logout failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func toRunResponse(state *domain.RunState) runResponse {
	return runResponse{
		VideoID:   state.Params.VideoID,
		Stats:     state.Stats,
		Flagged:   state.Flagged(),
		Moderated: state.Moderated,
		Outcomes:  state.Outcomes,
		Errors:    state.Errors,
	}
}
