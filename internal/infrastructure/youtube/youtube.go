// Package youtube adapts the YouTube Data API v3 to the collaborator
// ports: paginated comment listing (API-key read access), comment
// moderation and channel lookup (delegated OAuth access), and video
// metadata lookup.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"

	"commentguard/internal/domain"
	"commentguard/internal/ports"
)

// CommentSource lists top-level comments with an API key.
type CommentSource struct {
	svc *youtubeapi.Service
}

var _ ports.CommentSource = (*CommentSource)(nil)

// NewCommentSource builds the read-only client.
func NewCommentSource(ctx context.Context, apiKey string, opts ...option.ClientOption) (*CommentSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}
	svc, err := youtubeapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return NewCommentSourceFromService(svc), nil
}

// NewCommentSourceFromService wraps an already-constructed service.
func NewCommentSourceFromService(svc *youtubeapi.Service) *CommentSource {
	return &CommentSource{svc: svc}
}

// List fetches one page of top-level comments in time order.
func (s *CommentSource) List(ctx context.Context, videoID string, pageSize int64, cursor string) ([]domain.Comment, string, error) {
	call := s.svc.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).
		MaxResults(pageSize).
		Order("time").
		Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list comment threads: %w", err)
	}

	comments := make([]domain.Comment, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		comments = append(comments, toComment(item.Id, item.Snippet.TopLevelComment.Snippet))
	}

	return comments, resp.NextPageToken, nil
}

func toComment(id string, snippet *youtubeapi.CommentSnippet) domain.Comment {
	publishedAt, _ := time.Parse(time.RFC3339, snippet.PublishedAt)

	authorChannelID := ""
	if snippet.AuthorChannelId != nil {
		authorChannelID = snippet.AuthorChannelId.Value
	}

	return domain.Comment{
		ID:              id,
		Text:            snippet.TextDisplay,
		Author:          snippet.AuthorDisplayName,
		PublishedAt:     publishedAt,
		LikeCount:       snippet.LikeCount,
		AuthorChannelID: authorChannelID,
	}
}

// TokenProvider hands out a valid delegated token for one call. The
// request context flows into any refresh the provider has to perform.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// authTransport injects the delegated credential into every request,
// resolving it under the request's own context.
type authTransport struct {
	provider TokenProvider
	base     http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.provider.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("resolve delegated token: %w", err)
	}

	authed := req.Clone(req.Context())
	token.SetAuthHeader(authed)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authed)
}

// Moderator mutates comment moderation status under the delegated
// credential. The service is built once; each call fetches its token
// through the provider's validate-refresh-persist path.
type Moderator struct {
	svc *youtubeapi.Service
}

var _ ports.Moderator = (*Moderator)(nil)

// NewModerator wires the delegated token provider.
func NewModerator(ctx context.Context, provider TokenProvider, opts ...option.ClientOption) (*Moderator, error) {
	client := &http.Client{Transport: &authTransport{provider: provider}}
	svc, err := youtubeapi.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Moderator{svc: svc}, nil
}

// SetStatus applies a moderation status to one comment. Re-applying the
// same status is a platform-side no-op, which is what makes retries safe.
func (m *Moderator) SetStatus(ctx context.Context, commentID, status string, banAuthor bool) error {
	call := m.svc.Comments.SetModerationStatus([]string{commentID}, status).Context(ctx)
	if banAuthor && status == "rejected" {
		call = call.BanAuthor(true)
	}

	if err := call.Do(); err != nil {
		return fmt.Errorf("set moderation status: %w", err)
	}
	return nil
}

// VideoSource looks up video metadata with an API key.
type VideoSource struct {
	svc *youtubeapi.Service
}

var _ ports.VideoSource = (*VideoSource)(nil)

// NewVideoSource builds the metadata client.
func NewVideoSource(ctx context.Context, apiKey string, opts ...option.ClientOption) (*VideoSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}
	svc, err := youtubeapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return NewVideoSourceFromService(svc), nil
}

// NewVideoSourceFromService wraps an already-constructed service.
func NewVideoSourceFromService(svc *youtubeapi.Service) *VideoSource {
	return &VideoSource{svc: svc}
}

// Get returns the snippet and statistics summary for one video.
func (v *VideoSource) Get(ctx context.Context, videoID string) (domain.VideoInfo, error) {
	resp, err := v.svc.Videos.List([]string{"snippet", "statistics"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return domain.VideoInfo{}, fmt.Errorf("list videos: %w", err)
	}
	if len(resp.Items) == 0 {
		return domain.VideoInfo{}, fmt.Errorf("video %s not found", videoID)
	}

	item := resp.Items[0]
	info := domain.VideoInfo{VideoID: videoID}
	if item.Snippet != nil {
		info.Title = item.Snippet.Title
		info.ChannelID = item.Snippet.ChannelId
		info.ChannelTitle = item.Snippet.ChannelTitle
		info.PublishedAt, _ = time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	}
	if item.Statistics != nil {
		info.ViewCount = item.Statistics.ViewCount
		info.LikeCount = item.Statistics.LikeCount
		info.CommentCount = item.Statistics.CommentCount
	}
	return info, nil
}

// ResolveIdentity fetches the channel behind a token, used by the
// credential manager right after the code exchange.
func ResolveIdentity(opts ...option.ClientOption) func(ctx context.Context, src oauth2.TokenSource) (domain.Identity, error) {
	return func(ctx context.Context, src oauth2.TokenSource) (domain.Identity, error) {
		svc, err := youtubeapi.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(src)}, opts...)...)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("create youtube service: %w", err)
		}

		resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
		if err != nil {
			return domain.Identity{}, fmt.Errorf("list channels: %w", err)
		}
		if len(resp.Items) == 0 {
			return domain.Identity{}, fmt.Errorf("no channel bound to credential")
		}

		item := resp.Items[0]
		identity := domain.Identity{ChannelID: item.Id}
		if item.Snippet != nil {
			identity.ChannelTitle = item.Snippet.Title
		}
		return identity, nil
	}
}

