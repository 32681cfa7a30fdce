package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"commentguard/internal/domain"
	"commentguard/internal/ports"
)

// PostgresRepository persists completed run summaries for audit.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.RunRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveRun upserts the run summary keyed by video id and start time.
func (r *PostgresRepository) SaveRun(ctx context.Context, state *domain.RunState) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.saveRunQuery(state)
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) saveRunQuery(state *domain.RunState) (string, []any, error) {
	return r.builder.
		Insert("moderation_runs").
		Columns(
			"video_id", "started_at", "dry_run",
			"total_comments", "spam_detected", "moderated_count",
			"spam_rate_percent", "action_rate_percent",
			"moderated_ids", "errors",
		).
		Values(
			state.Params.VideoID,
			state.StartedAt,
			state.Params.DryRun,
			state.Stats.TotalComments,
			state.Stats.SpamDetected,
			state.Stats.ModeratedCount,
			state.Stats.SpamRatePercent,
			state.Stats.ActionRatePercent,
			pq.StringArray(state.Moderated),
			pq.StringArray(state.Errors),
		).
		Suffix(`ON CONFLICT (video_id, started_at) DO UPDATE
		        SET moderated_count = EXCLUDED.moderated_count,
		            moderated_ids = EXCLUDED.moderated_ids,
		            errors = EXCLUDED.errors`).
		ToSql()
}

// RecentRuns lists the latest persisted run summaries for one video,
// newest first.
func (r *PostgresRepository) RecentRuns(ctx context.Context, videoID string, limit uint64) ([]domain.RunSummary, error) {
	if r.db == nil {
		return []domain.RunSummary{}, nil
	}

	query, args, err := r.recentRunsQuery(videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("build run select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	summaries := []domain.RunSummary{}
	for rows.Next() {
		s := domain.RunSummary{VideoID: videoID}
		if err := rows.Scan(
			&s.TotalComments, &s.SpamDetected, &s.ModeratedCount,
			&s.SpamRatePercent, &s.ActionRatePercent, &s.DryRun, &s.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return summaries, nil
}

func (r *PostgresRepository) recentRunsQuery(videoID string, limit uint64) (string, []any, error) {
	return r.builder.
		Select("total_comments", "spam_detected", "moderated_count",
			"spam_rate_percent", "action_rate_percent", "dry_run", "started_at").
		From("moderation_runs").
		Where(sq.Eq{"video_id": videoID}).
		OrderBy("started_at DESC").
		Limit(limit).
		ToSql()
}
