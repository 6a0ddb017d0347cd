package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/maheshrc27/socialhub/internal/models"
)

// AnalyticsRepository stores snapshots. Rows are never updated.
type AnalyticsRepository interface {
	Create(ctx context.Context, snap *models.AnalyticsSnapshot) (int64, error)
	ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*models.AnalyticsSnapshot, error)
	LatestByUserID(ctx context.Context, userID int64) ([]*models.AnalyticsSnapshot, error)
}

type analyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Create(ctx context.Context, snap *models.AnalyticsSnapshot) (int64, error) {
	topPostTypes, err := json.Marshal(nonNil(snap.TopPostTypes))
	if err != nil {
		return 0, err
	}
	audience, err := json.Marshal(nonNil(snap.AudienceDemo))
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO analytics_snapshots (
			account_id, user_id, platform, followers, following, posts,
			avg_engagement, reach_rate, top_post_types, audience_demo, collected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		snap.AccountID, snap.UserID, snap.Platform, snap.Followers, snap.Following, snap.Posts,
		snap.AvgEngagement, snap.ReachRate, topPostTypes, audience, snap.CollectedAt,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	snap.ID = id
	return id, nil
}

func (r *analyticsRepository) ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*models.AnalyticsSnapshot, error) {
	query := `
		SELECT id, account_id, user_id, platform, followers, following, posts,
			avg_engagement, reach_rate, top_post_types, audience_demo, collected_at
		FROM analytics_snapshots
		WHERE account_id = $1
		ORDER BY collected_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, accountID, limit)
}

// LatestByUserID returns the newest snapshot of each of the user's accounts.
func (r *analyticsRepository) LatestByUserID(ctx context.Context, userID int64) ([]*models.AnalyticsSnapshot, error) {
	query := `
		SELECT DISTINCT ON (account_id)
			id, account_id, user_id, platform, followers, following, posts,
			avg_engagement, reach_rate, top_post_types, audience_demo, collected_at
		FROM analytics_snapshots
		WHERE user_id = $1
		ORDER BY account_id, collected_at DESC
	`
	return r.list(ctx, query, userID)
}

func (r *analyticsRepository) list(ctx context.Context, query string, args ...any) ([]*models.AnalyticsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	snapshots := []*models.AnalyticsSnapshot{}
	for rows.Next() {
		var (
			s                      models.AnalyticsSnapshot
			topPostTypes, audience []byte
		)
		err := rows.Scan(&s.ID, &s.AccountID, &s.UserID, &s.Platform, &s.Followers, &s.Following, &s.Posts,
			&s.AvgEngagement, &s.ReachRate, &topPostTypes, &audience, &s.CollectedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if err := json.Unmarshal(topPostTypes, &s.TopPostTypes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(audience, &s.AudienceDemo); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

func nonNil(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}
