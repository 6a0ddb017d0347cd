package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/socialhub/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (int64, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.PostingHistory, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	query := `
		INSERT INTO posting_history (user_id, account_id, platform, remote_post_id, post_url, error_message)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		ph.UserID, ph.AccountID, ph.Platform, ph.RemotePostID, ph.PostURL, ph.ErrorMessage,
	).Scan(&ph.ID, &ph.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return ph.ID, nil
}

func (r *postingHistoryRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.PostingHistory, error) {
	query := `
		SELECT id, user_id, COALESCE(account_id, 0), platform, remote_post_id, post_url, error_message, created_at
		FROM posting_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	phs := []*models.PostingHistory{}
	for rows.Next() {
		var ph models.PostingHistory
		err := rows.Scan(&ph.ID, &ph.UserID, &ph.AccountID, &ph.Platform, &ph.RemotePostID, &ph.PostURL, &ph.ErrorMessage, &ph.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		phs = append(phs, &ph)
	}
	return phs, rows.Err()
}
