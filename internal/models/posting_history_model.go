package models

import "time"

type PostingHistory struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Platform     Platform  `db:"platform" json:"platform"`
	RemotePostID string    `db:"remote_post_id" json:"remote_post_id"`
	PostURL      string    `db:"post_url" json:"post_url"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
