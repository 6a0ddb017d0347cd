package models

import "time"

// AccountAnalytics is what a provider reports for an account at a point in time.
type AccountAnalytics struct {
	Followers     int64            `json:"followers"`
	Following     int64            `json:"following"`
	Posts         int64            `json:"posts"`
	AvgEngagement float64          `json:"avg_engagement"`
	ReachRate     float64          `json:"reach_rate"`
	TopPostTypes  map[string]int64 `json:"top_post_types"`
	AudienceDemo  map[string]int64 `json:"audience_demo"`
}

// AnalyticsSnapshot rows are append-only.
type AnalyticsSnapshot struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Platform    Platform  `db:"platform" json:"platform"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
	AccountAnalytics
}
