package models

import "time"

type Author struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
}

// UnifiedPost is the provider-agnostic view of a post. It is never stored.
type UnifiedPost struct {
	ID         string     `json:"id"`
	Platform   Platform   `json:"platform"`
	Author     Author     `json:"author"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"timestamp"`
	Engagement Engagement `json:"engagement"`
}

type PublishRequest struct {
	Content     string     `json:"content" validate:"required,max=2200"`
	MediaURLs   []string   `json:"media_urls" validate:"omitempty,max=10,dive,url"`
	Platforms   []Platform `json:"platforms" validate:"omitempty,dive,oneof=facebook instagram tiktok"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PostRef identifies a post created on a provider.
type PostRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PostAnalytics struct {
	Impressions int64 `json:"impressions"`
	Reaches     int64 `json:"reaches"`
	Engagements int64 `json:"engagements"`
	Shares      int64 `json:"shares"`
	Saves       int64 `json:"saves"`
}
