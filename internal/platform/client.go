package platform

import (
	"context"
	"time"

	"github.com/maheshrc27/socialhub/internal/models"
)

// TokenPair is what a provider hands back from a code exchange or a refresh.
// RefreshToken is empty when the provider does not rotate it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// ExpiresAt returns nil when the provider gave no lifetime.
func (t TokenPair) ExpiresAt() *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}

type Profile struct {
	ID             string
	Username       string
	Name           string
	ProfilePicture string
	Followers      *int64
	Following      *int64
}

// Credentials are the plaintext tokens of a linked account, handed to a Client per call.
type Credentials struct {
	AccountID    string
	Username     string
	AccessToken  string
	RefreshToken string
}

// Client is the capability set every provider implements. Implementations
// translate provider failures into the errors of this package.
type Client interface {
	Name() models.Platform
	AuthURL(state string) string
	Authenticate(ctx context.Context, code string) (TokenPair, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error)
	GetProfile(ctx context.Context, accessToken string) (*Profile, error)
	CreatePost(ctx context.Context, creds Credentials, req models.PublishRequest) (*models.PostRef, error)
	DeletePost(ctx context.Context, creds Credentials, postID string) error
	GetPostAnalytics(ctx context.Context, creds Credentials, postID string) (models.PostAnalytics, error)
	GetAccountAnalytics(ctx context.Context, creds Credentials) (models.AccountAnalytics, error)
	SearchPosts(ctx context.Context, creds Credentials, query string) ([]models.UnifiedPost, error)
}
