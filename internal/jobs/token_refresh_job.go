package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/internal/service"
)

const concurrencyLimit = 10

// TokenRefreshJob refreshes tokens shortly before they expire. Calls that still hit an
// expired token are refreshed on demand, so a missed run costs one extra round trip.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	creds  service.CredentialService
	window time.Duration
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, creds service.CredentialService, window time.Duration) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:     sr,
		creds:  creds,
		window: window,
	}
}

// RefreshTokens returns how many accounts were refreshed.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) int {
	currentTime := time.Now()

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, currentTime.Add(c.window))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var refreshed atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit)

	for _, acc := range accounts {
		g.Go(func() error {
			if _, err := c.creds.Refresh(ctx, acc); err != nil {
				slog.Info("proactive token refresh failed", "user_id", acc.UserID, "platform", acc.Platform, "error", err)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if len(accounts) > 0 {
		slog.Info("token refresh run", "due", len(accounts), "refreshed", refreshed.Load())
	}
	return int(refreshed.Load())
}
