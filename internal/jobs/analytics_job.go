package job

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/internal/service"
)

// AnalyticsJob appends an analytics snapshot for every active account.
type AnalyticsJob struct {
	sr      repository.SocialAccountRepository
	content service.ContentService
}

func NewAnalyticsJob(sr repository.SocialAccountRepository, content service.ContentService) *AnalyticsJob {
	return &AnalyticsJob{
		sr:      sr,
		content: content,
	}
}

func (j *AnalyticsJob) CollectAll(ctx context.Context) {
	userIDs, err := j.sr.ListActiveUserIDs(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, userID := range userIDs {
		g.Go(func() error {
			result, err := j.content.CollectAnalytics(ctx, userID)
			if err != nil {
				slog.Info("analytics collection failed", "user_id", userID, "error", err)
				return nil
			}
			for _, f := range result.Failures {
				slog.Info("analytics missing for platform", "user_id", userID, "platform", f.Platform, "reason", f.Reason)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("analytics collection run", "users", len(userIDs))
}
