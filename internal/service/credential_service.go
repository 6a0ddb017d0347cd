package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maheshrc27/socialhub/internal/metrics"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/pkg/utils"
)

// CredentialService unseals stored tokens and refreshes them.
type CredentialService interface {
	Credentials(account *models.SocialAccount) (platform.Credentials, error)
	Refresh(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error)
}

// refreshTimeout bounds one shared provider refresh.
const refreshTimeout = 30 * time.Second

type credentialService struct {
	registry Registry
	sa       repository.SocialAccountRepository
	sealer   *utils.TokenSealer
	group    singleflight.Group
}

func NewCredentialService(registry Registry, sa repository.SocialAccountRepository, sealer *utils.TokenSealer) CredentialService {
	return &credentialService{
		registry: registry,
		sa:       sa,
		sealer:   sealer,
	}
}

func (s *credentialService) Credentials(account *models.SocialAccount) (platform.Credentials, error) {
	accessToken, err := s.sealer.Open(account.AccessToken)
	if err != nil {
		slog.Info(err.Error())
		return platform.Credentials{}, fmt.Errorf("open access token: %w", err)
	}
	refreshToken, err := s.sealer.Open(account.RefreshToken)
	if err != nil {
		slog.Info(err.Error())
		return platform.Credentials{}, fmt.Errorf("open refresh token: %w", err)
	}

	return platform.Credentials{
		AccountID:    account.AccountID,
		Username:     account.AccountUsername,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh swaps the account's tokens for fresh ones and returns the stored row.
// Concurrent callers for the same (user, platform) share one provider call, and
// the database write only lands if the row still holds the token that was refreshed.
// The shared call is detached from any single caller's deadline.
func (s *credentialService) Refresh(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	key := fmt.Sprintf("%d:%s", account.UserID, account.Platform)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx, account)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		refreshed := *res.Val.(*models.SocialAccount)
		return &refreshed, nil
	}
}

func (s *credentialService) refresh(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	client, err := s.registry.Lookup(account.Platform.String())
	if err != nil {
		slog.Error("refresh for unknown platform", "platform", account.Platform)
		return nil, err
	}

	// the caller may hold a copy loaded before another refresh rotated the tokens
	current, err := s.sa.GetByPlatform(ctx, account.UserID, account.Platform)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive {
		return nil, &platform.TokenRefreshError{Platform: account.Platform, Err: errors.New("account is no longer linked")}
	}
	if current.AccessToken != account.AccessToken {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeConflict).Inc()
		slog.Info("token already refreshed elsewhere", "user_id", account.UserID, "platform", account.Platform)
		return current, nil
	}
	account = current

	creds, err := s.Credentials(account)
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return s.fail(ctx, account, &platform.TokenRefreshError{
			Platform: account.Platform,
			Err:      errors.New("no refresh token stored"),
		})
	}

	tokens, err := client.RefreshAccessToken(ctx, creds.RefreshToken)
	if err != nil {
		return s.fail(ctx, account, err)
	}

	sealedAccess, err := s.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	// an empty sealed refresh token leaves the stored one in place
	sealedRefresh, err := s.sealer.Seal(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	next := &models.SocialAccount{
		AccessToken:    sealedAccess,
		RefreshToken:   sealedRefresh,
		TokenExpiresAt: tokens.ExpiresAt(),
	}
	swapped, err := s.sa.SetToken(ctx, account.UserID, account.Platform, account.AccessToken, next)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("store refreshed token: %w", err)
	}

	stored, err := s.sa.GetByPlatform(ctx, account.UserID, account.Platform)
	if err != nil {
		return nil, err
	}
	if stored == nil || !stored.IsActive {
		return nil, &platform.TokenRefreshError{Platform: account.Platform, Err: errors.New("account is no longer linked")}
	}

	if swapped {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeOK).Inc()
		slog.Info("token refreshed", "user_id", account.UserID, "platform", account.Platform)
	} else {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeConflict).Inc()
		slog.Info("token already refreshed elsewhere", "user_id", account.UserID, "platform", account.Platform)
	}
	return stored, nil
}

// fail deactivates the account when the provider rejected the refresh for good.
// A row whose tokens were rotated meanwhile is left active and returned instead.
func (s *credentialService) fail(ctx context.Context, account *models.SocialAccount, err error) (*models.SocialAccount, error) {
	var refreshErr *platform.TokenRefreshError
	if !errors.As(err, &refreshErr) {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeError).Inc()
		slog.Info("token refresh failed", "user_id", account.UserID, "platform", account.Platform, "error", err)
		return nil, err
	}

	deactivated, derr := s.sa.DeactivateToken(ctx, account.ID, account.AccessToken)
	if derr != nil {
		return nil, errors.Join(err, derr)
	}
	if deactivated {
		metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeDeactivated).Inc()
		slog.Info("deactivated account after refresh rejection", "user_id", account.UserID, "platform", account.Platform, "error", err)
		return nil, err
	}

	stored, gerr := s.sa.GetByPlatform(ctx, account.UserID, account.Platform)
	if gerr != nil {
		return nil, errors.Join(err, gerr)
	}
	if stored == nil || !stored.IsActive || stored.AccessToken == account.AccessToken {
		return nil, err
	}

	metrics.TokenRefreshes.WithLabelValues(account.Platform.String(), metrics.OutcomeConflict).Inc()
	slog.Info("refresh rejected for a rotated token, keeping newer credentials", "user_id", account.UserID, "platform", account.Platform)
	return stored, nil
}
