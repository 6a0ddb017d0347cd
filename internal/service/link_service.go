package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/pkg/utils"
)

// Registry resolves a platform name to its client.
type Registry interface {
	Lookup(name string) (platform.Client, error)
	Platforms() []models.Platform
}

// LinkService runs the OAuth authorization-code flow that links a social account to a user.
type LinkService interface {
	StartLink(ctx context.Context, userID int64, platformName string) (string, error)
	CompleteLink(ctx context.Context, userID int64, platformName, code, state string) (*models.SocialAccount, error)
}

type linkService struct {
	registry Registry
	nonces   NonceStore
	sa       repository.SocialAccountRepository
	sealer   *utils.TokenSealer
	ttl      time.Duration
}

func NewLinkService(
	registry Registry,
	nonces NonceStore,
	sa repository.SocialAccountRepository,
	sealer *utils.TokenSealer,
	ttl time.Duration) LinkService {
	return &linkService{
		registry: registry,
		nonces:   nonces,
		sa:       sa,
		sealer:   sealer,
		ttl:      ttl,
	}
}

func nonceKey(userID int64, platformName string) string {
	return fmt.Sprintf("%d:%s", userID, platformName)
}

// StartLink issues a fresh state for (user, platform) and returns the provider's authorize URL.
func (s *linkService) StartLink(ctx context.Context, userID int64, platformName string) (string, error) {
	if userID == 0 {
		err := errors.New("user id is not valid")
		slog.Info(err.Error())
		return "", err
	}

	client, err := s.registry.Lookup(platformName)
	if err != nil {
		slog.Error("link requested for unknown platform", "platform", platformName)
		return "", err
	}

	nonce, err := utils.GenerateNonce(utils.NonceBytes)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	if err := s.nonces.Put(ctx, nonceKey(userID, platformName), nonce, s.ttl); err != nil {
		return "", fmt.Errorf("store link state: %w", err)
	}

	return client.AuthURL(nonce), nil
}

// CompleteLink redeems the state, exchanges the code and stores the linked account.
// Nothing is written unless every step succeeds.
func (s *linkService) CompleteLink(ctx context.Context, userID int64, platformName, code, state string) (*models.SocialAccount, error) {
	client, err := s.registry.Lookup(platformName)
	if err != nil {
		slog.Error("callback for unknown platform", "platform", platformName)
		return nil, err
	}
	name := client.Name()

	expected, ok, err := s.nonces.Take(ctx, nonceKey(userID, platformName))
	if err != nil {
		return nil, fmt.Errorf("load link state: %w", err)
	}
	if !ok {
		slog.Info("link state missing or expired", "user_id", userID, "platform", name)
		return nil, &platform.CsrfMismatchError{Platform: name, Reason: "no pending link for this session or it expired"}
	}
	if !utils.NonceEqual(expected, state) {
		slog.Info("link state mismatch", "user_id", userID, "platform", name)
		return nil, &platform.CsrfMismatchError{Platform: name, Reason: "state does not match"}
	}

	if code == "" {
		return nil, &platform.AuthExchangeError{Platform: name, Err: errors.New("authorization code is empty")}
	}

	tokens, err := client.Authenticate(ctx, code)
	if err != nil {
		slog.Info("code exchange failed", "platform", name, "error", err)
		return nil, err
	}

	profile, err := client.GetProfile(ctx, tokens.AccessToken)
	if err != nil {
		slog.Info("profile lookup after code exchange failed", "platform", name, "error", err)
		return nil, fmt.Errorf("%s profile: %w", name, err)
	}

	sealedAccess, err := s.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	sealedRefresh, err := s.sealer.Seal(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	account := &models.SocialAccount{
		UserID:          userID,
		Platform:        name,
		AccountID:       profile.ID,
		AccountName:     profile.Name,
		AccountUsername: profile.Username,
		ProfilePicture:  profile.ProfilePicture,
		AccessToken:     sealedAccess,
		RefreshToken:    sealedRefresh,
		TokenExpiresAt:  tokens.ExpiresAt(),
	}
	if err := s.sa.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("store linked account: %w", err)
	}

	slog.Info("account linked", "user_id", userID, "platform", name, "account_id", account.AccountID)
	return account, nil
}
