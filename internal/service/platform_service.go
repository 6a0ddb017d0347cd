package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/repository"
)

var ErrAccountNotFound = errors.New("social account doesn't exist")

// PlatformService manages the linked accounts of a user and their stored analytics.
type PlatformService interface {
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Unlink(ctx context.Context, userID, accountID int64) error
	Snapshots(ctx context.Context, userID, accountID int64, limit int) ([]*models.AnalyticsSnapshot, error)
	LatestSnapshots(ctx context.Context, userID int64) ([]*models.AnalyticsSnapshot, error)
}

type platformService struct {
	sa repository.SocialAccountRepository
	an repository.AnalyticsRepository
}

func NewPlatformService(sa repository.SocialAccountRepository, an repository.AnalyticsRepository) PlatformService {
	return &platformService{
		sa: sa,
		an: an,
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		err := errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list social accounts: %w", err)
	}

	return accounts, nil
}

func (s *platformService) owned(ctx context.Context, userID, accountID int64) error {
	if userID == 0 || accountID == 0 {
		err := errors.New("UserID or AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info("social account not owned by user", "user_id", userID, "account_id", accountID)
		return ErrAccountNotFound
	}
	return nil
}

// Unlink deactivates the account. Its snapshots stay for trend history;
// linking the platform again reactivates the same row.
func (s *platformService) Unlink(ctx context.Context, userID, accountID int64) error {
	if err := s.owned(ctx, userID, accountID); err != nil {
		return err
	}

	if err := s.sa.Deactivate(ctx, accountID); err != nil {
		return fmt.Errorf("unlink account: %w", err)
	}

	slog.Info("account unlinked", "user_id", userID, "account_id", accountID)
	return nil
}

func (s *platformService) Snapshots(ctx context.Context, userID, accountID int64, limit int) ([]*models.AnalyticsSnapshot, error) {
	if err := s.owned(ctx, userID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	return s.an.ListByAccountID(ctx, accountID, limit)
}

func (s *platformService) LatestSnapshots(ctx context.Context, userID int64) ([]*models.AnalyticsSnapshot, error) {
	return s.an.LatestByUserID(ctx, userID)
}
