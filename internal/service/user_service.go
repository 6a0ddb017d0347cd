package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/repository"
)

var ErrUserNotFound = errors.New("user doesn't exist")

const defaultHistoryLimit = 50

type UserService interface {
	GetUserInfo(ctx context.Context, id int64) (*models.User, error)
	PostingHistory(ctx context.Context, userID int64, limit int) ([]*models.PostingHistory, error)
	RemoveUser(ctx context.Context, userID int64) error
}

type userService struct {
	u  repository.UserRepository
	ph repository.PostingHistoryRepository
}

func NewUserService(u repository.UserRepository, ph repository.PostingHistoryRepository) UserService {
	return &userService{
		u:  u,
		ph: ph,
	}
}

func (s *userService) GetUserInfo(ctx context.Context, id int64) (*models.User, error) {
	user, isExist, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}

	if !isExist {
		slog.Info("user not found", "user_id", id)
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (s *userService) PostingHistory(ctx context.Context, userID int64, limit int) ([]*models.PostingHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	return s.ph.GetByUserID(ctx, userID, limit)
}

func (s *userService) RemoveUser(ctx context.Context, userID int64) error {
	return s.u.Remove(ctx, userID)
}
