package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/internal/service"
)

type stubAccounts struct {
	repository.SocialAccountRepository
	expiring []*models.SocialAccount
	userIDs  []int64
	window   time.Duration
}

func (s *stubAccounts) ListByTimeInterval(_ context.Context, initial, final time.Time) ([]*models.SocialAccount, error) {
	s.window = final.Sub(initial)
	return s.expiring, nil
}

func (s *stubAccounts) ListActiveUserIDs(context.Context) ([]int64, error) {
	return s.userIDs, nil
}

type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) Credentials(account *models.SocialAccount) (platform.Credentials, error) {
	args := m.Called(account)
	return args.Get(0).(platform.Credentials), args.Error(1)
}

func (m *MockCredentialService) Refresh(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	args := m.Called(ctx, account)
	refreshed, _ := args.Get(0).(*models.SocialAccount)
	return refreshed, args.Error(1)
}

func TestTokenRefreshJob_RefreshesExpiringAccounts(t *testing.T) {
	ok := &models.SocialAccount{ID: 1, UserID: 1, Platform: models.PlatformTiktok}
	revoked := &models.SocialAccount{ID: 2, UserID: 2, Platform: models.PlatformInstagram}
	accounts := &stubAccounts{expiring: []*models.SocialAccount{ok, revoked}}

	creds := new(MockCredentialService)
	creds.On("Refresh", mock.Anything, ok).Return(ok, nil)
	creds.On("Refresh", mock.Anything, revoked).Return(nil, &platform.TokenRefreshError{Platform: models.PlatformInstagram, Err: errors.New("revoked")})

	job := NewTokenRefreshJob(accounts, creds, 30*time.Minute)

	assert.Equal(t, 1, job.RefreshTokens(context.Background()))
	assert.Equal(t, 30*time.Minute, accounts.window)
	creds.AssertNumberOfCalls(t, "Refresh", 2)
}

type stubContent struct {
	service.ContentService
	mu    sync.Mutex
	users []int64
}

func (s *stubContent) CollectAnalytics(_ context.Context, userID int64) (*service.AnalyticsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	if userID == 2 {
		return nil, errors.New("db down")
	}
	return &service.AnalyticsResult{}, nil
}

func TestAnalyticsJob_CollectsEveryActiveUser(t *testing.T) {
	content := &stubContent{}
	job := NewAnalyticsJob(&stubAccounts{userIDs: []int64{1, 2, 3}}, content)

	job.CollectAll(context.Background())

	assert.ElementsMatch(t, []int64{1, 2, 3}, content.users)
}
