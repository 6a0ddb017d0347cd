package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/pkg/utils"
)

func newTestSealer(t *testing.T) *utils.TokenSealer {
	t.Helper()
	sealer, err := utils.NewTokenSealer(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)
	return sealer
}

// fakeClient is a scriptable platform.Client. Unset funcs fail the call.
type fakeClient struct {
	name models.Platform

	authenticate     func(code string) (platform.TokenPair, error)
	refresh          func(refreshToken string) (platform.TokenPair, error)
	profile          func(accessToken string) (*platform.Profile, error)
	search           func(ctx context.Context, creds platform.Credentials, query string) ([]models.UnifiedPost, error)
	createPost       func(ctx context.Context, creds platform.Credentials, req models.PublishRequest) (*models.PostRef, error)
	deletePost       func(creds platform.Credentials, postID string) error
	postAnalytics    func(creds platform.Credentials, postID string) (models.PostAnalytics, error)
	accountAnalytics func(ctx context.Context, creds platform.Credentials) (models.AccountAnalytics, error)

	refreshCalls atomic.Int32
}

var errNotScripted = errors.New("not scripted")

func (c *fakeClient) Name() models.Platform { return c.name }

func (c *fakeClient) AuthURL(state string) string {
	return "https://auth.test/" + c.name.String() + "?state=" + state
}

func (c *fakeClient) Authenticate(_ context.Context, code string) (platform.TokenPair, error) {
	if c.authenticate == nil {
		return platform.TokenPair{}, errNotScripted
	}
	return c.authenticate(code)
}

func (c *fakeClient) RefreshAccessToken(_ context.Context, refreshToken string) (platform.TokenPair, error) {
	c.refreshCalls.Add(1)
	if c.refresh == nil {
		return platform.TokenPair{}, errNotScripted
	}
	return c.refresh(refreshToken)
}

func (c *fakeClient) GetProfile(_ context.Context, accessToken string) (*platform.Profile, error) {
	if c.profile == nil {
		return &platform.Profile{ID: c.name.String() + "-id", Username: "acme", Name: "Acme"}, nil
	}
	return c.profile(accessToken)
}

func (c *fakeClient) CreatePost(ctx context.Context, creds platform.Credentials, req models.PublishRequest) (*models.PostRef, error) {
	if c.createPost == nil {
		return nil, errNotScripted
	}
	return c.createPost(ctx, creds, req)
}

func (c *fakeClient) DeletePost(_ context.Context, creds platform.Credentials, postID string) error {
	if c.deletePost == nil {
		return errNotScripted
	}
	return c.deletePost(creds, postID)
}

func (c *fakeClient) GetPostAnalytics(_ context.Context, creds platform.Credentials, postID string) (models.PostAnalytics, error) {
	if c.postAnalytics == nil {
		return models.PostAnalytics{}, errNotScripted
	}
	return c.postAnalytics(creds, postID)
}

func (c *fakeClient) GetAccountAnalytics(ctx context.Context, creds platform.Credentials) (models.AccountAnalytics, error) {
	if c.accountAnalytics == nil {
		return models.AccountAnalytics{}, errNotScripted
	}
	return c.accountAnalytics(ctx, creds)
}

func (c *fakeClient) SearchPosts(ctx context.Context, creds platform.Credentials, query string) ([]models.UnifiedPost, error) {
	if c.search == nil {
		return nil, errNotScripted
	}
	return c.search(ctx, creds, query)
}

// fakeAccounts is an in-memory SocialAccountRepository with the same CAS semantics as the SQL one.
type fakeAccounts struct {
	mu      sync.Mutex
	rows    map[int64]*models.SocialAccount
	nextID  int64
	listErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{rows: map[int64]*models.SocialAccount{}}
}

func (r *fakeAccounts) find(userID int64, p models.Platform) *models.SocialAccount {
	for _, row := range r.rows {
		if row.UserID == userID && row.Platform == p {
			return row
		}
	}
	return nil
}

func clone(sa *models.SocialAccount) *models.SocialAccount {
	c := *sa
	return &c
}

func (r *fakeAccounts) Upsert(_ context.Context, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing := r.find(sa.UserID, sa.Platform); existing != nil {
		sa.ID = existing.ID
		sa.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		sa.ID = r.nextID
		sa.CreatedAt = now
	}
	sa.UpdatedAt = now
	sa.IsActive = true
	r.rows[sa.ID] = clone(sa)
	return nil
}

func (r *fakeAccounts) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		return clone(row), nil
	}
	return nil, nil
}

func (r *fakeAccounts) GetByPlatform(_ context.Context, userID int64, p models.Platform) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row := r.find(userID, p); row != nil {
		return clone(row), nil
	}
	return nil, nil
}

func (r *fakeAccounts) ListActiveByUserID(_ context.Context, userID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.SocialAccount
	for _, row := range r.rows {
		if row.UserID == userID && row.IsActive {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (r *fakeAccounts) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return r.ListActiveByUserID(ctx, userID)
}

func (r *fakeAccounts) ListByTimeInterval(_ context.Context, initial, final time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, row := range r.rows {
		if row.IsActive && row.TokenExpiresAt != nil && row.TokenExpiresAt.Before(final) {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAccounts) ListActiveUserIDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, row := range r.rows {
		if row.IsActive && !seen[row.UserID] {
			seen[row.UserID] = true
			out = append(out, row.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *fakeAccounts) CheckByUserID(_ context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[accountID]
	return ok && row.UserID == userID, nil
}

func (r *fakeAccounts) SetToken(_ context.Context, userID int64, p models.Platform, oldAccessToken string, sa *models.SocialAccount) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.find(userID, p)
	if row == nil || !row.IsActive || row.AccessToken != oldAccessToken {
		return false, nil
	}
	row.AccessToken = sa.AccessToken
	if sa.RefreshToken != "" {
		row.RefreshToken = sa.RefreshToken
	}
	row.TokenExpiresAt = sa.TokenExpiresAt
	row.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeAccounts) Deactivate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		row.IsActive = false
	}
	return nil
}

func (r *fakeAccounts) DeactivateToken(_ context.Context, id int64, accessToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !row.IsActive || row.AccessToken != accessToken {
		return false, nil
	}
	row.IsActive = false
	return true, nil
}

func (r *fakeAccounts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// link stores an active account with sealed tokens.
func (r *fakeAccounts) link(t *testing.T, sealer *utils.TokenSealer, userID int64, p models.Platform, accessToken, refreshToken string) *models.SocialAccount {
	t.Helper()
	access, err := sealer.Seal(accessToken)
	require.NoError(t, err)
	refresh, err := sealer.Seal(refreshToken)
	require.NoError(t, err)

	sa := &models.SocialAccount{
		UserID:       userID,
		Platform:     p,
		AccountID:    p.String() + "-id",
		AccessToken:  access,
		RefreshToken: refresh,
	}
	require.NoError(t, r.Upsert(context.Background(), sa))
	return sa
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	args := m.Called(ctx, ph)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHistoryRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.PostingHistory, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]*models.PostingHistory), args.Error(1)
}

type MockAnalyticsRepository struct {
	mock.Mock
}

func (m *MockAnalyticsRepository) Create(ctx context.Context, snap *models.AnalyticsSnapshot) (int64, error) {
	args := m.Called(ctx, snap)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAnalyticsRepository) ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*models.AnalyticsSnapshot, error) {
	args := m.Called(ctx, accountID, limit)
	return args.Get(0).([]*models.AnalyticsSnapshot), args.Error(1)
}

func (m *MockAnalyticsRepository) LatestByUserID(ctx context.Context, userID int64) ([]*models.AnalyticsSnapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*models.AnalyticsSnapshot), args.Error(1)
}
