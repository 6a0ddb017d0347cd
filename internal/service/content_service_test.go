package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/realtime"
	"github.com/maheshrc27/socialhub/pkg/utils"
)

type contentFixture struct {
	svc       ContentService
	accounts  *fakeAccounts
	sealer    *utils.TokenSealer
	history   *MockHistoryRepository
	analytics *MockAnalyticsRepository
	hub       *realtime.Hub
}

func newContentFixture(t *testing.T, timeout time.Duration, clients ...platform.Client) *contentFixture {
	t.Helper()
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	registry := platform.NewRegistryWith(clients...)
	history := new(MockHistoryRepository)
	history.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil)
	analytics := new(MockAnalyticsRepository)
	hub := realtime.NewHub(8)

	svc := NewContentService(registry, accounts, analytics, history,
		NewCredentialService(registry, accounts, sealer), hub, timeout, timeout)

	return &contentFixture{
		svc:       svc,
		accounts:  accounts,
		sealer:    sealer,
		history:   history,
		analytics: analytics,
		hub:       hub,
	}
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func post(id string, at time.Time) models.UnifiedPost {
	return models.UnifiedPost{ID: id, CreatedAt: at, Content: id}
}

func searchReturning(delay time.Duration, posts ...models.UnifiedPost) func(context.Context, platform.Credentials, string) ([]models.UnifiedPost, error) {
	return func(ctx context.Context, _ platform.Credentials, _ string) ([]models.UnifiedPost, error) {
		select {
		case <-time.After(delay):
			return posts, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestFetchMentions_EndToEndWithFacebook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"fb-1","name":"Acme"}`))
	})
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok1", r.URL.Query().Get("access_token"))
		assert.Equal(t, "ACME", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"older","message":"ACME one","created_time":"2024-03-01T09:00:00+0000","from":{"id":"u1","name":"Jo"}},
			{"id":"newer","message":"ACME two","created_time":"2024-03-01T11:00:00+0000","from":{"id":"u2","name":"Al"}}
		]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	facebook := platform.NewFacebookClient(
		config.Provider{ClientID: "app", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
		platform.WithTokenURL(server.URL+"/oauth/access_token"),
		platform.WithAPIBaseURL(server.URL),
	)
	instagram := &fakeClient{name: models.PlatformInstagram}
	tiktok := &fakeClient{name: models.PlatformTiktok}
	f := newContentFixture(t, 5*time.Second, facebook, instagram, tiktok)

	registry := platform.NewRegistryWith(facebook, instagram, tiktok)
	link := NewLinkService(registry, NewMemoryNonceStore(), f.accounts, f.sealer, 10*time.Minute)
	ctx := context.Background()

	authURL, err := link.StartLink(ctx, 7, "facebook")
	require.NoError(t, err)
	_, err = link.CompleteLink(ctx, 7, "facebook", "code", stateOf(t, authURL))
	require.NoError(t, err)

	result, err := f.svc.FetchMentions(ctx, 7, "ACME")
	require.NoError(t, err)

	require.Len(t, result.Posts, 2)
	assert.Equal(t, "newer", result.Posts[0].ID)
	assert.Equal(t, "older", result.Posts[1].ID)
	for _, p := range result.Posts {
		assert.Equal(t, models.PlatformFacebook, p.Platform)
	}
	assert.Empty(t, result.Failures)
	assert.NoError(t, result.Err())
}

func TestFetchMentions_MergeOrderIgnoresCompletionOrder(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, search: searchReturning(40*time.Millisecond,
		post("fb-tie", base), post("fb-old", base.Add(-2*time.Hour)))}
	instagram := &fakeClient{name: models.PlatformInstagram, search: searchReturning(0,
		post("ig-new", base.Add(time.Hour)), post("ig-tie", base))}
	tiktok := &fakeClient{name: models.PlatformTiktok, search: searchReturning(20*time.Millisecond,
		post("tt-tie", base))}
	f := newContentFixture(t, time.Second, facebook, instagram, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformInstagram, "a", "r")

	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	var ids []string
	for _, p := range result.Posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"ig-new", "fb-tie", "ig-tie", "tt-tie", "fb-old"}, ids)
}

func TestFetchMentions_TimeoutIsPartialFailure(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, search: searchReturning(0, post("fb", base))}
	tiktok := &fakeClient{name: models.PlatformTiktok, search: func(ctx context.Context, _ platform.Credentials, _ string) ([]models.UnifiedPost, error) {
		time.Sleep(2 * time.Second)
		return nil, nil
	}}
	f := newContentFixture(t, 100*time.Millisecond, facebook, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "a", "r")

	start := time.Now()
	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "fb", result.Posts[0].ID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.PlatformTiktok, result.Failures[0].Platform)
	assert.True(t, result.Failures[0].TimedOut)

	var partial *platform.PartialAggregationFailure
	assert.ErrorAs(t, result.Err(), &partial)
}

func TestFetchMentions_ProviderErrorDoesNotAbort(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, search: func(context.Context, platform.Credentials, string) ([]models.UnifiedPost, error) {
		return nil, errors.New("graph exploded")
	}}
	instagram := &fakeClient{name: models.PlatformInstagram, search: searchReturning(0, post("ig", base))}
	f := newContentFixture(t, time.Second, facebook, instagram)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformInstagram, "a", "r")

	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	require.Len(t, result.Posts, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.PlatformFacebook, result.Failures[0].Platform)
	assert.Contains(t, result.Failures[0].Reason, "graph exploded")
	assert.False(t, result.Failures[0].TimedOut)
}

func TestFetchMentions_NoLinkedAccounts(t *testing.T) {
	f := newContentFixture(t, time.Second, &fakeClient{name: models.PlatformFacebook})

	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	assert.NotNil(t, result.Posts)
	assert.Empty(t, result.Posts)
	assert.Empty(t, result.Failures)
}

func TestFetchMentions_AccountLoadFailureIsHard(t *testing.T) {
	f := newContentFixture(t, time.Second, &fakeClient{name: models.PlatformFacebook})
	f.accounts.listErr = errors.New("db down")

	_, err := f.svc.FetchMentions(context.Background(), 1, "q")

	assert.ErrorContains(t, err, "db down")
}

func TestFetchMentions_RefreshesOnceOnUnauthorized(t *testing.T) {
	var calls int
	tiktok := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			return platform.TokenPair{AccessToken: "fresh", RefreshToken: "r2"}, nil
		},
		search: func(_ context.Context, creds platform.Credentials, _ string) ([]models.UnifiedPost, error) {
			calls++
			if creds.AccessToken != "fresh" {
				return nil, platform.ErrUnauthorized
			}
			return []models.UnifiedPost{post("tt", base)}, nil
		},
	}
	f := newContentFixture(t, time.Second, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "stale", "r1")

	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	require.Len(t, result.Posts, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(1), tiktok.refreshCalls.Load())

	stored, err := f.accounts.GetByPlatform(context.Background(), 1, models.PlatformTiktok)
	require.NoError(t, err)
	plain, err := f.sealer.Open(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh", plain)
}

func TestFetchMentions_StillUnauthorizedAfterRefresh(t *testing.T) {
	tiktok := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			return platform.TokenPair{AccessToken: "fresh"}, nil
		},
		search: func(context.Context, platform.Credentials, string) ([]models.UnifiedPost, error) {
			return nil, platform.ErrUnauthorized
		},
	}
	f := newContentFixture(t, time.Second, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "stale", "r1")

	result, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, int32(1), tiktok.refreshCalls.Load())
}

func TestFetchMentions_NotifiesNewPosts(t *testing.T) {
	posts := []models.UnifiedPost{post("first", base)}
	facebook := &fakeClient{name: models.PlatformFacebook, search: func(context.Context, platform.Credentials, string) ([]models.UnifiedPost, error) {
		return posts, nil
	}}
	f := newContentFixture(t, time.Second, facebook)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	sub := f.hub.Subscribe(1)

	_, err := f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Len(t, sub.Events(), 0)

	posts = []models.UnifiedPost{post("second", base.Add(time.Minute)), post("first", base)}
	_, err = f.svc.FetchMentions(context.Background(), 1, "q")
	require.NoError(t, err)

	require.Len(t, sub.Events(), 1)
	e := <-sub.Events()
	assert.Equal(t, realtime.EventNewComment, e.Type)
	fresh := e.Data.([]models.UnifiedPost)
	require.Len(t, fresh, 1)
	assert.Equal(t, "second", fresh[0].ID)
}

func TestNotifyNewPosts_MarkersAreBounded(t *testing.T) {
	f := newContentFixture(t, time.Second)
	svc := f.svc.(*contentService)
	svc.seen = expirable.NewLRU[int64, time.Time](2, nil, time.Hour)

	now := time.Now()
	for userID := int64(1); userID <= 5; userID++ {
		svc.notifyNewPosts(userID, []models.UnifiedPost{{ID: "p", CreatedAt: now}})
	}

	assert.Equal(t, 2, svc.seen.Len())
	_, ok := svc.seen.Get(1)
	assert.False(t, ok, "oldest user should have been evicted")
	_, ok = svc.seen.Get(5)
	assert.True(t, ok)
}

func TestPublish_OneResultPerDistinctTarget(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, createPost: func(_ context.Context, creds platform.Credentials, req models.PublishRequest) (*models.PostRef, error) {
		assert.Equal(t, "hello", req.Content)
		return &models.PostRef{ID: "fb-post", URL: "https://facebook.com/fb-post"}, nil
	}}
	instagram := &fakeClient{name: models.PlatformInstagram, createPost: func(context.Context, platform.Credentials, models.PublishRequest) (*models.PostRef, error) {
		return nil, &platform.PublishError{Platform: models.PlatformInstagram, Reason: "media required"}
	}}
	tiktok := &fakeClient{name: models.PlatformTiktok}
	f := newContentFixture(t, time.Second, facebook, instagram, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformInstagram, "a", "r")
	sub := f.hub.Subscribe(1)

	results, err := f.svc.Publish(context.Background(), 1, models.PublishRequest{
		Content:   "hello",
		Platforms: []models.Platform{models.PlatformFacebook, models.PlatformTiktok, models.PlatformFacebook, models.PlatformInstagram},
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, models.PlatformFacebook, results[0].Platform)
	require.NotNil(t, results[0].Post)
	assert.Equal(t, "fb-post", results[0].Post.ID)
	assert.Nil(t, results[0].Error)

	assert.Equal(t, models.PlatformTiktok, results[1].Platform)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, "account not linked", results[1].Error.Reason)
	assert.Nil(t, results[1].Post)

	assert.Equal(t, models.PlatformInstagram, results[2].Platform)
	require.NotNil(t, results[2].Error)
	assert.Equal(t, "media required", results[2].Error.Reason)

	f.history.AssertNumberOfCalls(t, "Create", 3)
	f.history.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(ph *models.PostingHistory) bool {
		return ph.Platform == models.PlatformTiktok && ph.AccountID == 0 && ph.ErrorMessage == "account not linked"
	}))

	require.Len(t, sub.Events(), 1)
	e := <-sub.Events()
	assert.Equal(t, realtime.EventPostCreated, e.Type)
}

func TestPublish_EmptyTargetsMeansEveryLinkedAccount(t *testing.T) {
	ok := func(id string) func(context.Context, platform.Credentials, models.PublishRequest) (*models.PostRef, error) {
		return func(context.Context, platform.Credentials, models.PublishRequest) (*models.PostRef, error) {
			return &models.PostRef{ID: id}, nil
		}
	}
	facebook := &fakeClient{name: models.PlatformFacebook, createPost: ok("fb")}
	tiktok := &fakeClient{name: models.PlatformTiktok, createPost: ok("tt")}
	f := newContentFixture(t, time.Second, facebook, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")

	results, err := f.svc.Publish(context.Background(), 1, models.PublishRequest{Content: "x"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, models.PlatformFacebook, results[0].Platform)
	assert.Equal(t, models.PlatformTiktok, results[1].Platform)
	assert.Equal(t, "tt", results[1].Post.ID)
}

func TestPublish_UnknownTargetIsHardError(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook}
	f := newContentFixture(t, time.Second, facebook)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")

	_, err := f.svc.Publish(context.Background(), 1, models.PublishRequest{
		Content:   "x",
		Platforms: []models.Platform{models.PlatformFacebook, "friendster"},
	})

	var unknown *platform.UnknownPlatformError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "friendster", unknown.Platform)
	f.history.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPublish_TimedOutPlatformStillGetsResult(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, createPost: func(ctx context.Context, _ platform.Credentials, _ models.PublishRequest) (*models.PostRef, error) {
		time.Sleep(2 * time.Second)
		return &models.PostRef{ID: "late"}, nil
	}}
	f := newContentFixture(t, 100*time.Millisecond, facebook)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")

	results, err := f.svc.Publish(context.Background(), 1, models.PublishRequest{Content: "x"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "timed out", results[0].Error.Reason)
}

func TestCollectAnalytics_FailuresProduceNoSnapshot(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, accountAnalytics: func(context.Context, platform.Credentials) (models.AccountAnalytics, error) {
		return models.AccountAnalytics{Followers: 10, TopPostTypes: map[string]int64{"photo": 2}}, nil
	}}
	instagram := &fakeClient{name: models.PlatformInstagram, accountAnalytics: func(context.Context, platform.Credentials) (models.AccountAnalytics, error) {
		return models.AccountAnalytics{}, errors.New("insights unavailable")
	}}
	f := newContentFixture(t, time.Second, facebook, instagram)
	fb := f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.accounts.link(t, f.sealer, 1, models.PlatformInstagram, "a", "r")
	f.analytics.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil)

	result, err := f.svc.CollectAnalytics(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 1)
	snap := result.Snapshots[0]
	assert.Equal(t, fb.ID, snap.AccountID)
	assert.Equal(t, int64(10), snap.Followers)
	assert.NotNil(t, snap.AudienceDemo)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, models.PlatformInstagram, result.Failures[0].Platform)
	f.analytics.AssertNumberOfCalls(t, "Create", 1)
}

func TestCollectAnalytics_StoreFailureCountsAsPlatformFailure(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, accountAnalytics: func(context.Context, platform.Credentials) (models.AccountAnalytics, error) {
		return models.AccountAnalytics{Followers: 10}, nil
	}}
	f := newContentFixture(t, time.Second, facebook)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")
	f.analytics.On("Create", mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	result, err := f.svc.CollectAnalytics(context.Background(), 1)
	require.NoError(t, err)

	assert.Empty(t, result.Snapshots)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Reason, "disk full")
}

func TestDeletePost_NotFoundIsSuccess(t *testing.T) {
	facebook := &fakeClient{name: models.PlatformFacebook, deletePost: func(platform.Credentials, string) error {
		return platform.ErrNotFound
	}}
	f := newContentFixture(t, time.Second, facebook)
	f.accounts.link(t, f.sealer, 1, models.PlatformFacebook, "a", "r")

	assert.NoError(t, f.svc.DeletePost(context.Background(), 1, "facebook", "gone"))
}

func TestDeletePost_RequiresLinkedAccount(t *testing.T) {
	f := newContentFixture(t, time.Second, &fakeClient{name: models.PlatformFacebook})

	err := f.svc.DeletePost(context.Background(), 1, "facebook", "p")

	assert.ErrorIs(t, err, ErrAccountNotLinked)
}

func TestPostAnalytics(t *testing.T) {
	tiktok := &fakeClient{name: models.PlatformTiktok, postAnalytics: func(creds platform.Credentials, postID string) (models.PostAnalytics, error) {
		assert.Equal(t, "v1", postID)
		assert.Equal(t, "a", creds.AccessToken)
		return models.PostAnalytics{Impressions: 100, Shares: 3}, nil
	}}
	f := newContentFixture(t, time.Second, tiktok)
	f.accounts.link(t, f.sealer, 1, models.PlatformTiktok, "a", "r")

	stats, err := f.svc.PostAnalytics(context.Background(), 1, "tiktok", "v1")
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.Impressions)
	assert.Equal(t, int64(0), stats.Saves)
}
