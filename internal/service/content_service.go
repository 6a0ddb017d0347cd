package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/realtime"
	"github.com/maheshrc27/socialhub/internal/repository"
)

const (
	operationMentions  = "mentions"
	operationPublish   = "publish"
	operationAnalytics = "analytics"
)

const (
	seenMarkerSize = 10000
	seenMarkerTTL  = 24 * time.Hour
)

var ErrAccountNotLinked = errors.New("account not linked")

type Broadcaster interface {
	Broadcast(e realtime.Event) int
}

type MentionsResult struct {
	Posts    []models.UnifiedPost       `json:"posts"`
	Failures []platform.PlatformFailure `json:"failures"`
}

// Err reports the platforms that did not contribute, or nil.
func (r *MentionsResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &platform.PartialAggregationFailure{Failures: r.Failures}
}

type AnalyticsResult struct {
	Snapshots []*models.AnalyticsSnapshot `json:"snapshots"`
	Failures  []platform.PlatformFailure  `json:"failures"`
}

func (r *AnalyticsResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &platform.PartialAggregationFailure{Failures: r.Failures}
}

// PlatformPostResult holds either Post or Error, never both.
type PlatformPostResult struct {
	Platform models.Platform        `json:"platform"`
	Post     *models.PostRef        `json:"post,omitempty"`
	Error    *platform.PublishError `json:"error,omitempty"`
}

type ContentService interface {
	FetchMentions(ctx context.Context, userID int64, query string) (*MentionsResult, error)
	Publish(ctx context.Context, userID int64, req models.PublishRequest) ([]PlatformPostResult, error)
	CollectAnalytics(ctx context.Context, userID int64) (*AnalyticsResult, error)
	DeletePost(ctx context.Context, userID int64, platformName, postID string) error
	PostAnalytics(ctx context.Context, userID int64, platformName, postID string) (models.PostAnalytics, error)
}

type contentService struct {
	registry       Registry
	sa             repository.SocialAccountRepository
	analytics      repository.AnalyticsRepository
	history        repository.PostingHistoryRepository
	creds          CredentialService
	broadcaster    Broadcaster
	timeout        time.Duration
	publishTimeout time.Duration

	// newest mention already seen per user; bounded so idle users age out
	seenMu sync.Mutex
	seen   *expirable.LRU[int64, time.Time]
}

func NewContentService(
	registry Registry,
	sa repository.SocialAccountRepository,
	analytics repository.AnalyticsRepository,
	history repository.PostingHistoryRepository,
	creds CredentialService,
	broadcaster Broadcaster,
	timeout time.Duration,
	publishTimeout time.Duration) ContentService {
	return &contentService{
		registry:       registry,
		sa:             sa,
		analytics:      analytics,
		history:        history,
		creds:          creds,
		broadcaster:    broadcaster,
		timeout:        timeout,
		publishTimeout: publishTimeout,
		seen:           expirable.NewLRU[int64, time.Time](seenMarkerSize, nil, seenMarkerTTL),
	}
}

func (s *contentService) client(account *models.SocialAccount) (platform.Client, error) {
	client, err := s.registry.Lookup(account.Platform.String())
	if err != nil {
		slog.Error("linked account on unregistered platform", "account_id", account.ID, "platform", account.Platform)
		return nil, err
	}
	return client, nil
}

func (s *contentService) FetchMentions(ctx context.Context, userID int64, query string) (*MentionsResult, error) {
	accounts, err := s.sa.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load linked accounts: %w", err)
	}

	outcomes := fanOut(ctx, operationMentions, s.timeout, accounts,
		func(ctx context.Context, account *models.SocialAccount) ([]models.UnifiedPost, error) {
			client, err := s.client(account)
			if err != nil {
				return nil, err
			}
			return withCredentials(ctx, s.creds, account, func(ctx context.Context, c platform.Credentials) ([]models.UnifiedPost, error) {
				return client.SearchPosts(ctx, c, query)
			})
		})

	result := &MentionsResult{
		Posts:    []models.UnifiedPost{},
		Failures: []platform.PlatformFailure{},
	}
	for i, o := range outcomes {
		if !o.done || o.err != nil {
			result.Failures = append(result.Failures, failure(operationMentions, accounts[i], o))
			continue
		}
		for _, post := range o.value {
			post.Platform = accounts[i].Platform
			result.Posts = append(result.Posts, post)
		}
	}

	sortPosts(result.Posts)
	s.notifyNewPosts(userID, result.Posts)

	return result, nil
}

// sortPosts orders newest first, ties by platform name.
func sortPosts(posts []models.UnifiedPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].Platform < posts[j].Platform
	})
}

// notifyNewPosts pushes a NEW_COMMENT event with the posts newer than the user's
// previous fetch. The first fetch only sets the mark.
func (s *contentService) notifyNewPosts(userID int64, posts []models.UnifiedPost) {
	if len(posts) == 0 {
		return
	}
	newest := posts[0].CreatedAt

	s.seenMu.Lock()
	mark, ok := s.seen.Get(userID)
	if !ok || newest.After(mark) {
		s.seen.Add(userID, newest)
	}
	s.seenMu.Unlock()

	if !ok || s.broadcaster == nil {
		return
	}

	var fresh []models.UnifiedPost
	for _, p := range posts {
		if !p.CreatedAt.After(mark) {
			break
		}
		fresh = append(fresh, p)
	}
	if len(fresh) > 0 {
		s.broadcaster.Broadcast(realtime.Event{Type: realtime.EventNewComment, UserID: userID, Data: fresh})
	}
}

func (s *contentService) Publish(ctx context.Context, userID int64, req models.PublishRequest) ([]PlatformPostResult, error) {
	accounts, err := s.sa.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load linked accounts: %w", err)
	}

	linked := make(map[models.Platform]*models.SocialAccount, len(accounts))
	for _, a := range accounts {
		linked[a.Platform] = a
	}

	targets := req.Platforms
	if len(targets) == 0 {
		for _, a := range accounts {
			targets = append(targets, a.Platform)
		}
	}

	clients := map[models.Platform]platform.Client{}
	var ordered []models.Platform
	for _, target := range targets {
		if _, dup := clients[target]; dup {
			continue
		}
		client, err := s.registry.Lookup(target.String())
		if err != nil {
			slog.Error("publish targets unknown platform", "user_id", userID, "platform", target)
			return nil, err
		}
		clients[target] = client
		ordered = append(ordered, target)
	}

	var publishing []*models.SocialAccount
	for _, target := range ordered {
		if a, ok := linked[target]; ok {
			publishing = append(publishing, a)
		}
	}

	outcomes := fanOut(ctx, operationPublish, s.publishTimeout, publishing,
		func(ctx context.Context, account *models.SocialAccount) (*models.PostRef, error) {
			client := clients[account.Platform]
			return withCredentials(ctx, s.creds, account, func(ctx context.Context, c platform.Credentials) (*models.PostRef, error) {
				return client.CreatePost(ctx, c, req)
			})
		})
	byPlatform := make(map[models.Platform]outcome[*models.PostRef], len(publishing))
	for i, o := range outcomes {
		byPlatform[publishing[i].Platform] = o
	}

	results := make([]PlatformPostResult, 0, len(ordered))
	for _, target := range ordered {
		result := PlatformPostResult{Platform: target}
		account, ok := linked[target]

		switch {
		case !ok:
			result.Error = &platform.PublishError{Platform: target, Reason: ErrAccountNotLinked.Error(), Err: ErrAccountNotLinked}
		default:
			o := byPlatform[target]
			if o.done && o.err == nil && o.value != nil {
				result.Post = o.value
				break
			}
			if o.done && o.err == nil {
				o.err = errors.New("provider returned no post")
			}
			f := failure(operationPublish, account, o)
			var pubErr *platform.PublishError
			if !f.TimedOut && errors.As(o.err, &pubErr) {
				result.Error = pubErr
			} else {
				result.Error = &platform.PublishError{Platform: target, Reason: f.Reason, Err: o.err}
			}
		}

		s.record(ctx, userID, account, result)
		if result.Post != nil && s.broadcaster != nil {
			s.broadcaster.Broadcast(realtime.Event{Type: realtime.EventPostCreated, UserID: userID, Data: result})
		}
		results = append(results, result)
	}

	return results, nil
}

// record appends the attempt to the posting history. A failed write is logged only.
func (s *contentService) record(ctx context.Context, userID int64, account *models.SocialAccount, result PlatformPostResult) {
	entry := &models.PostingHistory{
		UserID:   userID,
		Platform: result.Platform,
	}
	if account != nil {
		entry.AccountID = account.ID
	}
	if result.Post != nil {
		entry.RemotePostID = result.Post.ID
		entry.PostURL = result.Post.URL
	}
	if result.Error != nil {
		entry.ErrorMessage = result.Error.Reason
	}

	if _, err := s.history.Create(context.WithoutCancel(ctx), entry); err != nil {
		slog.Info("posting history not written", "user_id", userID, "platform", result.Platform, "error", err)
	}
}

func (s *contentService) CollectAnalytics(ctx context.Context, userID int64) (*AnalyticsResult, error) {
	accounts, err := s.sa.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load linked accounts: %w", err)
	}

	outcomes := fanOut(ctx, operationAnalytics, s.timeout, accounts,
		func(ctx context.Context, account *models.SocialAccount) (models.AccountAnalytics, error) {
			client, err := s.client(account)
			if err != nil {
				return models.AccountAnalytics{}, err
			}
			return withCredentials(ctx, s.creds, account, func(ctx context.Context, c platform.Credentials) (models.AccountAnalytics, error) {
				return client.GetAccountAnalytics(ctx, c)
			})
		})

	result := &AnalyticsResult{
		Snapshots: []*models.AnalyticsSnapshot{},
		Failures:  []platform.PlatformFailure{},
	}
	collectedAt := time.Now().UTC()
	for i, o := range outcomes {
		account := accounts[i]
		if !o.done || o.err != nil {
			result.Failures = append(result.Failures, failure(operationAnalytics, account, o))
			continue
		}

		snap := &models.AnalyticsSnapshot{
			AccountID:        account.ID,
			UserID:           userID,
			Platform:         account.Platform,
			CollectedAt:      collectedAt,
			AccountAnalytics: o.value,
		}
		if snap.TopPostTypes == nil {
			snap.TopPostTypes = map[string]int64{}
		}
		if snap.AudienceDemo == nil {
			snap.AudienceDemo = map[string]int64{}
		}

		if _, err := s.analytics.Create(ctx, snap); err != nil {
			o.err = fmt.Errorf("store snapshot: %w", err)
			result.Failures = append(result.Failures, failure(operationAnalytics, account, o))
			continue
		}
		result.Snapshots = append(result.Snapshots, snap)
	}

	return result, nil
}

func (s *contentService) linkedAccount(ctx context.Context, userID int64, platformName string) (platform.Client, *models.SocialAccount, error) {
	client, err := s.registry.Lookup(platformName)
	if err != nil {
		slog.Error("request for unknown platform", "user_id", userID, "platform", platformName)
		return nil, nil, err
	}

	account, err := s.sa.GetByPlatform(ctx, userID, client.Name())
	if err != nil {
		return nil, nil, err
	}
	if account == nil || !account.IsActive {
		return nil, nil, ErrAccountNotLinked
	}
	return client, account, nil
}

// DeletePost treats a post the provider no longer has as deleted.
func (s *contentService) DeletePost(ctx context.Context, userID int64, platformName, postID string) error {
	client, account, err := s.linkedAccount(ctx, userID, platformName)
	if err != nil {
		return err
	}

	_, err = withCredentials(ctx, s.creds, account, func(ctx context.Context, c platform.Credentials) (struct{}, error) {
		return struct{}{}, client.DeletePost(ctx, c, postID)
	})
	if errors.Is(err, platform.ErrNotFound) {
		return nil
	}
	return err
}

func (s *contentService) PostAnalytics(ctx context.Context, userID int64, platformName, postID string) (models.PostAnalytics, error) {
	client, account, err := s.linkedAccount(ctx, userID, platformName)
	if err != nil {
		return models.PostAnalytics{}, err
	}

	return withCredentials(ctx, s.creds, account, func(ctx context.Context, c platform.Credentials) (models.PostAnalytics, error) {
		return client.GetPostAnalytics(ctx, c, postID)
	})
}
