package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/transfer"
)

const (
	tiktokAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokTokenURL     = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokAPIURL       = "https://open.tiktokapis.com"

	tiktokScopes       = "user.info.basic,user.info.profile,user.info.stats,video.list,video.publish,video.upload"
	tiktokUserFields   = "open_id,avatar_url,display_name,username,follower_count,following_count,video_count,likes_count"
	tiktokVideoFields  = "id,title,video_description,create_time,share_url,view_count,like_count,comment_count,share_count"
	tiktokSearchWindow = 29 * 24 * time.Hour
	tiktokDateLayout   = "20060102"
)

const (
	tiktokCodeOK           = "ok"
	tiktokCodeInvalidToken = "access_token_invalid"
	tiktokCodeExpiredToken = "access_token_expired"
	tiktokCodeNotFound     = "video_not_found"
)

type tiktokClient struct {
	cfg          config.Provider
	rest         *restClient
	authorizeURL string
	tokenURL     string
	api          string
}

func NewTiktokClient(cfg config.Provider, opts ...Option) Client {
	o := buildOptions(options{
		authorizeURL: tiktokAuthorizeURL,
		tokenURL:     tiktokTokenURL,
		apiBaseURL:   tiktokAPIURL,
	}, opts)

	return &tiktokClient{
		cfg:          cfg,
		rest:         newRestClient(models.PlatformTiktok, classifyTiktok),
		authorizeURL: o.authorizeURL,
		tokenURL:     o.tokenURL,
		api:          o.apiBaseURL,
	}
}

// classifyTiktok reads the error envelope TikTok attaches to every API response,
// including successful ones, where the code is "ok".
func classifyTiktok(status int, body []byte) error {
	var envelope transfer.TiktokBasicResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	switch envelope.Error.Code {
	case "", tiktokCodeOK:
		return nil
	case tiktokCodeInvalidToken, tiktokCodeExpiredToken:
		return ErrUnauthorized
	case tiktokCodeNotFound:
		return ErrNotFound
	}
	return fmt.Errorf("tiktok error %s: %s", envelope.Error.Code, envelope.Error.Message)
}

func (c *tiktokClient) Name() models.Platform {
	return models.PlatformTiktok
}

// AuthURL is built by hand because TikTok names the client id client_key.
func (c *tiktokClient) AuthURL(state string) string {
	params := url.Values{}
	params.Set("client_key", c.cfg.ClientID)
	params.Set("scope", tiktokScopes)
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("state", state)
	return c.authorizeURL + "?" + params.Encode()
}

func (c *tiktokClient) Authenticate(ctx context.Context, code string) (TokenPair, error) {
	var result transfer.TiktokTokenResponse
	resp, err := c.rest.R(ctx).
		SetFormData(map[string]string{
			"client_key":    c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"code":          code,
			"grant_type":    "authorization_code",
			"redirect_uri":  c.cfg.RedirectURI,
		}).
		SetResult(&result).
		Post(c.tokenURL)
	if err != nil || !resp.IsSuccess() {
		return TokenPair{}, exchangeFailure(models.PlatformTiktok, resp, err)
	}
	if result.ErrorCode != "" || result.AccessToken == "" {
		return TokenPair{}, &AuthExchangeError{
			Platform:   models.PlatformTiktok,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String()),
			Err:        fmt.Errorf("%s: %s", result.ErrorCode, result.ErrorDescription),
		}
	}

	return TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func (c *tiktokClient) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	var result transfer.TiktokTokenResponse
	resp, err := c.rest.R(ctx).
		SetFormData(map[string]string{
			"client_key":    c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(&result).
		Post(c.tokenURL)
	if err := refreshResult(models.PlatformTiktok, resp, err); err != nil {
		return TokenPair{}, err
	}
	if result.ErrorCode != "" || result.AccessToken == "" {
		return TokenPair{}, &TokenRefreshError{
			Platform: models.PlatformTiktok,
			Err:      fmt.Errorf("%s: %s", result.ErrorCode, result.ErrorDescription),
		}
	}

	pair := TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (c *tiktokClient) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	user, err := c.userInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &Profile{
		ID:             user.OpenID,
		Username:       user.Username,
		Name:           user.DisplayName,
		ProfilePicture: user.AvatarURL,
		Followers:      user.FollowerCount,
		Following:      user.FollowingCount,
	}, nil
}

func (c *tiktokClient) userInfo(ctx context.Context, accessToken string) (*transfer.TiktokUser, error) {
	var result transfer.TikTokUserResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("fields", tiktokUserFields).
		SetResult(&result).
		Get(c.api + "/v2/user/info/")
	if err := c.rest.check("user_info", resp, err); err != nil {
		return nil, err
	}
	return &result.Data.User, nil
}

// CreatePost publishes a single video by URL, or a photo post when every media
// item is an image.
func (c *tiktokClient) CreatePost(ctx context.Context, creds Credentials, req models.PublishRequest) (*models.PostRef, error) {
	if len(req.MediaURLs) == 0 {
		return nil, &PublishError{Platform: models.PlatformTiktok, Reason: "tiktok posts need a video or photos"}
	}

	privacy, err := c.privacyLevel(ctx, creds)
	if err != nil {
		return nil, publishFailure(models.PlatformTiktok, err)
	}

	var (
		body     any
		endpoint string
	)
	if isVideoURL(req.MediaURLs[0]) {
		if len(req.MediaURLs) > 1 {
			return nil, &PublishError{Platform: models.PlatformTiktok, Reason: "tiktok accepts one video per post"}
		}
		endpoint = "/v2/post/publish/video/init/"
		body = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 req.Content,
				PrivacyLevel:          privacy,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: req.MediaURLs[0],
			},
		}
	} else {
		endpoint = "/v2/post/publish/content/init/"
		body = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        req.Content,
				Description:  req.Content,
				PrivacyLevel: privacy,
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: req.MediaURLs,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	}

	var result transfer.TikTokUploadResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetBody(body).
		SetResult(&result).
		Post(c.api + endpoint)
	if err := c.rest.check("create_post", resp, err); err != nil {
		return nil, publishFailure(models.PlatformTiktok, err)
	}
	if result.Data.PublishID == "" {
		return nil, &PublishError{Platform: models.PlatformTiktok, Reason: "no publish id returned"}
	}

	ref := &models.PostRef{ID: result.Data.PublishID}
	if creds.Username != "" {
		ref.URL = "https://www.tiktok.com/@" + creds.Username
	}
	return ref, nil
}

// privacyLevel asks TikTok which audiences the creator may post to and prefers public.
func (c *tiktokClient) privacyLevel(ctx context.Context, creds Credentials) (string, error) {
	var info transfer.TiktokCreatorInfoResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetResult(&info).
		Post(c.api + "/v2/post/publish/creator_info/query/")
	if err := c.rest.check("creator_info", resp, err); err != nil {
		return "", err
	}

	levels := info.Data.PrivacyLevelOptions
	for _, level := range levels {
		if level == "PUBLIC_TO_EVERYONE" {
			return level, nil
		}
	}
	if len(levels) > 0 {
		return levels[0], nil
	}
	return "SELF_ONLY", nil
}

func (c *tiktokClient) DeletePost(ctx context.Context, creds Credentials, postID string) error {
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(transfer.TiktokDeleteRequest{VideoID: postID}).
		Post(c.api + "/v2/video/delete/")
	err = c.rest.check("delete_post", resp, err)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *tiktokClient) GetPostAnalytics(ctx context.Context, creds Credentials, postID string) (models.PostAnalytics, error) {
	var query transfer.TiktokVideoQueryRequest
	query.Filters.VideoIDs = []string{postID}

	var result transfer.TiktokVideoListResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("fields", tiktokVideoFields).
		SetBody(query).
		SetResult(&result).
		Post(c.api + "/v2/video/query/")
	if err := c.rest.check("post_analytics", resp, err); err != nil {
		return models.PostAnalytics{}, err
	}
	if len(result.Data.Videos) == 0 {
		return models.PostAnalytics{}, fmt.Errorf("tiktok video %s: %w", postID, ErrNotFound)
	}

	v := result.Data.Videos[0]
	return models.PostAnalytics{
		Impressions: v.ViewCount,
		Reaches:     v.ViewCount,
		Engagements: v.LikeCount + v.CommentCount + v.ShareCount,
		Shares:      v.ShareCount,
	}, nil
}

func (c *tiktokClient) GetAccountAnalytics(ctx context.Context, creds Credentials) (models.AccountAnalytics, error) {
	user, err := c.userInfo(ctx, creds.AccessToken)
	if err != nil {
		return models.AccountAnalytics{}, err
	}

	var videos transfer.TiktokVideoListResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("fields", tiktokVideoFields).
		SetBody(map[string]int{"max_count": 20}).
		SetResult(&videos).
		Post(c.api + "/v2/video/list/")
	if err := c.rest.check("video_list", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	followers := int64Value(user.FollowerCount)
	analytics := models.AccountAnalytics{
		Followers:    followers,
		Following:    int64Value(user.FollowingCount),
		Posts:        user.VideoCount,
		TopPostTypes: map[string]int64{},
		AudienceDemo: map[string]int64{},
	}

	n := int64(len(videos.Data.Videos))
	if n == 0 {
		return analytics, nil
	}

	var interactions, views int64
	for _, v := range videos.Data.Videos {
		interactions += v.LikeCount + v.CommentCount + v.ShareCount
		views += v.ViewCount
	}
	analytics.TopPostTypes["video"] = n
	analytics.AvgEngagement = float64(interactions) / float64(n)
	analytics.ReachRate = ratio(views/n, followers)
	return analytics, nil
}

// SearchPosts runs a keyword query over the last four weeks of public videos.
func (c *tiktokClient) SearchPosts(ctx context.Context, creds Credentials, query string) ([]models.UnifiedPost, error) {
	keyword := strings.TrimSpace(query)
	if keyword == "" {
		return []models.UnifiedPost{}, nil
	}

	now := time.Now().UTC()
	var search transfer.TiktokResearchQueryRequest
	search.Query.And = []transfer.TiktokResearchCondition{{
		Operation:   "IN",
		FieldName:   "keyword",
		FieldValues: []string{keyword},
	}}
	search.StartDate = now.Add(-tiktokSearchWindow).Format(tiktokDateLayout)
	search.EndDate = now.Format(tiktokDateLayout)
	search.MaxCount = 20

	var result transfer.TiktokVideoListResponse
	resp, err := c.rest.R(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("fields", "id,video_description,create_time,username,like_count,comment_count,share_count").
		SetBody(search).
		SetResult(&result).
		Post(c.api + "/v2/research/video/query/")
	if err := c.rest.check("search_posts", resp, err); err != nil {
		return nil, err
	}

	posts := make([]models.UnifiedPost, 0, len(result.Data.Videos))
	for _, v := range result.Data.Videos {
		posts = append(posts, models.UnifiedPost{
			ID:       v.ID,
			Platform: models.PlatformTiktok,
			Author: models.Author{
				Name:       v.Username,
				ID:         v.Username,
				ProfileURL: "https://www.tiktok.com/@" + v.Username,
			},
			Content:   v.VideoDescription,
			CreatedAt: time.Unix(v.CreateTime, 0).UTC(),
			Engagement: models.Engagement{
				Likes:    v.LikeCount,
				Shares:   v.ShareCount,
				Comments: v.CommentCount,
			},
		})
	}
	return posts, nil
}
