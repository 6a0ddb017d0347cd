package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	instagramAuthorizeURL = "https://www.instagram.com/oauth/authorize"
	instagramTokenURL     = "https://api.instagram.com/oauth/access_token"
	instagramGraphURL     = "https://graph.instagram.com"
	instagramAPIVersion   = "/v21.0"

	containerPollInterval = 3 * time.Second
	containerPollAttempts = 20
)

var instagramScopes = []string{
	"instagram_business_basic",
	"instagram_business_content_publish",
	"instagram_business_manage_insights",
}

type instagramClient struct {
	cfg   config.Provider
	oauth *oauth2.Config
	rest  *restClient
	graph string
}

func NewInstagramClient(cfg config.Provider, opts ...Option) Client {
	o := buildOptions(options{
		authorizeURL: instagramAuthorizeURL,
		tokenURL:     instagramTokenURL,
		apiBaseURL:   instagramGraphURL,
	}, opts)

	return &instagramClient{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       instagramScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   o.authorizeURL,
				TokenURL:  o.tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		rest:  newRestClient(models.PlatformInstagram, classifyGraph),
		graph: o.apiBaseURL,
	}
}

func (c *instagramClient) Name() models.Platform {
	return models.PlatformInstagram
}

func (c *instagramClient) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Authenticate trades the code for a short-lived token and immediately upgrades it
// to a long-lived one. The long-lived token doubles as the refresh token.
func (c *instagramClient) Authenticate(ctx context.Context, code string) (TokenPair, error) {
	short, err := c.oauth.Exchange(c.rest.oauthContext(ctx), code)
	if err != nil {
		return TokenPair{}, fromRetrieveError(models.PlatformInstagram, err)
	}

	var long transfer.InstagramLongLivedToken
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "ig_exchange_token",
			"client_secret": c.cfg.ClientSecret,
			"access_token":  short.AccessToken,
		}).
		SetResult(&long).
		Get(c.graph + "/access_token")
	if err != nil || !resp.IsSuccess() || long.AccessToken == "" {
		slog.Info("instagram long-lived token exchange failed", "error", err)
		return TokenPair{}, exchangeFailure(models.PlatformInstagram, resp, err)
	}

	return TokenPair{
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
		ExpiresIn:    long.ExpiresIn,
	}, nil
}

func (c *instagramClient) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	var result transfer.InstagramLongLivedToken
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"grant_type":   "ig_refresh_token",
			"access_token": refreshToken,
		}).
		SetResult(&result).
		Get(c.graph + "/refresh_access_token")
	if err := refreshResult(models.PlatformInstagram, resp, err); err != nil {
		return TokenPair{}, err
	}
	if result.AccessToken == "" {
		return TokenPair{}, &TokenRefreshError{Platform: models.PlatformInstagram, Err: errors.New("empty access token")}
	}

	return TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func (c *instagramClient) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var result transfer.InstagramUserInfo
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,username,name,profile_picture_url,followers_count,follows_count,media_count",
			"access_token": accessToken,
		}).
		SetResult(&result).
		Get(c.api("/me"))
	if err := c.rest.check("get_profile", resp, err); err != nil {
		return nil, err
	}

	return &Profile{
		ID:             result.UserID,
		Username:       result.Username,
		Name:           result.Name,
		ProfilePicture: result.ProfilePicture,
		Followers:      result.FollowersCount,
		Following:      result.FollowsCount,
	}, nil
}

// CreatePost builds a media container (carousel for several items, reel for a
// video) and publishes it.
func (c *instagramClient) CreatePost(ctx context.Context, creds Credentials, req models.PublishRequest) (*models.PostRef, error) {
	if len(req.MediaURLs) == 0 {
		return nil, &PublishError{Platform: models.PlatformInstagram, Reason: "instagram posts need at least one media url"}
	}

	var (
		containerID string
		err         error
	)
	if len(req.MediaURLs) == 1 {
		containerID, err = c.createContainer(ctx, creds, mediaForm(req.MediaURLs[0], map[string]string{"caption": req.Content}))
	} else {
		containerID, err = c.createCarousel(ctx, creds, req)
	}
	if err != nil {
		return nil, publishFailure(models.PlatformInstagram, err)
	}

	if err := c.waitForContainer(ctx, creds, containerID); err != nil {
		return nil, publishFailure(models.PlatformInstagram, err)
	}

	var published transfer.GraphID
	resp, err := c.rest.R(ctx).
		SetFormData(map[string]string{
			"creation_id":  containerID,
			"access_token": creds.AccessToken,
		}).
		SetResult(&published).
		Post(c.api("/" + c.node(creds) + "/media_publish"))
	if err := c.rest.check("media_publish", resp, err); err != nil {
		return nil, publishFailure(models.PlatformInstagram, err)
	}
	if published.ID == "" {
		return nil, &PublishError{Platform: models.PlatformInstagram, Reason: "no media id returned"}
	}

	ref := &models.PostRef{ID: published.ID}
	var link transfer.InstagramPermalink
	resp, err = c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,permalink",
			"access_token": creds.AccessToken,
		}).
		SetResult(&link).
		Get(c.api("/" + published.ID))
	if err := c.rest.check("get_permalink", resp, err); err != nil {
		slog.Info("instagram permalink lookup failed", "media_id", published.ID, "error", err)
	} else {
		ref.URL = link.Permalink
	}
	return ref, nil
}

func (c *instagramClient) createCarousel(ctx context.Context, creds Credentials, req models.PublishRequest) (string, error) {
	children := make([]string, 0, len(req.MediaURLs))
	for _, mediaURL := range req.MediaURLs {
		id, err := c.createContainer(ctx, creds, mediaForm(mediaURL, map[string]string{"is_carousel_item": "true"}))
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return c.createContainer(ctx, creds, map[string]string{
		"media_type": "CAROUSEL",
		"caption":    req.Content,
		"children":   strings.Join(children, ","),
	})
}

func (c *instagramClient) createContainer(ctx context.Context, creds Credentials, form map[string]string) (string, error) {
	form["access_token"] = creds.AccessToken

	var result transfer.GraphID
	resp, err := c.rest.R(ctx).
		SetFormData(form).
		SetResult(&result).
		Post(c.api("/" + c.node(creds) + "/media"))
	if err := c.rest.check("create_container", resp, err); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("no container id returned")
	}
	return result.ID, nil
}

// waitForContainer polls until the container has finished processing. Image
// containers are usually ready on the first read.
func (c *instagramClient) waitForContainer(ctx context.Context, creds Credentials, containerID string) error {
	for attempt := 0; attempt < containerPollAttempts; attempt++ {
		var status transfer.GraphContainerStatus
		resp, err := c.rest.R(ctx).
			SetQueryParams(map[string]string{
				"fields":       "id,status_code",
				"access_token": creds.AccessToken,
			}).
			SetResult(&status).
			Get(c.api("/" + containerID))
		if err := c.rest.check("container_status", resp, err); err != nil {
			return err
		}

		switch status.StatusCode {
		case "", "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container %s is %s", containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containerPollInterval):
		}
	}
	return fmt.Errorf("media container %s not ready", containerID)
}

func (c *instagramClient) DeletePost(ctx context.Context, creds Credentials, postID string) error {
	resp, err := c.rest.R(ctx).
		SetQueryParam("access_token", creds.AccessToken).
		Delete(c.api("/" + postID))
	err = c.rest.check("delete_post", resp, err)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *instagramClient) GetPostAnalytics(ctx context.Context, creds Credentials, postID string) (models.PostAnalytics, error) {
	var insights transfer.GraphInsights
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"metric":       "impressions,reach,total_interactions,shares,saved",
			"access_token": creds.AccessToken,
		}).
		SetResult(&insights).
		Get(c.api("/" + postID + "/insights"))
	if err := c.rest.check("post_analytics", resp, err); err != nil {
		return models.PostAnalytics{}, err
	}

	return models.PostAnalytics{
		Impressions: insightValue(insights, "impressions"),
		Reaches:     insightValue(insights, "reach"),
		Engagements: insightValue(insights, "total_interactions"),
		Shares:      insightValue(insights, "shares"),
		Saves:       insightValue(insights, "saved"),
	}, nil
}

func (c *instagramClient) GetAccountAnalytics(ctx context.Context, creds Credentials) (models.AccountAnalytics, error) {
	var info transfer.InstagramUserInfo
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,followers_count,follows_count,media_count",
			"access_token": creds.AccessToken,
		}).
		SetResult(&info).
		Get(c.api("/" + c.node(creds)))
	if err := c.rest.check("account_profile", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	var media transfer.InstagramMediaList
	resp, err = c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,media_type,like_count,comments_count",
			"limit":        "25",
			"access_token": creds.AccessToken,
		}).
		SetResult(&media).
		Get(c.api("/" + c.node(creds) + "/media"))
	if err := c.rest.check("recent_media", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	var insights transfer.GraphInsights
	resp, err = c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"metric":       "reach",
			"period":       "day",
			"access_token": creds.AccessToken,
		}).
		SetResult(&insights).
		Get(c.api("/" + c.node(creds) + "/insights"))
	if err := c.rest.check("account_insights", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	followers := int64Value(info.FollowersCount)
	analytics := models.AccountAnalytics{
		Followers:    followers,
		Following:    int64Value(info.FollowsCount),
		Posts:        info.MediaCount,
		ReachRate:    ratio(insightValue(insights, "reach"), followers),
		TopPostTypes: map[string]int64{},
		AudienceDemo: c.audience(ctx, creds),
	}

	var interactions int64
	for _, m := range media.Data {
		interactions += m.LikeCount + m.CommentsCount
		analytics.TopPostTypes[strings.ToLower(m.MediaType)]++
	}
	if len(media.Data) > 0 {
		analytics.AvgEngagement = float64(interactions) / float64(len(media.Data))
	}
	return analytics, nil
}

// audience reads follower counts by country. Instagram only reports
// demographics for larger accounts, so a failure leaves the map empty.
func (c *instagramClient) audience(ctx context.Context, creds Credentials) map[string]int64 {
	demo := map[string]int64{}

	var result transfer.GraphDemographics
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"metric":       "follower_demographics",
			"period":       "lifetime",
			"metric_type":  "total_value",
			"breakdown":    "country",
			"access_token": creds.AccessToken,
		}).
		SetResult(&result).
		Get(c.api("/" + c.node(creds) + "/insights"))
	if err := c.rest.check("audience_demographics", resp, err); err != nil {
		slog.Info("instagram demographics unavailable", "error", err)
		return demo
	}

	for _, metric := range result.Data {
		for _, breakdown := range metric.TotalValue.Breakdowns {
			for _, r := range breakdown.Results {
				if len(r.DimensionValues) > 0 {
					demo[r.DimensionValues[0]] += r.Value
				}
			}
		}
	}
	return demo
}

// SearchPosts resolves the query to a hashtag and returns its recent media.
func (c *instagramClient) SearchPosts(ctx context.Context, creds Credentials, query string) ([]models.UnifiedPost, error) {
	tag := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(query), "#"), " ", "")
	if tag == "" {
		return []models.UnifiedPost{}, nil
	}

	var hashtags transfer.InstagramHashtagSearch
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"user_id":      c.node(creds),
			"q":            tag,
			"access_token": creds.AccessToken,
		}).
		SetResult(&hashtags).
		Get(c.api("/ig_hashtag_search"))
	if err := c.rest.check("hashtag_search", resp, err); err != nil {
		return nil, err
	}
	if len(hashtags.Data) == 0 {
		return []models.UnifiedPost{}, nil
	}

	var media transfer.InstagramMediaList
	resp, err = c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"user_id":      c.node(creds),
			"fields":       "id,caption,media_type,permalink,timestamp,username,like_count,comments_count",
			"access_token": creds.AccessToken,
		}).
		SetResult(&media).
		Get(c.api("/" + hashtags.Data[0].ID + "/recent_media"))
	if err := c.rest.check("hashtag_media", resp, err); err != nil {
		return nil, err
	}

	posts := make([]models.UnifiedPost, 0, len(media.Data))
	for _, m := range media.Data {
		createdAt, _ := time.Parse(facebookTimeLayout, m.Timestamp)
		author := models.Author{Name: m.Username, ID: m.Username}
		if m.Username != "" {
			author.ProfileURL = "https://www.instagram.com/" + m.Username
		}
		posts = append(posts, models.UnifiedPost{
			ID:        m.ID,
			Platform:  models.PlatformInstagram,
			Author:    author,
			Content:   m.Caption,
			CreatedAt: createdAt,
			Engagement: models.Engagement{
				Likes:    m.LikeCount,
				Comments: m.CommentsCount,
			},
		})
	}
	return posts, nil
}

func (c *instagramClient) api(p string) string {
	return c.graph + instagramAPIVersion + p
}

func (c *instagramClient) node(creds Credentials) string {
	return graphNode(creds)
}

// mediaForm picks image_url or a reel video_url based on the file extension.
func mediaForm(mediaURL string, extra map[string]string) map[string]string {
	form := map[string]string{}
	for k, v := range extra {
		form[k] = v
	}
	if isVideoURL(mediaURL) {
		form["media_type"] = "REELS"
		if _, carousel := extra["is_carousel_item"]; carousel {
			form["media_type"] = "VIDEO"
		}
		form["video_url"] = mediaURL
	} else {
		form["image_url"] = mediaURL
	}
	return form
}

func isVideoURL(mediaURL string) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if ext == "" {
		return false
	}
	return filetype.GetType(ext).MIME.Type == "video"
}
