package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	facebookAuthorizeURL = "https://www.facebook.com/v18.0/dialog/oauth"
	facebookGraphURL     = "https://graph.facebook.com/v18.0"
	facebookTimeLayout   = "2006-01-02T15:04:05-0700"
)

var facebookScopes = []string{"public_profile", "pages_show_list", "pages_read_engagement", "pages_manage_posts", "read_insights"}

type facebookClient struct {
	cfg   config.Provider
	oauth *oauth2.Config
	rest  *restClient
	graph string
}

func NewFacebookClient(cfg config.Provider, opts ...Option) Client {
	o := buildOptions(options{
		authorizeURL: facebookAuthorizeURL,
		tokenURL:     facebookGraphURL + "/oauth/access_token",
		apiBaseURL:   facebookGraphURL,
	}, opts)

	return &facebookClient{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       facebookScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   o.authorizeURL,
				TokenURL:  o.tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		rest:  newRestClient(models.PlatformFacebook, classifyGraph),
		graph: o.apiBaseURL,
	}
}

func (c *facebookClient) Name() models.Platform {
	return models.PlatformFacebook
}

func (c *facebookClient) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *facebookClient) Authenticate(ctx context.Context, code string) (TokenPair, error) {
	token, err := c.oauth.Exchange(c.rest.oauthContext(ctx), code)
	if err != nil {
		return TokenPair{}, fromRetrieveError(models.PlatformFacebook, err)
	}

	// Facebook has no refresh token; a long-lived access token is re-exchanged for a new one.
	pair := TokenPair{AccessToken: token.AccessToken, RefreshToken: token.AccessToken}
	if !token.Expiry.IsZero() {
		pair.ExpiresIn = int(time.Until(token.Expiry).Seconds())
	}
	return pair, nil
}

func (c *facebookClient) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	var result transfer.FacebookTokenResponse
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"grant_type":        "fb_exchange_token",
			"client_id":         c.cfg.ClientID,
			"client_secret":     c.cfg.ClientSecret,
			"fb_exchange_token": refreshToken,
		}).
		SetResult(&result).
		Get(c.oauth.Endpoint.TokenURL)
	if err := refreshResult(models.PlatformFacebook, resp, err); err != nil {
		return TokenPair{}, err
	}
	if result.AccessToken == "" {
		return TokenPair{}, &TokenRefreshError{Platform: models.PlatformFacebook, Err: errors.New("empty access token")}
	}

	return TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func (c *facebookClient) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var result transfer.FacebookProfile
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,name,followers_count,friends_count,picture",
			"access_token": accessToken,
		}).
		SetResult(&result).
		Get(c.graph + "/me")
	if err := c.rest.check("get_profile", resp, err); err != nil {
		return nil, err
	}

	return &Profile{
		ID:             result.ID,
		Username:       result.Name,
		Name:           result.Name,
		ProfilePicture: result.Picture.Data.URL,
		Followers:      result.FollowersCount,
		Following:      result.FriendsCount,
	}, nil
}

func (c *facebookClient) CreatePost(ctx context.Context, creds Credentials, req models.PublishRequest) (*models.PostRef, error) {
	edge := "/feed"
	form := map[string]string{
		"message":      req.Content,
		"access_token": creds.AccessToken,
	}
	if len(req.MediaURLs) > 0 {
		edge = "/photos"
		form = map[string]string{
			"url":          req.MediaURLs[0],
			"caption":      req.Content,
			"access_token": creds.AccessToken,
		}
	}

	var result transfer.FacebookPostResponse
	resp, err := c.rest.R(ctx).
		SetFormData(form).
		SetResult(&result).
		Post(c.graph + "/" + graphNode(creds) + edge)
	if err := c.rest.check("create_post", resp, err); err != nil {
		return nil, publishFailure(models.PlatformFacebook, err)
	}

	id := result.PostID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return nil, &PublishError{Platform: models.PlatformFacebook, Reason: "no post id returned"}
	}

	return &models.PostRef{ID: id, URL: "https://facebook.com/" + id}, nil
}

func (c *facebookClient) DeletePost(ctx context.Context, creds Credentials, postID string) error {
	var result transfer.FacebookDeleteResponse
	resp, err := c.rest.R(ctx).
		SetQueryParam("access_token", creds.AccessToken).
		SetResult(&result).
		Delete(c.graph + "/" + postID)
	err = c.rest.check("delete_post", resp, err)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("facebook delete_post: post %s was not deleted", postID)
	}
	return nil
}

func (c *facebookClient) GetPostAnalytics(ctx context.Context, creds Credentials, postID string) (models.PostAnalytics, error) {
	var result transfer.FacebookPostInsights
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,shares,insights.metric(post_impressions,post_impressions_unique,post_reactions_by_type_total,post_clicks)",
			"access_token": creds.AccessToken,
		}).
		SetResult(&result).
		Get(c.graph + "/" + postID)
	if err := c.rest.check("post_analytics", resp, err); err != nil {
		return models.PostAnalytics{}, err
	}

	return models.PostAnalytics{
		Impressions: insightValue(result.Insights, "post_impressions"),
		Reaches:     insightValue(result.Insights, "post_impressions_unique"),
		Engagements: insightValue(result.Insights, "post_reactions_by_type_total") + insightValue(result.Insights, "post_clicks"),
		Shares:      result.Shares.Count,
		// Facebook does not report saves.
		Saves: 0,
	}, nil
}

func (c *facebookClient) GetAccountAnalytics(ctx context.Context, creds Credentials) (models.AccountAnalytics, error) {
	var page struct {
		FollowersCount int64 `json:"followers_count"`
		FriendsCount   int64 `json:"friends_count"`
		Posts          struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"posts"`
	}
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"fields":       "followers_count,friends_count,posts.limit(0).summary(true)",
			"access_token": creds.AccessToken,
		}).
		SetResult(&page).
		Get(c.graph + "/" + graphNode(creds))
	if err := c.rest.check("account_profile", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	var insights transfer.GraphInsights
	resp, err = c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"metric":       "page_impressions_unique,page_post_engagements",
			"period":       "day",
			"access_token": creds.AccessToken,
		}).
		SetResult(&insights).
		Get(c.graph + "/" + graphNode(creds) + "/insights")
	if err := c.rest.check("account_insights", resp, err); err != nil {
		return models.AccountAnalytics{}, err
	}

	reach := insightValue(insights, "page_impressions_unique")
	return models.AccountAnalytics{
		Followers:     page.FollowersCount,
		Following:     page.FriendsCount,
		Posts:         page.Posts.Summary.TotalCount,
		AvgEngagement: float64(insightValue(insights, "page_post_engagements")),
		ReachRate:     ratio(reach, page.FollowersCount),
		TopPostTypes:  map[string]int64{},
		AudienceDemo:  map[string]int64{},
	}, nil
}

func (c *facebookClient) SearchPosts(ctx context.Context, creds Credentials, query string) ([]models.UnifiedPost, error) {
	var result transfer.FacebookPostList
	resp, err := c.rest.R(ctx).
		SetQueryParams(map[string]string{
			"q":            query,
			"type":         "post",
			"fields":       "id,message,created_time,from,reactions.summary(total_count),comments.summary(total_count),shares",
			"access_token": creds.AccessToken,
		}).
		SetResult(&result).
		Get(c.graph + "/search")
	if err := c.rest.check("search_posts", resp, err); err != nil {
		return nil, err
	}

	posts := make([]models.UnifiedPost, 0, len(result.Data))
	for _, p := range result.Data {
		createdAt, _ := time.Parse(facebookTimeLayout, p.CreatedTime)
		posts = append(posts, models.UnifiedPost{
			ID:       p.ID,
			Platform: models.PlatformFacebook,
			Author: models.Author{
				Name:       p.From.Name,
				ID:         p.From.ID,
				ProfileURL: "https://facebook.com/" + p.From.ID,
			},
			Content:   p.Message,
			CreatedAt: createdAt,
			Engagement: models.Engagement{
				Likes:    p.Reactions.Summary.TotalCount,
				Shares:   p.Shares.Count,
				Comments: p.Comments.Summary.TotalCount,
			},
		})
	}
	return posts, nil
}

// graphNode is the page or user the account was linked as.
func graphNode(creds Credentials) string {
	if creds.AccountID == "" {
		return "me"
	}
	return creds.AccountID
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
