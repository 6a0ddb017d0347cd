package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/socialhub/internal/metrics"
	"github.com/maheshrc27/socialhub/internal/models"
	"golang.org/x/oauth2"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	maxErrorBody       = 512
)

// classifyFunc inspects a provider body and returns ErrUnauthorized, ErrNotFound,
// another error for an in-body failure, or nil.
type classifyFunc func(status int, body []byte) error

// restClient is the HTTP plumbing shared by the provider clients.
type restClient struct {
	platform models.Platform
	http     *resty.Client
	classify classifyFunc
}

func newRestClient(platform models.Platform, classify classifyFunc) *restClient {
	client := resty.New().
		SetTimeout(defaultHTTPTimeout).
		SetHeader("Accept", "application/json")

	return &restClient{
		platform: platform,
		http:     client,
		classify: classify,
	}
}

func (c *restClient) R(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// oauthContext makes golang.org/x/oauth2 use the same transport as the resty client.
func (c *restClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http.GetClient())
}

// check normalizes a provider round trip into this package's errors and records the outcome.
func (c *restClient) check(operation string, resp *resty.Response, err error) error {
	outcome := metrics.OutcomeOK
	defer func() {
		metrics.ProviderCalls.WithLabelValues(c.platform.String(), operation, outcome).Inc()
	}()

	if err != nil {
		outcome = metrics.OutcomeError
		slog.Info("provider request failed", "platform", c.platform, "operation", operation, "error", err)
		return fmt.Errorf("%s %s: %w", c.platform, operation, err)
	}

	var classified error
	if c.classify != nil {
		classified = c.classify(resp.StatusCode(), resp.Body())
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || errors.Is(classified, ErrUnauthorized):
		outcome = metrics.OutcomeUnauthorized
		return fmt.Errorf("%s %s: %w", c.platform, operation, ErrUnauthorized)
	case resp.StatusCode() == http.StatusNotFound || errors.Is(classified, ErrNotFound):
		outcome = metrics.OutcomeNotFound
		return fmt.Errorf("%s %s: %w", c.platform, operation, ErrNotFound)
	case classified != nil:
		outcome = metrics.OutcomeError
		return fmt.Errorf("%s %s: %w", c.platform, operation, classified)
	case !resp.IsSuccess():
		outcome = metrics.OutcomeError
		slog.Info("provider returned non-2xx", "platform", c.platform, "operation", operation, "status", resp.StatusCode())
		return fmt.Errorf("%s %s: unexpected status %d: %s", c.platform, operation, resp.StatusCode(), truncate(resp.String()))
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody]
}

func publishFailure(platform models.Platform, err error) error {
	if err == nil {
		return nil
	}
	return &PublishError{Platform: platform, Reason: err.Error(), Err: err}
}

// refreshResult separates a provider rejecting the refresh token, which is final,
// from transport errors and 5xx responses, which may succeed on a later attempt.
func refreshResult(platform models.Platform, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s refresh: %w", platform, err)
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() >= http.StatusInternalServerError:
		return fmt.Errorf("%s refresh: unexpected status %d", platform, resp.StatusCode())
	}
	return &TokenRefreshError{
		Platform: platform,
		Err:      fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String())),
	}
}

func exchangeFailure(platform models.Platform, resp *resty.Response, err error) error {
	if resp != nil && !resp.IsSuccess() {
		return &AuthExchangeError{Platform: platform, StatusCode: resp.StatusCode(), Body: truncate(resp.String())}
	}
	return &AuthExchangeError{Platform: platform, Err: err}
}

// fromRetrieveError carries the provider's raw status and body into an AuthExchangeError.
func fromRetrieveError(platform models.Platform, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &AuthExchangeError{Platform: platform, StatusCode: re.Response.StatusCode, Body: truncate(string(re.Body)), Err: err}
	}
	return &AuthExchangeError{Platform: platform, Err: err}
}

func int64Value(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
