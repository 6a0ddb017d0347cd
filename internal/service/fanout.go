package service

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/socialhub/internal/metrics"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
)

type outcome[T any] struct {
	index int
	value T
	err   error
	done  bool
}

// fanOut runs call once per account, all at the same time, and waits until every
// call has returned or the round deadline passes. Results keep the order of accounts;
// calls still running at the deadline come back with done == false.
func fanOut[T any](
	ctx context.Context,
	operation string,
	timeout time.Duration,
	accounts []*models.SocialAccount,
	call func(ctx context.Context, account *models.SocialAccount) (T, error)) []outcome[T] {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	results := make([]outcome[T], len(accounts))
	if len(accounts) == 0 {
		return results
	}

	roundCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered so stragglers never block after the collector has left
	ch := make(chan outcome[T], len(accounts))
	for i, account := range accounts {
		go func(i int, account *models.SocialAccount) {
			v, err := call(roundCtx, account)
			ch <- outcome[T]{index: i, value: v, err: err, done: true}
		}(i, account)
	}

	for received := 0; received < len(accounts); received++ {
		select {
		case o := <-ch:
			results[o.index] = o
		case <-roundCtx.Done():
			return results
		}
	}
	return results
}

// failure turns an unsuccessful outcome into the record returned to callers.
func failure[T any](operation string, account *models.SocialAccount, o outcome[T]) platform.PlatformFailure {
	f := platform.PlatformFailure{Platform: account.Platform}
	outcomeLabel := metrics.OutcomeError

	switch {
	case !o.done || errors.Is(o.err, context.DeadlineExceeded):
		f.Reason = "timed out"
		f.TimedOut = true
		outcomeLabel = metrics.OutcomeTimeout
	case errors.Is(o.err, platform.ErrUnauthorized):
		f.Reason = o.err.Error()
		outcomeLabel = metrics.OutcomeUnauthorized
	default:
		f.Reason = o.err.Error()
	}

	metrics.AggregationFailures.WithLabelValues(operation, account.Platform.String(), outcomeLabel).Inc()
	return f
}

// withCredentials runs op with the account's tokens. When the provider rejects the
// access token it refreshes once and retries once with the new tokens.
func withCredentials[T any](
	ctx context.Context,
	creds CredentialService,
	account *models.SocialAccount,
	op func(ctx context.Context, c platform.Credentials) (T, error)) (T, error) {
	var zero T

	c, err := creds.Credentials(account)
	if err != nil {
		return zero, err
	}

	v, err := op(ctx, c)
	if !errors.Is(err, platform.ErrUnauthorized) {
		return v, err
	}

	refreshed, rerr := creds.Refresh(ctx, account)
	if rerr != nil {
		return zero, rerr
	}
	c, err = creds.Credentials(refreshed)
	if err != nil {
		return zero, err
	}
	return op(ctx, c)
}
