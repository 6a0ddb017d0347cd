package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/platform"
)

func TestCredentialService_RefreshSwapsTokens(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(rt string) (platform.TokenPair, error) {
			assert.Equal(t, "refresh-0", rt)
			return platform.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 86400}, nil
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")

	refreshed, err := svc.Refresh(context.Background(), account)
	require.NoError(t, err)

	creds, err := svc.Credentials(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
	assert.NotNil(t, refreshed.TokenExpiresAt)
}

func TestCredentialService_RefreshKeepsUnrotatedRefreshToken(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	client := &fakeClient{
		name: models.PlatformFacebook,
		refresh: func(string) (platform.TokenPair, error) {
			return platform.TokenPair{AccessToken: "access-1"}, nil
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformFacebook, "access-0", "refresh-0")

	refreshed, err := svc.Refresh(context.Background(), account)
	require.NoError(t, err)

	creds, err := svc.Credentials(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, "refresh-0", creds.RefreshToken)
}

func TestCredentialService_ConcurrentRefreshKeepsTokensPaired(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()

	var (
		mu sync.Mutex
		n  int
	)
	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			mu.Lock()
			n++
			i := n
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			return platform.TokenPair{AccessToken: fmt.Sprintf("access-%d", i), RefreshToken: fmt.Sprintf("refresh-%d", i)}, nil
		},
	}
	registry := platform.NewRegistryWith(client)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")

	// two services stand in for two processes that do not share a singleflight group
	services := []CredentialService{
		NewCredentialService(registry, accounts, sealer),
		NewCredentialService(registry, accounts, sealer),
	}

	var wg sync.WaitGroup
	results := make([]*models.SocialAccount, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stale := clone(account)
			refreshed, err := services[i%2].Refresh(context.Background(), stale)
			assert.NoError(t, err)
			results[i] = refreshed
		}(i)
	}
	wg.Wait()

	stored, err := accounts.GetByPlatform(context.Background(), 1, models.PlatformTiktok)
	require.NoError(t, err)
	creds, err := services[0].Credentials(stored)
	require.NoError(t, err)

	assert.Equal(t,
		strings.TrimPrefix(creds.AccessToken, "access-"),
		strings.TrimPrefix(creds.RefreshToken, "refresh-"),
		"access and refresh token must come from the same response")
	assert.NotEqual(t, "access-0", creds.AccessToken)

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, stored.AccessToken, r.AccessToken)
	}
}

func TestCredentialService_SharedCallForOverlappingRefreshes(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	release := make(chan struct{})
	client := &fakeClient{
		name: models.PlatformInstagram,
		refresh: func(string) (platform.TokenPair, error) {
			<-release
			return platform.TokenPair{AccessToken: "access-1"}, nil
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformInstagram, "access-0", "refresh-0")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), clone(account))
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return client.refreshCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// late joiners may start a second round, but never one per caller
	assert.Less(t, client.refreshCalls.Load(), int32(4))
}

func TestCredentialService_RejectedRefreshDeactivates(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			return platform.TokenPair{}, &platform.TokenRefreshError{Platform: models.PlatformTiktok, Err: errors.New("invalid_grant")}
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")

	_, err := svc.Refresh(context.Background(), account)

	var refreshErr *platform.TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)
	stored, err := accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestCredentialService_TransientFailureKeepsAccount(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			return platform.TokenPair{}, errors.New("tiktok refresh: status 503")
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")

	_, err := svc.Refresh(context.Background(), account)

	require.Error(t, err)
	stored, err := accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestCredentialService_MissingRefreshTokenDeactivates(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	client := &fakeClient{name: models.PlatformTiktok}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "")

	_, err := svc.Refresh(context.Background(), account)

	var refreshErr *platform.TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, int32(0), client.refreshCalls.Load())
	stored, err := accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestCredentialService_StaleCopyDoesNotReuseRotatedRefreshToken(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	var used sync.Map
	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(rt string) (platform.TokenPair, error) {
			// tiktok revokes a refresh token once it has been exchanged
			if _, dup := used.LoadOrStore(rt, true); dup {
				return platform.TokenPair{}, &platform.TokenRefreshError{Platform: models.PlatformTiktok, Err: errors.New("invalid_grant")}
			}
			return platform.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")
	copyA, copyB := clone(account), clone(account)

	_, err := svc.Refresh(context.Background(), copyA)
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), copyB)
	require.NoError(t, err)
	assert.Equal(t, int32(1), client.refreshCalls.Load())

	stored, err := accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, stored.AccessToken, refreshed.AccessToken)
	creds, err := svc.Credentials(stored)
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
}

func TestCredentialService_RejectionAfterConcurrentRotationKeepsAccount(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	account := accounts.link(t, sealer, 1, models.PlatformTiktok, "access-0", "refresh-0")

	client := &fakeClient{
		name: models.PlatformTiktok,
		refresh: func(string) (platform.TokenPair, error) {
			// another process wins the exchange while this call is in flight
			access, err := sealer.Seal("access-2")
			assert.NoError(t, err)
			refresh, err := sealer.Seal("refresh-2")
			assert.NoError(t, err)
			swapped, err := accounts.SetToken(context.Background(), 1, models.PlatformTiktok, account.AccessToken,
				&models.SocialAccount{AccessToken: access, RefreshToken: refresh})
			assert.NoError(t, err)
			assert.True(t, swapped)
			return platform.TokenPair{}, &platform.TokenRefreshError{Platform: models.PlatformTiktok, Err: errors.New("invalid_grant")}
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)

	refreshed, err := svc.Refresh(context.Background(), clone(account))
	require.NoError(t, err)

	stored, err := accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, stored.AccessToken, refreshed.AccessToken)
	creds, err := svc.Credentials(stored)
	require.NoError(t, err)
	assert.Equal(t, "access-2", creds.AccessToken)
}

func TestCredentialService_CancelledCallerDoesNotFailJoiners(t *testing.T) {
	sealer := newTestSealer(t)
	accounts := newFakeAccounts()
	release := make(chan struct{})
	client := &fakeClient{
		name: models.PlatformInstagram,
		refresh: func(string) (platform.TokenPair, error) {
			<-release
			return platform.TokenPair{AccessToken: "access-1"}, nil
		},
	}
	svc := NewCredentialService(platform.NewRegistryWith(client), accounts, sealer)
	account := accounts.link(t, sealer, 1, models.PlatformInstagram, "access-0", "refresh-0")

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(ctx, clone(account))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return client.refreshCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	joined := make(chan *models.SocialAccount, 1)
	joinErr := make(chan error, 1)
	go func() {
		refreshed, err := svc.Refresh(context.Background(), clone(account))
		joinErr <- err
		joined <- refreshed
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-joinErr)
	refreshed := <-joined
	require.NotNil(t, refreshed)

	creds, err := svc.Credentials(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, int32(1), client.refreshCalls.Load())
}
