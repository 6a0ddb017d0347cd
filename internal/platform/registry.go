package platform

import (
	"log/slog"
	"sort"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
)

// Registry maps a platform name to its client. It is read-only after construction.
type Registry struct {
	clients map[models.Platform]Client
}

// NewRegistry builds a client for every provider with credentials configured.
func NewRegistry(cfg config.Config) *Registry {
	r := &Registry{clients: map[models.Platform]Client{}}

	if cfg.Facebook.Configured() {
		r.clients[models.PlatformFacebook] = NewFacebookClient(cfg.Facebook)
	}
	if cfg.Instagram.Configured() {
		r.clients[models.PlatformInstagram] = NewInstagramClient(cfg.Instagram)
	}
	if cfg.Tiktok.Configured() {
		r.clients[models.PlatformTiktok] = NewTiktokClient(cfg.Tiktok)
	}

	slog.Info("platform registry ready", "platforms", r.Platforms())
	return r
}

// NewRegistryWith registers the given clients under their own names.
func NewRegistryWith(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Platform]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Lookup returns UnknownPlatformError for names outside the registry.
func (r *Registry) Lookup(name string) (Client, error) {
	client, ok := r.clients[models.Platform(name)]
	if !ok {
		return nil, &UnknownPlatformError{Platform: name}
	}
	return client, nil
}

// Platforms lists registered platforms in name order.
func (r *Registry) Platforms() []models.Platform {
	names := make([]models.Platform, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
