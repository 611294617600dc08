package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthManager hands out bearer tokens per API Directory scope. Each scope gets
// its own client-credentials token source, which caches until expiry.
type AuthManager struct {
	cfg     config.APIDirectoryConfig
	sources map[string]oauth2.TokenSource
	mu      sync.RWMutex
	log     zerolog.Logger
}

func NewAuthManager(cfg config.APIDirectoryConfig) *AuthManager {
	return &AuthManager{
		cfg:     cfg,
		sources: make(map[string]oauth2.TokenSource),
		log:     logger.Get(),
	}
}

func (a *AuthManager) GetToken(ctx context.Context, scope string) (string, error) {
	token, err := a.tokenSource(ctx, scope).Token()
	if err != nil {
		return "", fmt.Errorf("%w: failed to get token for scope %s: %w", pkgerrors.ErrAuthentication, scope, err)
	}
	return token.AccessToken, nil
}

func (a *AuthManager) tokenSource(ctx context.Context, scope string) oauth2.TokenSource {
	a.mu.RLock()
	ts, ok := a.sources[scope]
	a.mu.RUnlock()
	if ok {
		return ts
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double check after acquiring write lock
	if ts, ok := a.sources[scope]; ok {
		return ts
	}

	a.log.Debug().Str("scope", scope).Msg("Creating token source")

	cc := &clientcredentials.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		TokenURL:     a.cfg.TokenURL,
		Scopes:       []string{scope},
	}
	ts = cc.TokenSource(context.WithoutCancel(ctx))
	a.sources[scope] = ts
	return ts
}
