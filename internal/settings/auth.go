package settings

import (
	"context"
	"errors"
	"strings"
	"sync"

	"unichat/internal/client"
	"unichat/internal/store"
	"unichat/internal/types"
)

// Loginer exchanges credentials for an access token. *client.Client
// implements it.
type Loginer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Auth keeps the access token issued by the backend. It is the client's
// token source.
type Auth struct {
	repo store.AuthStore

	mu     sync.Mutex
	cached *types.Auth
}

func NewAuth(repo store.AuthStore) *Auth {
	return &Auth{repo: repo}
}

func (a *Auth) load(ctx context.Context) (*types.Auth, error) {
	if a.cached != nil {
		return a.cached, nil
	}
	auth, err := a.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	a.cached = auth
	return auth, nil
}

// AccessToken returns the saved token or client.ErrNotLoggedIn.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	auth, err := a.load(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(auth.AccessToken) == "" {
		return "", client.ErrNotLoggedIn
	}
	return auth.AccessToken, nil
}

func (a *Auth) User(ctx context.Context) (types.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	auth, err := a.load(ctx)
	if err != nil {
		return types.User{}, err
	}
	return auth.User, nil
}

// Login authenticates against the backend and saves the token.
func (a *Auth) Login(ctx context.Context, loginer Loginer, username, password string) error {
	if loginer == nil {
		return errors.New("login client is required")
	}
	token, err := loginer.Login(ctx, username, password)
	if err != nil {
		return err
	}
	auth := &types.Auth{
		AccessToken: token,
		User:        types.User{Name: strings.TrimSpace(username)},
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.repo.Save(ctx, auth); err != nil {
		return err
	}
	a.cached = auth
	return nil
}

func (a *Auth) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.repo.Clear(ctx); err != nil {
		return err
	}
	a.cached = &types.Auth{}
	return nil
}
