package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/user"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/random"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
)

type Provider struct {
	Name     string
	Config   oauth2.Config
	Verifier *oidc.IDTokenVerifier
}

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

// MakeProviders discovers the OIDC providers. Providers without a client id
// are skipped.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))

	for _, cfg := range cfgs {
		if cfg.Client == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", cfg.Name, err)
		}

		provs[cfg.Name] = Provider{
			Name: cfg.Name,
			Config: oauth2.Config{
				ClientID:     cfg.Client,
				ClientSecret: cfg.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			Verifier: p.Verifier(&oidc.Config{ClientID: cfg.Client}),
		}
	}

	return provs, nil
}

func HandleOauthLogin(session *scs.SessionManager, provs map[string]Provider) web.Handler {
	return web.Adapt(func(ctx context.Context, r *http.Request) (web.Outcome, error) {
		name := web.Param(r, "provider")
		p, ok := provs[name]
		if !ok {
			return nil, weberr.NotFound(fmt.Errorf("oauth provider %q not configured", name))
		}

		state, err := random.StringSecure(32)
		if err != nil {
			return nil, fmt.Errorf("generating oauth state: %w", err)
		}
		session.Put(ctx, stateKey, state)

		return web.Redirect{Location: p.Config.AuthCodeURL(state), Status: http.StatusTemporaryRedirect}, nil
	})
}

type oidcClaims struct {
	Email    string `json:"email"`
	Verified bool   `json:"email_verified"`
	Name     string `json:"name"`
}

// HandleOauthCallback logs in the owner of a verified provider email,
// creating the account on first login.
func HandleOauthCallback(db *sqlx.DB, session *scs.SessionManager, provs map[string]Provider, redirectURL string) web.Handler {
	return web.Adapt(func(ctx context.Context, r *http.Request) (web.Outcome, error) {
		name := web.Param(r, "provider")
		p, ok := provs[name]
		if !ok {
			return nil, weberr.NotFound(fmt.Errorf("oauth provider %q not configured", name))
		}

		q := r.URL.Query()
		state := session.PopString(ctx, stateKey)
		if state == "" || q.Get("state") != state {
			return nil, weberr.BadRequest(errors.New("oauth state mismatch"))
		}

		tok, err := p.Config.Exchange(ctx, q.Get("code"))
		if err != nil {
			return nil, weberr.NotAuthorized(fmt.Errorf("exchanging oauth code: %w", err))
		}

		raw, ok := tok.Extra("id_token").(string)
		if !ok {
			return nil, weberr.NotAuthorized(errors.New("oauth token carries no id_token"))
		}

		idt, err := p.Verifier.Verify(ctx, raw)
		if err != nil {
			return nil, weberr.NotAuthorized(fmt.Errorf("verifying id_token: %w", err))
		}

		var c oidcClaims
		if err := idt.Claims(&c); err != nil {
			return nil, fmt.Errorf("decoding id_token claims: %w", err)
		}
		if c.Email == "" || !c.Verified {
			return nil, weberr.Forbidden(errors.New("provider email is not verified"))
		}

		u, err := findOrCreate(ctx, db, c)
		if err != nil {
			return nil, err
		}

		if err := Login(ctx, session, u); err != nil {
			return nil, err
		}

		return web.Redirect{Location: redirectURL}, nil
	})
}

func findOrCreate(ctx context.Context, db *sqlx.DB, c oidcClaims) (user.User, error) {
	email := strings.ToLower(c.Email)

	u, err := user.FetchByEmail(ctx, db, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, database.ErrDBNotFound) {
		return user.User{}, err
	}

	now := time.Now().UTC()
	u = user.User{
		ID:        validate.GenerateID(),
		Name:      c.Name,
		Email:     email,
		Role:      claims.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Create(ctx, db, u); err != nil {
		return user.User{}, err
	}
	return u, nil
}
