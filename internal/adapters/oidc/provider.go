package oidc

// Package oidc provides the optional OIDC single sign-on adapter for the dashboard API.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/tensrai/dashboard-api/internal/data/cryptoutil"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/ports"
	"golang.org/x/oauth2"
)

// Provider implements ports.SSOProvider using OIDC/OAuth2.
type Provider struct {
	config   *oauth2.Config
	client   *http.Client
	op       *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is used when a flow does not supply its own callback URL.
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// NewProvider creates a new OIDC provider, fetching the discovery document once.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	switch {
	case cfg.ClientID == "":
		return nil, errors.New("client ID is required")
	case cfg.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case cfg.DiscoveryURL == "":
		return nil, errors.New("discovery URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(strings.TrimSuffix(cfg.DiscoveryURL, "/"), "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(cfg.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		client:   client,
		op:       op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

var _ ports.SSOProvider = (*Provider)(nil)

// Begin builds the authorization URL for a new flow.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	redirect := firstNonEmpty(in.RedirectURL, p.config.RedirectURL)
	if redirect == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := cryptoutil.RandomToken(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := cryptoutil.RandomToken(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("redirect_uri", redirect),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange redeems the authorization code, verifies the ID token and nonce,
// and returns the signed-in identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.client)
	var opts []oauth2.AuthCodeOption
	if in.RedirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", in.RedirectURL))
	}
	tok, err := p.config.Exchange(ctx, in.Code, opts...)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := idTokenFrom(tok)
	if err != nil {
		return domainauth.Identity{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != in.Nonce {
		return domainauth.Identity{}, errors.New("invalid nonce")
	}

	var c claims
	if err := idTok.Claims(&c); err != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if c.Email == "" {
		// Some IdPs only release email through userinfo.
		ui, uiErr := p.op.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		var extra claims
		if err := ui.Claims(&extra); err != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", err)
		}
		c.merge(extra)
	}

	id := c.identity()
	id.ExpiresAt = idTok.Expiry
	if id.Email == "" {
		return domainauth.Identity{}, errors.New("identity provider returned no email")
	}
	return id, nil
}

// claims is the subset of standard OIDC claims the dashboard uses.
type claims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups"`
}

// merge fills empty fields from other.
func (c *claims) merge(other claims) {
	c.Subject = firstNonEmpty(c.Subject, other.Subject)
	c.Email = firstNonEmpty(c.Email, other.Email)
	c.Name = firstNonEmpty(c.Name, other.Name)
	c.PreferredUsername = firstNonEmpty(c.PreferredUsername, other.PreferredUsername)
	if len(c.Groups) == 0 {
		c.Groups = other.Groups
	}
}

func (c claims) identity() domainauth.Identity {
	return domainauth.Identity{
		Subject:     c.Subject,
		Email:       strings.ToLower(strings.TrimSpace(c.Email)),
		DisplayName: firstNonEmpty(c.Name, c.PreferredUsername),
		Groups:      c.Groups,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func idTokenFrom(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
