// Package oidc verifies URL-form identifiers against OpenID Connect
// providers. The identifier's origin is the issuer; the verified
// identifier is the issuer URL joined with the ID token subject.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/cache"
	"github.com/gotosleep/authlogic-openid/internal/logger"
	"github.com/gotosleep/authlogic-openid/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultName       = "oidc"
	defaultPendingTTL = 10 * time.Minute
	discoveryTTL      = time.Hour
	pendingPrefix     = "oidc:pending:"
)

type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	StateSecret  []byte
	PendingTTL   time.Duration
	HTTPClient   *http.Client
}

// Client implements provider.Client. It returns identity facts only; no
// account or session decisions are made here.
type Client struct {
	cfg       Config
	pending   cache.Cache
	providers *gocache.Cache
	group     singleflight.Group
}

// pendingVerification is kept between Begin and Complete, keyed by the
// state token id. It is consumed exactly once.
type pendingVerification struct {
	Identifier   string `json:"identifier"`
	Issuer       string `json:"issuer"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"`
}

func New(cfg Config, pending cache.Cache) (*Client, error) {
	if cfg.ClientID == "" || len(cfg.StateSecret) == 0 {
		return nil, errors.New("oidc: client id and state secret are required")
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &Client{
		cfg:       cfg,
		pending:   pending,
		providers: gocache.New(discoveryTTL, 10*time.Minute),
	}, nil
}

func (c *Client) Name() string {
	return c.cfg.Name
}

// Discover fetches (or reuses) the issuer's discovery document.
func (c *Client) Discover(ctx context.Context, identifier string) error {
	issuer, err := issuerOf(identifier)
	if err != nil {
		return err
	}
	_, err = c.provider(ctx, issuer)
	return err
}

func (c *Client) Begin(ctx context.Context, req provider.BeginRequest) (*provider.Redirect, error) {
	issuer, err := issuerOf(req.Identifier)
	if err != nil {
		return nil, err
	}
	p, err := c.provider(ctx, issuer)
	if err != nil {
		return nil, err
	}

	id, err := utils.RandomString(24)
	if err != nil {
		return nil, err
	}
	nonce, err := utils.RandomString(24)
	if err != nil {
		return nil, err
	}
	verifier, challenge, err := newPKCE()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(pendingVerification{
		Identifier:   req.Identifier,
		Issuer:       issuer,
		Nonce:        nonce,
		CodeVerifier: verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc: marshal pending verification: %w", err)
	}
	if err := c.pending.Set(ctx, pendingPrefix+id, data, c.cfg.PendingTTL); err != nil {
		return nil, fmt.Errorf("oidc: store pending verification: %w", err)
	}

	state, err := c.signState(id, req.ReturnTo)
	if err != nil {
		return nil, err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("login_hint", req.Identifier),
	}
	if claims := claimsRequest(req.RequiredFields, req.OptionalFields); claims != "" {
		opts = append(opts, oauth2.SetAuthURLParam("claims", claims))
	}
	if strings.EqualFold(req.Method, http.MethodPost) {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", "form_post"))
	}

	conf := c.oauthConfig(p, req.ReturnTo, req.RequiredFields, req.OptionalFields)

	logger.From(ctx).Debug("oidc verification started",
		logger.Component("provider.oidc"),
		logger.Identifier(req.Identifier),
		logger.String("issuer", issuer),
	)

	return &provider.Redirect{
		URL:    conf.AuthCodeURL(state, opts...),
		Method: http.MethodGet,
	}, nil
}

func (c *Client) Complete(ctx context.Context, cb provider.Callback) (*provider.Outcome, error) {
	log := logger.From(ctx).With(logger.Component("provider.oidc"))

	st, err := c.parseState(cb.Params.Get("state"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedCallback, err)
	}

	raw, err := c.pending.Take(ctx, pendingPrefix+st.ID)
	if errors.Is(err, cache.ErrNotFound) {
		return provider.Failed("verification request expired or was already used"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("oidc: load pending verification: %w", err)
	}
	var pv pendingVerification
	if err := json.Unmarshal(raw, &pv); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedCallback, err)
	}

	if e := cb.Params.Get("error"); e != "" {
		log.Warn("oidc provider returned error",
			logger.String("error", e),
			logger.String("desc", cb.Params.Get("error_description")),
		)
		return provider.Failed(failureMessage(e, cb.Params.Get("error_description"))), nil
	}

	code := cb.Params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", provider.ErrMalformedCallback)
	}

	p, err := c.provider(ctx, pv.Issuer)
	if err != nil {
		log.Error("oidc provider unavailable", logger.Err(err))
		return provider.Failed("identity provider is unavailable"), nil
	}

	conf := c.oauthConfig(p, st.ReturnTo, nil, nil)
	token, err := conf.Exchange(
		c.clientContext(ctx),
		code,
		oauth2.SetAuthURLParam("code_verifier", pv.CodeVerifier),
	)
	if err != nil {
		log.Error("oidc token exchange failed", logger.Err(err))
		return provider.Failed("identity provider rejected the verification"), nil
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return provider.Failed("identity provider did not return an id_token"), nil
	}

	idToken, err := p.Verifier(&oidc.Config{ClientID: c.cfg.ClientID}).Verify(c.clientContext(ctx), rawIDToken)
	if err != nil {
		log.Error("oidc id_token verification failed", logger.Err(err))
		return provider.Failed("identity provider response could not be verified"), nil
	}
	if idToken.Nonce != pv.Nonce {
		return provider.Failed("identity provider response could not be verified"), nil
	}

	var cl idClaims
	if err := idToken.Claims(&cl); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedCallback, err)
	}
	if cl.Subject == "" {
		return provider.Failed("identity provider did not return a subject"), nil
	}

	verified := identityURL(pv.Issuer, cl.Subject)
	log.Info("oidc verified",
		logger.String("issuer", idToken.Issuer),
		logger.Identifier(verified),
		logger.Bool("identifier_changed", verified != pv.Identifier),
	)

	return provider.Verified(verified, cl.attributes()), nil
}

func (c *Client) provider(ctx context.Context, issuer string) (*oidc.Provider, error) {
	if v, ok := c.providers.Get(issuer); ok {
		return v.(*oidc.Provider), nil
	}

	v, err, _ := c.group.Do(issuer, func() (any, error) {
		p, err := oidc.NewProvider(c.clientContext(ctx), issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc: discovery for %s failed: %w", issuer, err)
		}
		c.providers.SetDefault(issuer, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oidc.Provider), nil
}

func (c *Client) oauthConfig(p *oidc.Provider, redirectURL string, required, optional []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     p.Endpoint(),
		Scopes:       scopesFor(required, optional),
	}
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	if c.cfg.HTTPClient == nil {
		return ctx
	}
	ctx = oidc.ClientContext(ctx, c.cfg.HTTPClient)
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// issuerOf returns scheme://host of a canonical identifier.
func issuerOf(identifier string) (string, error) {
	u, err := url.Parse(identifier)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("oidc: %q is not a URL identifier", identifier)
	}
	return u.Scheme + "://" + u.Host, nil
}

func identityURL(issuer, subject string) string {
	return strings.TrimRight(issuer, "/") + "/" + url.PathEscape(subject)
}

func failureMessage(code, desc string) string {
	if desc != "" {
		return desc
	}
	if code == "access_denied" {
		return "cancelled"
	}
	return code
}
