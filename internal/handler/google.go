package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/localmart/identity/internal/config"
	"github.com/localmart/identity/internal/queue"
	"github.com/localmart/identity/internal/repository"
	"github.com/localmart/identity/internal/token"
)

// googleEndpoint is Google's OAuth 2.0 authorization and token endpoint
// pair. Declared here rather than imported so tests can swap the endpoint
// for a local server.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// GoogleHandler implements the redirect-based OAuth flow: initiate,
// callback and token-to-cookie exchange. The flow is split because the
// provider redirect lands on the backend origin while the session cookie
// must be established from the frontend's page; the token rides one
// redirect as a query parameter and is exchanged immediately.
type GoogleHandler struct {
	Cfg        config.Config
	OAuth      *oauth2.Config
	Users      repository.UserStore
	Identities repository.IdentityStore
	Codec      *token.Codec
	Events     EventPublisher
}

func NewGoogleHandler(cfg config.Config, users repository.UserStore, ids repository.IdentityStore, codec *token.Codec, events EventPublisher) *GoogleHandler {
	return &GoogleHandler{
		Cfg: cfg,
		OAuth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: googleEndpoint,
		},
		Users:      users,
		Identities: ids,
		Codec:      codec,
		Events:     events,
	}
}

// frontendRedirect builds the SPA landing URL for this flow. Every failure
// path in the browser-redirect steps funnels here; mid-redirect there is no
// page to render a JSON error on.
func (h *GoogleHandler) frontendRedirect(params url.Values) string {
	return h.Cfg.FrontendURL + "/auth/redirect?" + params.Encode()
}

func (h *GoogleHandler) redirectFailure(c echo.Context, flag, intent string) error {
	v := url.Values{}
	v.Set("success", flag)
	if intent != "" {
		v.Set("type", intent)
	}
	return c.Redirect(http.StatusFound, h.frontendRedirect(v))
}

// Initiate: validate the buyer/seller intent and send the browser to
// Google's consent page with the intent carried in the OAuth state.
func (h *GoogleHandler) Initiate(c echo.Context) error {
	intent := c.QueryParam("type")
	if !validIntent(intent) {
		return h.redirectFailure(c, "false", intent)
	}
	return c.Redirect(http.StatusFound, h.OAuth.AuthCodeURL(intent))
}

// Callback: exchange the authorization code, validate the id_token
// audience, upsert the user and identity link, and bounce the signed
// session token to the frontend as a query parameter.
func (h *GoogleHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if c.QueryParam("error") != "" || code == "" || !validIntent(state) {
		return h.redirectFailure(c, "false", state)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tok, err := h.OAuth.Exchange(ctx, code)
	if err != nil {
		log.Printf("google: code exchange failed: %v", err)
		return h.redirectFailure(c, "false", state)
	}

	sub, email, name, err := h.identityFromToken(tok)
	if errors.Is(err, errWrongAudience) {
		// Token minted for a different client id; distinct from a
		// generic provider failure.
		return h.redirectFailure(c, "invalid", state)
	}
	if err != nil {
		log.Printf("google: id_token parse failed: %v", err)
		return h.redirectFailure(c, "false", state)
	}

	u, err := h.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := h.Users.TouchLastSignIn(ctx, u.ID); err != nil {
			log.Printf("google: record sign-in for %s: %v", u.ID, err)
		}
		if err := h.Identities.Upsert(ctx, "google", sub, u.ID); err != nil {
			log.Printf("google: identity upsert for %s: %v", u.ID, err)
			return h.redirectFailure(c, "false", state)
		}
	case errors.Is(err, repository.ErrNotFound):
		// New account; no password hash, so it can only ever sign in via
		// federation or phone verification.
		u, err = h.Users.CreateWithIdentity(ctx, repository.NewUser{
			Email:       email,
			DisplayName: name,
		}, "google", sub)
		if err != nil {
			log.Printf("google: create user failed: %v", err)
			return h.redirectFailure(c, "false", state)
		}
		h.publish(queue.IdentityEvent{
			Event:      queue.EventUserRegistered,
			UserID:     u.ID,
			Provider:   "google",
			Email:      u.Email,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	default:
		log.Printf("google: user lookup failed: %v", err)
		return h.redirectFailure(c, "false", state)
	}

	signed, err := h.Codec.Sign(u.ID, u.DisplayName, state == IntentSelling)
	if err != nil {
		return h.redirectFailure(c, "false", state)
	}
	v := url.Values{}
	v.Set("success", "true")
	v.Set("token", signed)
	v.Set("type", state)
	return c.Redirect(http.StatusFound, h.frontendRedirect(v))
}

// Exchange: the frontend landing page hands back the URL-borne token and
// receives it as an httpOnly cookie, after which the URL copy is discarded.
func (h *GoogleHandler) Exchange(c echo.Context) error {
	raw := c.QueryParam("token")
	claims, err := h.Codec.Verify(raw)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "invalid credentials", nil)
	}
	setSessionCookie(c, h.Cfg, raw)
	return respondOK(c, http.StatusOK, "session established", payloadFrom(claims))
}

var errWrongAudience = errors.New("id token audience mismatch")

// identityFromToken pulls (subject, email, name) out of the id_token that
// rode along with the access token. The claims are parsed without local
// signature verification: the token arrived over TLS directly from the
// provider's token endpoint, so audience is the check that matters here —
// it rejects tokens minted for another application.
func (h *GoogleHandler) identityFromToken(tok *oauth2.Token) (sub, email, name string, err error) {
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return "", "", "", errors.New("no id_token in token response")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawID, claims); err != nil {
		return "", "", "", err
	}
	aud, _ := claims.GetAudience()
	if len(aud) == 0 || aud[0] != h.Cfg.GoogleClientID {
		return "", "", "", errWrongAudience
	}
	sub, _ = claims["sub"].(string)
	email, _ = claims["email"].(string)
	name, _ = claims["name"].(string)
	if sub == "" || email == "" {
		return "", "", "", errors.New("id_token missing sub or email")
	}
	if name == "" {
		name = email
	}
	return sub, email, name, nil
}

func (h *GoogleHandler) publish(ev queue.IdentityEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		if err := h.Events(context.Background(), ev); err != nil {
			log.Printf("google: publish %s event: %v", ev.Event, err)
		}
	}()
}
