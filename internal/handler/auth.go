package handler

import (
	"context"   // provides context with cancellation for DB calls
	"errors"    // sentinel error matching
	"log"       // request-scoped diagnostics
	"net/http"  // HTTP status codes and primitives
	"strings"   // string manipulation utilities
	"time"      // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/localmart/identity/internal/config"     // app configuration
	"github.com/localmart/identity/internal/middleware" // session claims access
	"github.com/localmart/identity/internal/queue"      // identity event payloads
	"github.com/localmart/identity/internal/repository" // credential store
	"github.com/localmart/identity/internal/token"      // session token codec
	"github.com/localmart/identity/internal/utils"      // password hashing helpers
)

// AuthHandler bundles dependencies for the password flow and session
// endpoints (signup, login, status, logout).
type AuthHandler struct {
	Cfg     config.Config
	Users   repository.UserStore
	Sellers repository.SellerStore
	Codec   *token.Codec
	Events  EventPublisher
}

func NewAuthHandler(cfg config.Config, users repository.UserStore, sellers repository.SellerStore, codec *token.Codec, events EventPublisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sellers: sellers, Codec: codec, Events: events}
}

// ----- DTOs -----

type signupReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mode     string `json:"mode"` // selling | shopping
}

// Signup: create a password-backed account. No session is issued; the user
// logs in separately.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid body", nil)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	fieldErrors := map[string]string{}
	if req.Name == "" {
		fieldErrors["name"] = "name is required"
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fieldErrors["email"] = "a valid email is required"
	}
	if len(req.Password) < 6 {
		fieldErrors["password"] = "password must be at least 6 characters"
	}
	if len(fieldErrors) > 0 {
		return respondError(c, http.StatusBadRequest, "validation failed", fieldErrors)
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, "create account failed", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, repository.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.Name,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return respondError(c, http.StatusConflict, "email already exists", nil)
		}
		return respondError(c, http.StatusInternalServerError, "create account failed", nil)
	}

	h.publish(queue.IdentityEvent{
		Event:      queue.EventUserRegistered,
		UserID:     u.ID,
		Provider:   "password",
		Email:      u.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return respondOK(c, http.StatusCreated, "account created", echo.Map{"id": u.ID, "name": u.DisplayName, "email": u.Email})
}

// Login: verify the password and issue a session cookie. Accounts created
// via Google or phone verification have no password hash and are rejected
// with 404 before any hash comparison runs.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid body", nil)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return respondError(c, http.StatusBadRequest, "email and password are required", nil)
	}
	if !validIntent(req.Mode) {
		req.Mode = IntentShopping
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "account not found", nil)
		}
		return respondError(c, http.StatusInternalServerError, "login failed", nil)
	}
	if !u.HasPassword() {
		// Federation-only account; password login is categorically rejected.
		return respondError(c, http.StatusNotFound, "account not found", nil)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return respondError(c, http.StatusUnauthorized, "invalid credentials", nil)
	}
	if err := h.Users.TouchLastSignIn(ctx, u.ID); err != nil {
		log.Printf("auth: record sign-in for %s: %v", u.ID, err)
	}

	seller := req.Mode == IntentSelling
	signed, err := h.Codec.Sign(u.ID, u.DisplayName, seller)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, "issue session failed", nil)
	}
	setSessionCookie(c, h.Cfg, signed)
	return respondOK(c, http.StatusOK, "logged in", claimsPayload{ID: u.ID, Name: u.DisplayName, Seller: seller})
}

// Status: validate the current session and return its claims, plus whether
// a seller profile actually exists for the account.
func (h *AuthHandler) Status(c echo.Context) error {
	cl, ok := middleware.CurrentClaims(c)
	if !ok {
		// Reached without the session middleware; treat as unauthorized.
		return respondError(c, http.StatusUnauthorized, "invalid credentials", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hasProfile, err := h.Sellers.ExistsForUser(ctx, cl.UserID)
	if err != nil {
		log.Printf("auth: seller lookup for %s: %v", cl.UserID, err)
		hasProfile = false
	}
	return respondOK(c, http.StatusOK, "session valid", echo.Map{
		"id":               cl.UserID,
		"name":             cl.Name,
		"seller":           cl.Seller,
		"hasSellerProfile": hasProfile,
	})
}

// Logout: clear the session cookie. The bearer token has no server-side
// record, so clearing the cookie is the whole operation.
func (h *AuthHandler) Logout(c echo.Context) error {
	clearSessionCookie(c, h.Cfg)
	return respondOK(c, http.StatusOK, "logged out", nil)
}

// publish forwards an identity event to the broker on a detached goroutine;
// delivery failures are logged and never affect the request.
func (h *AuthHandler) publish(ev queue.IdentityEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		if err := h.Events(context.Background(), ev); err != nil {
			log.Printf("auth: publish %s event: %v", ev.Event, err)
		}
	}()
}
