package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/localmart/identity/internal/config"
    "github.com/localmart/identity/internal/middleware"
    "github.com/localmart/identity/internal/queue"
    "github.com/localmart/identity/internal/token"
)

// Intent values accepted by the login, OAuth and phone flows.  The value
// chosen at sign-in becomes the seller claim inside the session token; it
// is a per-login assertion, not a persisted authorization fact.
const (
    IntentSelling  = "selling"
    IntentShopping = "shopping"
)

// EventPublisher is the hook handlers use to announce identity events to
// the message broker.  It may be nil (events disabled, e.g. in tests).
type EventPublisher func(ctx context.Context, ev queue.IdentityEvent) error

// envelope is the success response body shared by every JSON endpoint.
type envelope struct {
    Success bool        `json:"success"`
    Message string      `json:"message"`
    Data    interface{} `json:"data,omitempty"`
}

// errorBody is the failure response body.  StatusCode mirrors the HTTP
// status so browser clients reading only the JSON see a stable code.
type errorBody struct {
    Success    bool        `json:"success"`
    StatusCode int         `json:"statusCode"`
    Message    string      `json:"message"`
    Errors     interface{} `json:"errors,omitempty"`
}

// claimsPayload is the identity triple echoed back to clients after a
// successful sign-in or session check.
type claimsPayload struct {
    ID     string `json:"id"`
    Name   string `json:"name"`
    Seller bool   `json:"seller"`
}

func payloadFrom(cl token.Claims) claimsPayload {
    return claimsPayload{ID: cl.UserID, Name: cl.Name, Seller: cl.Seller}
}

func respondOK(c echo.Context, status int, message string, data interface{}) error {
    return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondError(c echo.Context, status int, message string, fieldErrors interface{}) error {
    return c.JSON(status, errorBody{Success: false, StatusCode: status, Message: message, Errors: fieldErrors})
}

func validIntent(s string) bool { return s == IntentSelling || s == IntentShopping }

// setSessionCookie stores the signed assertion as the httpOnly session
// cookie.  Production cookies are Secure, domain-scoped and SameSite=None
// so the cookie survives the cross-subdomain hop between frontend and API;
// development uses Lax on localhost.
func setSessionCookie(c echo.Context, cfg config.Config, signed string) {
    cookie := &http.Cookie{
        Name:     middleware.SessionCookieName,
        Value:    signed,
        Path:     "/",
        MaxAge:   int(cfg.SessionTTL.Seconds()),
        HttpOnly: true,
    }
    if cfg.IsProd() {
        cookie.Secure = true
        cookie.SameSite = http.SameSiteNoneMode
        cookie.Domain = cfg.CookieDomain
    } else {
        cookie.SameSite = http.SameSiteLaxMode
    }
    c.SetCookie(cookie)
}

// clearSessionCookie expires the session cookie.  The token itself stays
// valid until its exp claim passes; there is no server-side revocation.
func clearSessionCookie(c echo.Context, cfg config.Config) {
    cookie := &http.Cookie{
        Name:     middleware.SessionCookieName,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        HttpOnly: true,
    }
    if cfg.IsProd() {
        cookie.Secure = true
        cookie.SameSite = http.SameSiteNoneMode
        cookie.Domain = cfg.CookieDomain
    } else {
        cookie.SameSite = http.SameSiteLaxMode
    }
    c.SetCookie(cookie)
}
