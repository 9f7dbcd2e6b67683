package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/localmart/identity/internal/token"
)

// SessionCookieName is the cookie carrying the signed session assertion.
const SessionCookieName = "accessToken"

// claimsKey is the echo context key the verified claims are stored under.
const claimsKey = "identity"

// Session returns an Echo middleware that gates protected routes.  It
// extracts the session cookie, verifies the assertion with the token codec
// and stores the decoded claims in the request context for downstream
// handlers.  Verification is pure computation against the public key; no
// session store is consulted.
func Session(codec *token.Codec) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            cookie, err := c.Cookie(SessionCookieName)
            if err != nil || cookie.Value == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{
                    "success": false, "statusCode": http.StatusUnauthorized, "message": "token not found",
                })
            }
            claims, err := codec.Verify(cookie.Value)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{
                    "success": false, "statusCode": http.StatusUnauthorized, "message": "invalid credentials",
                })
            }
            c.Set(claimsKey, claims)
            return next(c)
        }
    }
}

// CurrentClaims returns the claims the Session middleware stored for this
// request.  The ok result is false when the middleware did not run, which
// handlers treat as unauthorized rather than assuming a registration bug
// cannot happen.
func CurrentClaims(c echo.Context) (token.Claims, bool) {
    cl, ok := c.Get(claimsKey).(token.Claims)
    return cl, ok
}
