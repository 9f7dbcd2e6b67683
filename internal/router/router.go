package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework for routing

	"github.com/localmart/identity/internal/handler"    // handlers implementing the auth flows
	"github.com/localmart/identity/internal/middleware" // session verification middleware
	"github.com/localmart/identity/internal/token"      // token codec used by the session gate
)

// RegisterRoutes registers routes that do not belong to the auth surface.
// Currently it exposes only a health check for load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts every identity endpoint under the /auth prefix.  The
// two provider-invoked endpoints (google/callback, truecaller/callback) and
// the browser-initiated flows carry no middleware; only /auth/status is
// gated by the session middleware, since it is the one endpoint that reads
// an established identity.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g *handler.GoogleHandler, p *handler.PhoneHandler, codec *token.Codec) {
	auth := e.Group("/auth")

	// Password credential flow.
	auth.POST("/signup", a.Signup)
	auth.POST("/login", a.Login)
	auth.GET("/logout", a.Logout)

	// Federated OAuth flow: consent redirect, provider callback, and the
	// URL-token to cookie exchange the frontend performs on landing.
	auth.GET("/google", g.Initiate)
	auth.GET("/google/callback", g.Callback)
	auth.GET("/exchange", g.Exchange)

	// Phone verification: provider-invoked callback plus the browser poll.
	auth.POST("/truecaller/callback", p.Callback)
	auth.GET("/truecaller/status", p.Poll)

	// Session check for an already signed-in browser.
	auth.GET("/status", a.Status, middleware.Session(codec))
}
