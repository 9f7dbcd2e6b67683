package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time is used for session lifetime values
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The signing keys are PEM blocks passed directly
// through the environment; they are parsed once at startup when the token
// codec is constructed, so a malformed key fails fast rather than on the
// first login.
type Config struct {
    Env         string // application environment (e.g. "dev", "prod")
    Port        string // HTTP port to listen on
    FrontendURL string // origin of the browser SPA; target of all auth redirects

    DBUser string // database username
    DBPass string // database password (optional)
    DBHost string // database host address
    DBPort string // database port number
    DBName string // database name

    JWTPrivateKey string // PEM-encoded RSA private key used to sign session tokens
    JWTPublicKey  string // PEM-encoded RSA public key used to verify session tokens

    GoogleClientID     string // OAuth client id registered with Google
    GoogleClientSecret string // OAuth client secret
    GoogleCallbackURL  string // redirect URI registered for the OAuth callback

    CookieDomain string        // cookie Domain attribute in prod (empty in dev)
    SessionTTL   time.Duration // session cookie + token lifetime
    BcryptCost   int           // bcrypt cost for password hashing
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The session TTL
// defaults to 24 hours in dev and 15 days in prod, matching the cookie
// max-age the handlers set; SESSION_TTL_HOURS overrides both.
func Load() Config {
    cfg := Config{
        Env:         must("APP_ENV"),
        Port:        must("APP_PORT"),
        FrontendURL: must("FRONTEND_URL"),

        DBUser: must("DB_USER"),
        DBPass: os.Getenv("DB_PASS"), // empty allowed
        DBHost: must("DB_HOST"),
        DBPort: must("DB_PORT"),
        DBName: must("DB_NAME"),

        JWTPrivateKey: must("JWT_PRIVATE_KEY"),
        JWTPublicKey:  must("JWT_PUBLIC_KEY"),

        GoogleClientID:     must("GOOGLE_CLIENT_ID"),
        GoogleClientSecret: must("GOOGLE_CLIENT_SECRET"),
        GoogleCallbackURL:  must("GOOGLE_CALLBACK_URL"),

        CookieDomain: os.Getenv("COOKIE_DOMAIN"),
        BcryptCost:   mustInt("BCRYPT_COST"),
    }
    if cfg.Env == "prod" {
        cfg.SessionTTL = 15 * 24 * time.Hour
    } else {
        cfg.SessionTTL = 24 * time.Hour
    }
    if hrs := os.Getenv("SESSION_TTL_HOURS"); hrs != "" {
        n, err := strconv.Atoi(hrs)
        if err != nil || n <= 0 {
            log.Fatalf("invalid int for SESSION_TTL_HOURS: %q", hrs)
        }
        cfg.SessionTTL = time.Duration(n) * time.Hour
    }
    return cfg
}

// IsProd reports whether the application runs with production cookie rules
// (Secure, SameSite=None, domain-scoped).
func (c Config) IsProd() bool { return c.Env == "prod" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
