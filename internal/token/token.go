package token // package token signs and verifies the self-contained session assertion

import (
    "crypto/rsa"
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// ErrInvalid is returned by Verify for any token that was not produced by
// Sign: malformed input, a bad signature, the wrong algorithm, or an
// expired claim set. Callers treat all of these identically (the bearer is
// not authenticated), so no finer-grained error is exposed.
var ErrInvalid = errors.New("invalid token")

// Claims is the decoded payload of a session assertion. The seller flag is
// the mode the user signed in with, not a persisted authorization fact.
// RegisteredClaims carries the expiry; the original system relied on cookie
// max-age alone, but tokens issued here always embed an exp claim so a
// leaked token dies with the cookie.
type Claims struct {
    UserID string `json:"id"`
    Name   string `json:"name"`
    Seller bool   `json:"seller"`
    jwt.RegisteredClaims
}

// Codec holds the process-wide RSA key pair. It is stateless and safe for
// concurrent use; rotating the keys invalidates every outstanding token,
// which is the only revocation mechanism this bearer model has.
type Codec struct {
    priv *rsa.PrivateKey
    pub  *rsa.PublicKey
    ttl  time.Duration
}

// New builds a codec from already-parsed keys. Tests use this with
// ephemeral key pairs.
func New(priv *rsa.PrivateKey, pub *rsa.PublicKey, ttl time.Duration) *Codec {
    return &Codec{priv: priv, pub: pub, ttl: ttl}
}

// NewFromPEM parses the PEM blocks loaded from configuration and builds a
// codec. Called once at startup so a bad key fails the process immediately.
func NewFromPEM(privPEM, pubPEM string, ttl time.Duration) (*Codec, error) {
    priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privPEM))
    if err != nil {
        return nil, err
    }
    pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pubPEM))
    if err != nil {
        return nil, err
    }
    return New(priv, pub, ttl), nil
}

// Sign serializes the identity triple into an RS256 JWT with iat and exp.
func (c *Codec) Sign(userID, name string, seller bool) (string, error) {
    now := time.Now().UTC()
    claims := Claims{
        UserID: userID,
        Name:   name,
        Seller: seller,
        RegisteredClaims: jwt.RegisteredClaims{
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
        },
    }
    return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.priv)
}

// Verify validates the signature and expiry and returns the claims. It
// never panics on arbitrary input and performs no I/O; it runs on every
// protected request.
func (c *Codec) Verify(raw string) (Claims, error) {
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        // Reject any signing method other than RSA; an attacker must not
        // be able to downgrade to HMAC with the public key as secret.
        if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
            return nil, ErrInvalid
        }
        return c.pub, nil
    })
    if err != nil || !tok.Valid || claims.UserID == "" {
        return Claims{}, ErrInvalid
    }
    return claims, nil
}
