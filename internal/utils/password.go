package utils

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the cost the service runs with when the configured
// value is below bcrypt's minimum.
const DefaultBcryptCost = 10

// HashPassword returns a bcrypt hash of the password with a random
// per-user salt.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
