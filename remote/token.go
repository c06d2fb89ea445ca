package remote

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DevToken signs an HS256 token accepted by a board service running in
// test auth mode.
func DevToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("dev secret must be set")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
