package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = time.Minute

// Auth validates bearer tokens. In test mode tokens are HS256 signed with a
// shared secret; otherwise RS256 keys come from a JWKS endpoint.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth validates RS256 tokens against jwks.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultJWKSCacheTTL,
		now:         time.Now,
	}
}

// NewTestAuth validates HS256 tokens signed with secret.
func NewTestAuth(secret []byte) (*Auth, error) {
	if len(secret) == 0 {
		return nil, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
	}
	return &Auth{
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:        time.Now,
	}, nil
}

// SetKeyCacheTTL changes how long resolved JWKS keys are reused. Zero
// disables the cache.
func (a *Auth) SetKeyCacheTTL(ttl time.Duration) {
	a.keyCacheTTL = ttl
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer validates a raw token and returns its subject.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(token, a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.clock().Add(clockSkew).Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return "", errors.New("token expired")
	case !claims.VerifyNotBefore(now, false):
		return "", errors.New("token not valid yet")
	case !claims.VerifyIssuedAt(now, false):
		return "", errors.New("token used before issued")
	case a.Audience != "" && !claims.VerifyAudience(a.Audience, false):
		return "", errors.New("invalid audience")
	case a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false):
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

func (a *Auth) keyFor(t *jwt.Token) (any, error) {
	if a.TestMode {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.TestSecret, nil
	}
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := t.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.clock().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(t)
	if err != nil {
		return nil, err
	}
	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.clock().Add(a.keyCacheTTL)})
	}
	return key, nil
}
