package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatrelay/internal/types"
)

const issuer = "chatrelay"

// sessionClaims is the payload stored inside a session JWT.
type sessionClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenValidator implements Validator on top of HS256-signed session tokens.
// Tokens issued at signin already carry the identity; anonymous tokens (or
// tokens minted before the user record existed) get their identity attached
// through Rebind, which keeps a per-token cache so the claim lookup runs at
// most once per session.
type TokenValidator struct {
	secret []byte
	users  UserLookup

	mu      sync.RWMutex
	rebound map[string]types.Identity
}

func NewTokenValidator(secret []byte, users UserLookup) *TokenValidator {
	return &TokenValidator{
		secret:  secret,
		users:   users,
		rebound: make(map[string]types.Identity),
	}
}

// Issue creates a signed session token carrying the identity.
func (v *TokenValidator) Issue(identity types.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *TokenValidator) Resolve(ctx context.Context, token string) (types.Identity, bool, error) {
	if token == "" {
		return types.Identity{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return types.Identity{}, false, err
	}

	v.mu.RLock()
	identity, cached := v.rebound[token]
	v.mu.RUnlock()
	if cached {
		return identity, true, nil
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid || claims.UserID == "" {
		// A bad or expired token is "unauthenticated", not a server fault.
		return types.Identity{}, false, nil
	}

	return types.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, true, nil
}

func (v *TokenValidator) ResolveClaim(ctx context.Context, userID string) (types.Identity, bool, error) {
	if userID == "" {
		return types.Identity{}, false, nil
	}
	return v.users.LookupIdentity(ctx, userID)
}

func (v *TokenValidator) Rebind(ctx context.Context, token string, identity types.Identity) error {
	if token == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	v.rebound[token] = identity
	v.mu.Unlock()
	return nil
}
