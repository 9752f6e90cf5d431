// Package auth validates bearer tokens and exposes the caller's identity to handlers.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the caller identity derived from a verified token.
type Claims struct {
	Subject   string
	Role      Role
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing and validation failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// tokenClaims is the JWT body issued by the identity service.
type tokenClaims struct {
	Role   string    `json:"role,omitempty"`
	Scopes scopeList `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// scopeList accepts either a JSON array or an OAuth-style space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = list
	return nil
}

// Parse verifies an HS256 token against cfg and returns the caller's claims.
// Tokens must carry sub, iss and exp.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	var tc tokenClaims
	if _, err := parser.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(tc.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	role, ok := ParseRole(tc.Role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, tc.Role)
	}

	scopes := make(map[string]struct{}, len(tc.Scopes))
	for _, scope := range tc.Scopes {
		if scope != "" {
			scopes[scope] = struct{}{}
		}
	}

	return &Claims{
		Subject:   tc.Subject,
		Role:      role,
		Scopes:    scopes,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// CanRead reports whether the caller may see userID's activity history.
// Students only see their own; counselors and admins see any student's.
func (c *Claims) CanRead(userID string) bool {
	if c == nil {
		return false
	}
	if c.Subject == userID {
		return true
	}
	return c.Role == RoleCounselor || c.Role == RoleAdmin
}
