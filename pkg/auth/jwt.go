// Package auth verifies bearer tokens and carries the caller identity through
// request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Verifier turns a bearer token into a caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (*UserContext, error)
}

// Claims are the JWT claims the API reads. Supabase access tokens carry the
// user id in sub and the role in role.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator requires a secret. An empty issuer skips the issuer check.
func NewJWTValidator(secret, issuer string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	return &JWTValidator{secret: []byte(secret), issuer: issuer}, nil
}

// ValidateToken parses and validates tokenString.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidClaims)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	return claims, nil
}

// Verify implements Verifier.
func (v *JWTValidator) Verify(_ context.Context, token string) (*UserContext, error) {
	claims, err := v.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	role := claims.Role
	if role == "" {
		role = "authenticated"
	}
	return &UserContext{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// IssueToken signs a token for userID. Used by local tooling and tests.
func (v *JWTValidator) IssueToken(userID, email string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// UserContext is the authenticated caller.
type UserContext struct {
	UserID string
	Email  string
	Role   string
}

type contextKey string

const userContextKey contextKey = "user"

// SetUserInContext adds user to ctx.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext extracts the caller.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, errors.New("user not found in context")
	}
	return user, nil
}
