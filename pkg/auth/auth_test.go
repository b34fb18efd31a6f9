package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companionlife/pkg/clock"
)

func TestJWTValidator_Verify(t *testing.T) {
	now := time.Now()
	validator, err := NewJWTValidator("secret", "companionlife")
	require.NoError(t, err)
	other, err := NewJWTValidator("other-secret", "companionlife")
	require.NoError(t, err)
	foreign, err := NewJWTValidator("secret", "someone-else")
	require.NoError(t, err)

	valid, err := validator.IssueToken("user-1", "u@example.com", time.Hour, now)
	require.NoError(t, err)
	expired, err := validator.IssueToken("user-1", "", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongKey, err := other.IssueToken("user-1", "", time.Hour, now)
	require.NoError(t, err)
	wrongIssuer, err := foreign.IssueToken("user-1", "", time.Hour, now)
	require.NoError(t, err)
	noSubject, err := validator.IssueToken("", "", time.Hour, now)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", valid, nil},
		{"bearer prefix", "Bearer " + valid, nil},
		{"empty", "", ErrMissingToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong key", wrongKey, ErrInvalidSignature},
		{"wrong issuer", wrongIssuer, ErrInvalidClaims},
		{"missing subject", noSubject, ErrInvalidClaims},
		{"garbage", "not.a.jwt", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := validator.Verify(context.Background(), tt.token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", user.UserID)
			assert.Equal(t, "u@example.com", user.Email)
			assert.Equal(t, "authenticated", user.Role)
		})
	}
}

func TestNewJWTValidator_RequiresSecret(t *testing.T) {
	_, err := NewJWTValidator("", "")
	assert.Error(t, err)
}

func TestSupabaseVerifier(t *testing.T) {
	verifier := NewSupabaseVerifierWithLookup(func(token string) (string, string, error) {
		if token == "good" {
			return "3f0e0c2a-user", "s@example.com", nil
		}
		return "", "", errors.New("invalid JWT")
	})

	user, err := verifier.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "3f0e0c2a-user", user.UserID)

	_, err = verifier.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = verifier.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestUserContextRoundTrip(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.Error(t, err)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "user-1"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)
}

func TestSlidingWindowLimiter(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	limiter := NewUserRateLimiter(2, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "user-1")
	assert.False(t, ok, "third call inside the window")

	ok, _ = limiter.Allow(ctx, "user-2")
	assert.True(t, ok, "keys are independent")

	clk.Advance(61 * time.Second)
	ok, _ = limiter.Allow(ctx, "user-1")
	assert.True(t, ok, "window slid past the first calls")
}
