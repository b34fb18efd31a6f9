package middleware

import (
	"errors"
	"net/http"
	"strings"

	"companionlife/pkg/auth"
	"companionlife/pkg/common"

	"go.uber.org/zap"
)

// RoleService may act on any companion.
const RoleService = "service_role"

// Authenticate verifies the bearer token and puts the caller into the request context.
// limiter may be nil.
func Authenticate(verifier auth.Verifier, limiter auth.RateLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "Missing authentication token")
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", getClientIP(r)),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					respondUnauthorized(w, "Token has expired")
				case errors.Is(err, auth.ErrInvalidSignature):
					respondUnauthorized(w, "Invalid token signature")
				default:
					respondUnauthorized(w, "Invalid token")
				}
				return
			}

			if limiter != nil {
				allowed, err := limiter.Allow(r.Context(), user.UserID)
				if err != nil {
					logger.Error("User rate limiter error", zap.Error(err))
					common.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
					return
				}
				if !allowed {
					common.RespondError(w, http.StatusTooManyRequests, common.StandardErrorCodes.TooManyRequests, "User rate limit exceeded")
					return
				}
			}

			logger.Debug("Request authenticated",
				zap.String("user_id", user.UserID),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)

			next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
		})
	}
}

// CanAccessCompanion reports whether the caller may act on companionID.
// Companions are keyed by their owner's user id.
func CanAccessCompanion(user *auth.UserContext, companionID string) bool {
	if user == nil {
		return false
	}
	return user.Role == RoleService || user.UserID == companionID
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return authHeader
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, message)
}
