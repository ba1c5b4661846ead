package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "role"
)

// Subject returns the token subject set by RequireRole, if any.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// Role returns the token role set by RequireRole, if any.
func Role(ctx context.Context) string {
	r, _ := ctx.Value(roleKey).(string)
	return r
}

// RequireRole accepts HMAC-signed bearer tokens whose "role" claim is one of
// roles. An empty secret turns the gate off.
func RequireRole(secret []byte, roles []string, log *zap.Logger) mux.MiddlewareFunc {
	if len(secret) == 0 {
		log.Warn("JWT_SECRET not set, mutating routes are unauthenticated")
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrInvalidKeyType
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "invalid claims")
				return
			}
			role, _ := claims["role"].(string)
			if !slices.Contains(roles, role) {
				log.Info("role denied", zap.String("role", role), zap.String("path", r.URL.Path))
				respondWithError(w, http.StatusForbidden, "role not permitted")
				return
			}
			subject, _ := claims.GetSubject()
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			ctx = context.WithValue(ctx, roleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
