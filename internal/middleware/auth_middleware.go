package middleware

import (
	"context"
	"net/http"
	"strings"

	"qbsync-server/pkg/jwt"
	"qbsync-server/pkg/response"
)

type contextKey string

const SubjectKey contextKey = "subject"

// AuthMiddleware guards the admin API with a bearer token issued by the auth
// service. The connector's SOAP endpoint is never behind this; it carries its
// own credential exchange.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSubject(r *http.Request) string {
	subject, ok := r.Context().Value(SubjectKey).(string)
	if !ok {
		return ""
	}
	return subject
}
