package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/savegress/fleetsense/internal/config"
)

// AuthMiddleware accepts either a Bearer JWT signed with the configured
// secret or a static key in the X-API-Key header. With no secret and no
// keys configured the check is disabled, which is the development default.
func AuthMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		keys[key] = true
	}
	open := cfg.JWTSecret == "" && len(keys) == 0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get("X-API-Key"); key != "" {
				if keys[key] {
					next.ServeHTTP(w, r)
					return
				}
				respondError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			if cfg.JWTSecret == "" {
				respondError(w, http.StatusUnauthorized, "Bearer tokens not accepted")
				return
			}
			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
