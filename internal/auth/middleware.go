package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/utils"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the authenticated caller, extracted from the platform-issued JWT.
// Token issuance lives in the auth service; this middleware only verifies.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func JWTMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
				return
			}

			tokenString := strings.Replace(authHeader, "Bearer ", "", 1)
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(cfg.JWTSecret), nil
			})

			if err != nil || !token.Valid {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token claims", nil)
				return
			}

			subject, ok := claims[utils.SubjectClaim].(string)
			if !ok || subject == "" {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid subject in token", nil)
				return
			}

			role, _ := claims[utils.RoleClaim].(string)
			if role == "" {
				role = RoleUser
			}

			ctx := context.WithValue(r.Context(), utils.ActorKey, Actor{ID: subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates the admin surface. Must run after JWTMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := FromContext(r.Context())
		if !ok {
			utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
			return
		}
		if !actor.IsAdmin() {
			utils.BuildErrorResponse(w, http.StatusForbidden, "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(utils.ActorKey).(Actor)
	return actor, ok
}
