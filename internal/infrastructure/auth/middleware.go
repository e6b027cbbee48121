package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/marketplace-tx/internal/models"
)

type contextKey struct{}

// RevocationList reports tokens withdrawn before expiry; redis.Revocations
// satisfies it.
type RevocationList interface {
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware authenticates the bearer token and stores the actor in the
// request context. revoked may be nil.
func AuthMiddleware(jwtService *JWTService, revoked RevocationList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "authorization header missing", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			actor, tokenID, err := jwtService.Validate(parts[1])
			if err != nil {
				slog.Warn("invalid token", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if revoked != nil {
				gone, err := revoked.Revoked(r.Context(), tokenID)
				if err != nil || gone {
					slog.Error("invalid or revoked token", "person_id", actor.ID, "token_id", tokenID, "error", err)
					http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok
}
