package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ActorHeader names the caller. Authentication happens upstream; this service
// only records who performed an administrative action.
const ActorHeader = "X-Actor"

// MaxActorLength bounds the header value stored in history rows.
const MaxActorLength = 100

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFromContext returns the actor set by Actor, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorContextKey).(string)
	return actor, ok && actor != ""
}

// ContextWithActor stores actor in ctx.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// Actor copies the X-Actor header into the request context. Requests under
// adminPrefix without an actor are rejected with 401.
func Actor(adminPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if len(actor) > MaxActorLength {
				http.Error(w, "actor header too long", http.StatusBadRequest)
				return
			}
			if actor == "" {
				if strings.HasPrefix(r.URL.Path, adminPrefix) {
					http.Error(w, "actor required", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}
