package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated caller seeded by Auth.
func ActorFromContext(ctx context.Context) (types.Actor, bool) {
	if ctx == nil {
		return types.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(types.Actor)
	if !ok || actor.UserID == uuid.Nil {
		return types.Actor{}, false
	}
	return actor, true
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Role
	}
	return ""
}

func SellerIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.SellerID != nil {
		return actor.SellerID.String()
	}
	return ""
}

// WithActor injects the caller into the context.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
