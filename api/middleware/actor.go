package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/api/responses"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

// ActorHeader carries the staff member id set by the upstream gateway.
const ActorHeader = "X-Actor-Id"

// RoleResolver looks up the role of an active user.
type RoleResolver interface {
	Role(ctx context.Context, id uuid.UUID) (enums.UserRole, error)
}

// Actor resolves X-Actor-Id into the request context. Requests without the
// header are UNAUTHORIZED.
func Actor(roles RoleResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(ActorHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor header required"))
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor header"))
				return
			}
			role, err := roles.Role(r.Context(), actorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithRole(WithActorID(r.Context(), actorID), string(role))
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
				ctx = logg.WithActorRole(ctx, string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
