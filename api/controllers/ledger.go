package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/api/responses"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

// SellerLedger lists the payout ledger of the calling seller.
func SellerLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok || !actor.IsSeller() || actor.SellerID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller context required"))
			return
		}

		events, err := svc.ListForSeller(r.Context(), *actor.SellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger events"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": events})
	}
}
