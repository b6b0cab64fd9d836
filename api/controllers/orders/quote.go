package orders

import (
	"net/http"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/api/responses"
	"github.com/angelmondragon/marketplace-orders/api/validators"
	internalorders "github.com/angelmondragon/marketplace-orders/internal/orders"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

type validateCouponRequest struct {
	CouponCode string                         `json:"coupon_code" validate:"required,max=64"`
	Items      []internalorders.LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// ValidateCoupon prices the cart with the coupon applied. Usage is not
// recorded and stock is untouched.
func ValidateCoupon(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload validateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := validators.SanitizeString(payload.CouponCode, 64)
		preview, err := svc.Quote(r.Context(), internalorders.QuoteInput{
			UserID:     actor.UserID,
			Items:      payload.Items,
			CouponCode: &code,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}
