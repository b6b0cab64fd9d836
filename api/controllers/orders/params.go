package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-orders/api/validators"
	internalorders "github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

func parseStatus(raw string) (enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]any{"allowed": enums.OrderStatuses()})
	}
	return status, nil
}

func parseWindow(r *http.Request) (*time.Time, *time.Time, string, error) {
	start, err := validators.ParseQueryDate(r, "startDate")
	if err != nil {
		return nil, nil, "", err
	}
	end, err := validators.ParseQueryDate(r, "endDate")
	if err != nil {
		return nil, nil, "", err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, "", pkgerrors.New(pkgerrors.CodeValidation, "endDate must not be before startDate")
	}

	duration := strings.TrimSpace(r.URL.Query().Get("duration"))
	return start, end, duration, nil
}

func (p statusRequest) tracking() internalorders.Tracking {
	return internalorders.Tracking{
		Number:   p.TrackingNumber,
		URL:      p.TrackingURL,
		Provider: p.ShippingProvider,
	}
}
