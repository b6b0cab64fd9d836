package errors

// Reason is a stable, machine-readable rejection cause returned alongside a Code.
type Reason string

const (
	ReasonOutOfStock         Reason = "OutOfStock"
	ReasonProductUnavailable Reason = "ProductUnavailable"
	ReasonSellerUnavailable  Reason = "SellerUnavailable"

	ReasonInvalidOrExpiredCoupon Reason = "InvalidOrExpiredCoupon"
	ReasonMinOrderValueNotMet    Reason = "MinOrderValueNotMet"
	ReasonCouponNotApplicable    Reason = "CouponNotApplicable"
	ReasonUsageLimitReached      Reason = "UsageLimitReached"
	ReasonPerUserLimitReached    Reason = "PerUserLimitReached"

	ReasonInvalidTransition Reason = "InvalidTransition"
	ReasonAlreadySettled    Reason = "AlreadySettled"
	ReasonReturnExists      Reason = "ReturnAlreadyRequested"
)
