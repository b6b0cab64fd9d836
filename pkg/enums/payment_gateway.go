package enums

import "fmt"

// PaymentGateway is the processor recorded on the payment sub-record.
type PaymentGateway string

const (
	PaymentGatewayRazorpay PaymentGateway = "razorpay"
	PaymentGatewayStripe   PaymentGateway = "stripe"
	PaymentGatewayPaytm    PaymentGateway = "paytm"
	PaymentGatewayPaypal   PaymentGateway = "paypal"
	PaymentGatewayCOD      PaymentGateway = "cod"
)

var validPaymentGatewaies = []PaymentGateway{
	PaymentGatewayRazorpay,
	PaymentGatewayStripe,
	PaymentGatewayPaytm,
	PaymentGatewayPaypal,
	PaymentGatewayCOD,
}

// String implements fmt.Stringer.
func (v PaymentGateway) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentGateway.
func (v PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGatewaies {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentGateway converts raw input into PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	for _, candidate := range validPaymentGatewaies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}
