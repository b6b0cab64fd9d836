package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

const DefaultCountry = "India"

// Address is the shipping/billing snapshot captured on an order.
type Address struct {
	Name    string  `json:"name" validate:"required"`
	Phone   string  `json:"phone" validate:"required"`
	Line1   string  `json:"line1" validate:"required"`
	Line2   *string `json:"line2,omitempty"`
	City    string  `json:"city" validate:"required"`
	State   string  `json:"state" validate:"required"`
	Pincode string  `json:"pincode" validate:"required"`
	Country string  `json:"country"`
}

// Validate reports the first missing required field.
func (a Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"pincode", a.Pincode},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("address: missing %s", field.name)
		}
	}
	return nil
}

// Normalized trims the fields and fills the default country.
func (a Address) Normalized() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

// Value serializes the address to JSON.
func (a Address) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return json.Unmarshal(raw, a)
}
