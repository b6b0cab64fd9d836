package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAddressValidateAndNormalize(t *testing.T) {
	addr := Address{Name: " Asha ", Phone: "9999", Line1: "1 Main", City: "Pune", State: "MH", Pincode: "411001"}
	require.NoError(t, addr.Validate())

	norm := addr.Normalized()
	require.Equal(t, "Asha", norm.Name)
	require.Equal(t, DefaultCountry, norm.Country)

	addr.City = " "
	require.EqualError(t, addr.Validate(), "address: missing city")
}

func TestAddressScanRoundTrip(t *testing.T) {
	addr := Address{Name: "A", Phone: "1", Line1: "L", City: "C", State: "S", Pincode: "P", Country: "India"}
	raw, err := addr.Value()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.Scan(raw))
	require.Equal(t, addr, decoded)
}

func TestStatusHistoryAppendDoesNotAlias(t *testing.T) {
	base := make(StatusHistory, 1, 4)
	base[0] = StatusEntry{Status: "pending", ActorRole: "system", At: time.Unix(0, 0).UTC()}

	first := base.Append(StatusEntry{Status: "processing"})
	second := base.Append(StatusEntry{Status: "cancelled"})

	require.Len(t, first, 2)
	require.Equal(t, "processing", first[1].Status)
	require.Equal(t, "cancelled", second[1].Status)

	last, ok := second.Last()
	require.True(t, ok)
	require.Equal(t, "cancelled", last.Status)

	_, ok = StatusHistory{}.Last()
	require.False(t, ok)
}

func TestStatusHistoryScanNil(t *testing.T) {
	var h StatusHistory
	require.NoError(t, h.Scan(nil))
	require.Empty(t, h)

	raw, err := StatusHistory(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", raw)
}

func TestProductVariantsFind(t *testing.T) {
	variants := ProductVariants{
		{ID: "red", Price: decimal.NewFromInt(120), SKU: "SKU-R"},
		{ID: "blue", Price: decimal.NewFromInt(130), SKU: "SKU-B"},
	}
	v, ok := variants.Find("blue")
	require.True(t, ok)
	require.True(t, v.Price.Equal(decimal.NewFromInt(130)))

	_, ok = variants.Find("green")
	require.False(t, ok)
}

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"order_id":"abc"}`)))
	require.Equal(t, "abc", m["order_id"])
	require.Error(t, m.Scan(42))
}
