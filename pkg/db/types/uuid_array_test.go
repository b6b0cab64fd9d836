package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayValueAndScan(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	arr := UUIDArray{a, b}

	raw, err := arr.Value()
	require.NoError(t, err)

	var decoded UUIDArray
	require.NoError(t, decoded.Scan([]byte(raw.(string))))
	require.Equal(t, arr, decoded)
	require.True(t, decoded.Contains(b))
	require.False(t, decoded.Contains(uuid.New()))
	require.True(t, decoded.ContainsAny([]uuid.UUID{uuid.New(), a}))
}

func TestUUIDArrayEmptyForms(t *testing.T) {
	raw, err := UUIDArray(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "{}", raw)

	var decoded UUIDArray
	require.NoError(t, decoded.Scan(nil))
	require.Empty(t, decoded)
	require.NoError(t, decoded.Scan("{}"))
	require.Empty(t, decoded)
}

func TestUUIDArrayScanRejectsGarbage(t *testing.T) {
	var decoded UUIDArray
	require.Error(t, decoded.Scan("{not-a-uuid}"))
	require.Error(t, decoded.Scan(12))
}
