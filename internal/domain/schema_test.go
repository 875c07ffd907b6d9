package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaResolve_ByName(t *testing.T) {
	// Columns deliberately out of documented order.
	header := []string{"Unitdesc", "Parking_Spaces", "Elmntkey", "Total_Vehicle_Count", "Study_Area", "Date Time"}

	ix, fallbacks, err := DefaultSchema.Resolve(header)
	require.NoError(t, err)
	assert.Empty(t, fallbacks)
	assert.Equal(t, ColumnIndex{ElementKey: 2, Region: 4, Timestamp: 5, UnitDesc: 0, ParkingSpaces: 1, VehicleCount: 3}, ix)
	assert.Equal(t, 6, ix.Width())
}

func TestSchemaResolve_NormalizesNames(t *testing.T) {
	header := []string{"\ufeffELMNTKEY", "study area", "x", "date_time", "x", "UNITDESC", "x", "parking spaces", "total vehicle count"}

	ix, fallbacks, err := DefaultSchema.Resolve(header)
	require.NoError(t, err)
	assert.Empty(t, fallbacks)
	assert.Equal(t, testIndex, ix)
}

func TestSchemaResolve_PositionFallback(t *testing.T) {
	header := []string{"Key", "Area", "Blockface", "When", "Side", "Desc", "Time Band", "Spaces", "Cars", "Extra"}

	ix, fallbacks, err := DefaultSchema.Resolve(header)
	require.NoError(t, err)
	assert.Equal(t, testIndex, ix)
	assert.Len(t, fallbacks, 6)
	assert.Contains(t, fallbacks, "Date Time")
}

func TestSchemaResolve_MissingColumn(t *testing.T) {
	header := []string{"Elmntkey", "Study_Area", "Date Time", "Unitdesc", "Parking_Spaces"}

	_, _, err := DefaultSchema.Resolve(header)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "Total_Vehicle_Count")
}

func TestSchemaMinWidth(t *testing.T) {
	assert.Equal(t, 9, DefaultSchema.MinWidth())
	assert.Len(t, DefaultSchema.Columns(), 6)
}
