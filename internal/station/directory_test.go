package station_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/station"
)

func TestDirectory_UpdateAndLookup(t *testing.T) {
	d := station.NewDirectory()
	d.Update([]station.Station{
		{Code: "st-100", NumericID: "100", Name: "망원역", BikesTotal: 5},
		{Code: "ST-200", NumericID: "200", Name: "합정역", BikesTotal: 0},
		{Code: "ST-100", NumericID: "100", Name: "duplicate row"},
		{Code: "", Name: "no code"},
	})

	require.Equal(t, 2, d.Len())

	s, ok := d.ByCode("ST-100")
	require.True(t, ok)
	assert.Equal(t, "망원역", s.Name)

	// Lookup normalizes the code.
	_, ok = d.ByCode(" st-200 ")
	assert.True(t, ok)

	_, ok = d.ByCode("ST-300")
	assert.False(t, ok)

	snap := d.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "ST-100", snap[0].Code)
}

func TestDirectory_UpdateReplacesSnapshot(t *testing.T) {
	d := station.NewDirectory()
	d.Update([]station.Station{{Code: "ST-1"}})
	d.Update([]station.Station{{Code: "ST-2"}, {Code: "ST-3"}})

	assert.Equal(t, 2, d.Len())
	_, ok := d.ByCode("ST-1")
	assert.False(t, ok)
}

func TestDirectory_Nearby(t *testing.T) {
	d := station.NewDirectory()
	d.Update([]station.Station{
		{Code: "ST-1", Lat: 37.5560, Lon: 126.9100, BikesTotal: 3},
		{Code: "ST-2", Lat: 37.5561, Lon: 126.9101, BikesTotal: 10},
		{Code: "ST-3", Lat: 37.6000, Lon: 127.0000, BikesTotal: 20}, // far away
		{Code: "ST-4", Lat: 37.5559, Lon: 126.9099, BikesTotal: 0},  // empty dock
		{Code: "ST-5", BikesTotal: 7},                               // no coordinates
	})

	got := d.Nearby(37.5560, 126.9100, 500, 1, 0)
	require.Len(t, got, 2)
	// Sorted by bike count descending.
	assert.Equal(t, "ST-2", got[0].Code)
	assert.Equal(t, "ST-1", got[1].Code)
	assert.Equal(t, 13, got[0].BikesTotal+got[1].BikesTotal)
	assert.GreaterOrEqual(t, got[1].DistanceM, 0.0)

	capped := d.Nearby(37.5560, 126.9100, 500, 1, 1)
	require.Len(t, capped, 1)
	assert.Equal(t, "ST-2", capped[0].Code)
}
