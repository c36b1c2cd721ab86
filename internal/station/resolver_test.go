package station_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/station"
)

func TestResolve_CanonicalCode(t *testing.T) {
	stations := []station.Station{
		{Code: "ST-100", NumericID: "100"},
		{Code: "ST-200", NumericID: "200"},
	}

	res := station.Resolve("ST-100", stations)
	assert.Equal(t, station.Resolved, res.Kind)
	assert.Equal(t, "ST-100", res.Code)

	res = station.Resolve("st-200", stations)
	assert.Equal(t, station.Resolved, res.Kind)
	assert.Equal(t, "ST-200", res.Code)

	res = station.Resolve("ST-999", stations)
	assert.Equal(t, station.NotFound, res.Kind)
}

func TestResolve_NumericUnique(t *testing.T) {
	stations := []station.Station{
		{Code: "ST-100", NumericID: "100"},
		{Code: "ST-200", NumericID: "200"},
	}

	res := station.Resolve("200", stations)
	assert.Equal(t, station.Resolved, res.Kind)
	assert.Equal(t, "ST-200", res.Code)
}

func TestResolve_NumericAmbiguous(t *testing.T) {
	// Two stations historically sharing one display number must never
	// resolve to a guessed single code.
	stations := []station.Station{
		{Code: "ST-100", NumericID: "100"},
		{Code: "ST-200", NumericID: "100"},
	}

	res := station.Resolve("100", stations)
	require.Equal(t, station.Ambiguous, res.Kind)
	assert.ElementsMatch(t, []string{"ST-100", "ST-200"}, res.Candidates)
	assert.Empty(t, res.Code)
}

func TestResolve_EmptyAndUnknown(t *testing.T) {
	stations := []station.Station{{Code: "ST-1", NumericID: "1"}}

	assert.Equal(t, station.NotFound, station.Resolve("", stations).Kind)
	assert.Equal(t, station.NotFound, station.Resolve("42", stations).Kind)
}

func TestDirectory_ResolveAgainst(t *testing.T) {
	d := station.NewDirectory()
	d.Update([]station.Station{
		{Code: "ST-100", NumericID: "100"},
		{Code: "ST-200", NumericID: "100"},
		{Code: "ST-300", NumericID: "300"},
	})

	res := d.ResolveAgainst("st-300")
	assert.Equal(t, station.Resolved, res.Kind)
	assert.Equal(t, "ST-300", res.Code)

	res = d.ResolveAgainst("300")
	assert.Equal(t, station.Resolved, res.Kind)
	assert.Equal(t, "ST-300", res.Code)

	res = d.ResolveAgainst("100")
	require.Equal(t, station.Ambiguous, res.Kind)
	assert.ElementsMatch(t, []string{"ST-100", "ST-200"}, res.Candidates)

	assert.Equal(t, station.NotFound, d.ResolveAgainst("").Kind)
	assert.Equal(t, station.NotFound, d.ResolveAgainst("ST-999").Kind)
	assert.Equal(t, station.NotFound, d.ResolveAgainst("999").Kind)
}

func TestSplitNumberedName(t *testing.T) {
	tests := []struct {
		raw    string
		number string
		title  string
	}{
		{"102. 망원역 1번출구 앞", "102", "망원역 1번출구 앞"},
		{"2715.마곡나루역 2번출구", "2715", "마곡나루역 2번출구"},
		{"이름만 있는 대여소", "", "이름만 있는 대여소"},
		{"  961) 신도림역 ", "961", "신도림역"},
	}
	for _, tt := range tests {
		number, title := station.SplitNumberedName(tt.raw)
		assert.Equal(t, tt.number, number, tt.raw)
		assert.Equal(t, tt.title, title, tt.raw)
	}
}
