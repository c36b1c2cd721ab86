package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/config"
	"github.com/ddareungi/ddareungi/internal/station"
)

func testDirectory() *station.Directory {
	d := station.NewDirectory()
	d.Update([]station.Station{
		{Code: "ST-100", NumericID: "100", Name: "시청앞"},
		{Code: "ST-200", NumericID: "100", Name: "시청뒤"},
		{Code: "ST-300", NumericID: "300", Name: "서울역"},
	})
	return d
}

func TestInstance_Validate(t *testing.T) {
	in := &config.Instance{
		ID:                "inst-1",
		Mode:              config.ModeAPI,
		APIKey:            "key",
		MonitoredStations: []string{"300", "ST-100"},
	}

	codes, err := in.Validate(testDirectory())
	require.NoError(t, err)
	assert.Equal(t, []string{"ST-300", "ST-100"}, codes)
	assert.Equal(t, 5*time.Minute, in.UpdateInterval)
	assert.Equal(t, 30*time.Second, in.FetchTimeout)
}

func TestInstance_Validate_AmbiguousStation(t *testing.T) {
	in := &config.Instance{
		ID:                "inst-1",
		Mode:              config.ModeAPI,
		APIKey:            "key",
		MonitoredStations: []string{"100"},
	}

	_, err := in.Validate(testDirectory())
	require.ErrorIs(t, err, station.ErrAmbiguous)

	var stErr *config.StationError
	require.ErrorAs(t, err, &stErr)
	assert.ElementsMatch(t, []string{"ST-100", "ST-200"}, stErr.Candidates)
}

func TestInstance_Validate_UnknownStation(t *testing.T) {
	in := &config.Instance{
		ID:                "inst-1",
		Mode:              config.ModeAPI,
		APIKey:            "key",
		MonitoredStations: []string{"ST-999"},
	}

	_, err := in.Validate(testDirectory())
	require.ErrorIs(t, err, station.ErrNotFound)
}

func TestInstance_Validate_Credentials(t *testing.T) {
	tests := []struct {
		name    string
		in      config.Instance
		wantErr error
	}{
		{
			name:    "api without key",
			in:      config.Instance{Mode: config.ModeAPI},
			wantErr: config.ErrMissingCredentials,
		},
		{
			name:    "cookie without anything",
			in:      config.Instance{Mode: config.ModeCookie},
			wantErr: config.ErrMissingCredentials,
		},
		{
			name: "cookie with seed only",
			in:   config.Instance{Mode: config.ModeCookie, Cookie: "JSESSIONID=x"},
		},
		{
			name: "cookie with username and password",
			in:   config.Instance{Mode: config.ModeCookie, Username: "u", Password: "p"},
		},
		{
			name:    "unknown mode",
			in:      config.Instance{Mode: "carrier-pigeon"},
			wantErr: config.ErrInvalidMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate(testDirectory())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
