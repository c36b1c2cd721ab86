package seoulbike_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/seoulbike"
)

func bikeListPayload(rows []map[string]any) map[string]any {
	return map[string]any{
		"rentBikeStatus": map[string]any{
			"list_total_count": len(rows),
			"RESULT": map[string]any{
				"CODE":    "INFO-000",
				"MESSAGE": "정상 처리되었습니다",
			},
			"row": rows,
		},
	}
}

func TestClient_FetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/testkey/json/bikeList/1/1000/", r.URL.Path)

		rows := []map[string]any{
			{
				"stationId":                "ST-100",
				"stationName":              "102. 망원역 1번출구 앞",
				"stationLatitude":          "37.5556",
				"stationLongitude":         "126.9106",
				"parkingBikeTotCnt":        "7",
				"parkingBikeTotCntGeneral": 5,
				"parkingBikeTotCntTeen":    "2",
			},
			{
				// Missing station code: skipped, not fatal.
				"stationName":       "고장난 행",
				"parkingBikeTotCnt": "3",
			},
			{
				"stationId":         "ST-200",
				"stationName":       "이름만 있는 대여소",
				"parkingBikeTotCnt": "abc",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bikeListPayload(rows))
	}))
	defer server.Close()

	client := seoulbike.NewClient(seoulbike.ClientConfig{
		APIKey:  "testkey",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})

	stations, skipped, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, stations, 2)

	assert.Equal(t, "ST-100", stations[0].Code)
	assert.Equal(t, "102", stations[0].NumericID)
	assert.Equal(t, "망원역 1번출구 앞", stations[0].Name)
	assert.Equal(t, 7, stations[0].BikesTotal)
	assert.Equal(t, 5, stations[0].BikesGeneral)
	assert.Equal(t, 2, stations[0].BikesSprout)
	assert.InDelta(t, 37.5556, stations[0].Lat, 0.0001)

	// Unparseable counts default to zero rather than dropping the station.
	assert.Equal(t, "ST-200", stations[1].Code)
	assert.Equal(t, 0, stations[1].BikesTotal)
}

func TestClient_FetchAll_Paging(t *testing.T) {
	pages := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		var rows []map[string]any
		count := 1000
		base := 0
		if pages == 2 {
			count = 3
			base = 1000
		}
		for i := 0; i < count; i++ {
			rows = append(rows, map[string]any{
				"stationId":   fmt.Sprintf("ST-%d", base+i+1),
				"stationName": fmt.Sprintf("%d. 대여소", base+i+1),
			})
		}
		json.NewEncoder(w).Encode(bikeListPayload(rows))
	}))
	defer server.Close()

	client := seoulbike.NewClient(seoulbike.ClientConfig{
		APIKey:  "testkey",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})

	stations, skipped, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	// A short page ends paging regardless of list_total_count.
	assert.Equal(t, 2, pages)
	assert.Equal(t, 0, skipped)
	assert.Len(t, stations, 1003)
}

func TestClient_InvalidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rentBikeStatus": map[string]any{
				"RESULT": map[string]any{
					"CODE":    "INFO-100",
					"MESSAGE": "인증키가 유효하지 않습니다",
				},
			},
		})
	}))
	defer server.Close()

	client := seoulbike.NewClient(seoulbike.ClientConfig{
		APIKey:  "badkey",
		BaseURL: server.URL,
		Logger:  zerolog.Nop(),
	})

	err := client.ValidateKey(context.Background())
	require.ErrorIs(t, err, seoulbike.ErrAuth)

	_, _, err = client.FetchAll(context.Background())
	assert.ErrorIs(t, err, seoulbike.ErrAuth)
}
