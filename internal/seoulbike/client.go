// Package seoulbike is a client for the Seoul Open Data Plaza bikeList API,
// the token-authenticated source of the full station directory.
package seoulbike

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/station"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "seoul-openapi"

	// DefaultBaseURL is the Seoul Open Data Plaza host.
	DefaultBaseURL = "http://openapi.seoul.go.kr:8088"

	resource = "bikeList"

	// maxPageSize is the largest row window the API serves per request.
	maxPageSize = 1000
)

// Predefined client errors.
var (
	// ErrAuth means the API key was rejected.
	ErrAuth = errors.New("seoul openapi rejected api key")

	// ErrUpstream covers transport and payload failures.
	ErrUpstream = errors.New("seoul openapi fetch failed")
)

// ClientConfig holds configuration for the OpenAPI client.
type ClientConfig struct {
	// APIKey is the Open Data Plaza API key (required).
	APIKey string

	// BaseURL overrides the API host (tests).
	BaseURL string

	// HTTPClient is the upstream client to use. If nil, a resilient client
	// with defaults is created.
	HTTPClient *upstream.Client

	// MaxPages bounds the paging loop. Default: 10 (10k stations).
	MaxPages int

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches the station list from the Seoul OpenAPI.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *upstream.Client
	maxPages   int
	logger     zerolog.Logger
}

// NewClient creates a new OpenAPI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = upstream.NewClient(upstream.ClientConfig{Name: ProviderName})
	}
	maxPages := cfg.MaxPages
	if maxPages == 0 {
		maxPages = 10
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxPages:   maxPages,
		logger:     cfg.Logger,
	}
}

// Name returns the upstream identifier.
func (c *Client) Name() string {
	return ProviderName
}

// HTTPClient exposes the underlying resilient client for health reporting.
func (c *Client) HTTPClient() *upstream.Client {
	return c.httpClient
}

// ValidateKey checks the API key by requesting a single row.
func (c *Client) ValidateKey(ctx context.Context) error {
	_, err := c.fetchPage(ctx, 1, 1)
	return err
}

// FetchAll pages through the full station list. The upstream's
// list_total_count field sometimes reports the page size instead of the
// total, so paging continues until a page comes back short. Rows that cannot
// be turned into a station are skipped and counted rather than failing the
// fetch.
func (c *Client) FetchAll(ctx context.Context) ([]station.Station, int, error) {
	var (
		stations []station.Station
		skipped  int
	)

	start := 1
	for page := 0; page < c.maxPages; page++ {
		end := start + maxPageSize - 1

		root, err := c.fetchPage(ctx, start, end)
		if err != nil {
			// A dropped page would silently lose stations, so the whole
			// fetch fails; the next cycle retries.
			return nil, 0, err
		}

		for _, row := range root.Rows {
			st, ok := rowToStation(row)
			if !ok {
				skipped++
				continue
			}
			stations = append(stations, st)
		}

		c.logger.Debug().
			Int("start", start).
			Int("rows", len(root.Rows)).
			Msg("fetched station page")

		if len(root.Rows) < maxPageSize {
			break
		}
		start += maxPageSize
	}

	return stations, skipped, nil
}

func (c *Client) fetchPage(ctx context.Context, start, end int) (*bikeListRoot, error) {
	url := fmt.Sprintf("%s/%s/json/%s/%d/%d/", c.baseURL, c.apiKey, resource, start, end)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	var payload bikeListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}

	root := payload.RentBikeStatus
	if root == nil {
		return nil, fmt.Errorf("%w: payload missing rentBikeStatus", ErrUpstream)
	}

	code := strings.TrimSpace(root.Result.Code)
	msg := strings.TrimSpace(root.Result.Message)
	if code != "INFO-000" {
		if strings.Contains(msg, "인증") || strings.Contains(strings.ToUpper(msg), "KEY") {
			return nil, fmt.Errorf("%w: %s", ErrAuth, msg)
		}
		return nil, fmt.Errorf("%w: %s (%s)", ErrUpstream, msg, code)
	}

	return root, nil
}

// rowToStation converts an upstream row to the domain model. Rows without a
// station code are unusable.
func rowToStation(r bikeListRow) (station.Station, bool) {
	code := station.NormalizeCode(r.StationID)
	if code == "" || !station.IsCode(code) {
		return station.Station{}, false
	}

	number, title := station.SplitNumberedName(r.StationName)

	total := r.ParkingBikeTotCnt.Int()
	general := r.ParkingBikeTotCntGeneral.IntDefault(total)
	sprout := r.ParkingBikeTotCntTeen.Int()
	if total <= 0 {
		total = general + sprout
	}

	return station.Station{
		Code:         code,
		NumericID:    number,
		Name:         title,
		Lat:          r.StationLatitude.Float(),
		Lon:          r.StationLongitude.Float(),
		BikesGeneral: general,
		BikesSprout:  sprout,
		BikesTotal:   total,
		BikesRepair:  r.ParkingBikeTotCntRepair.Int(),
	}, true
}
