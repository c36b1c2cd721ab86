// Package history fetches and normalizes the member's ride history. The
// upstream page identifies stations by display name only, so records carry
// the names as scraped plus a best-effort canonical code resolved against the
// current station directory.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/session"
	"github.com/ddareungi/ddareungi/internal/station"
)

// Record is one normalized ride, most recent first in a Window. Numeric
// fields that failed to parse upstream stay nil; the record itself is kept
// because its identity (times and stations) is still useful.
type Record struct {
	BikeID            string     `json:"bike_id,omitempty"`
	RentalStationCode string     `json:"rental_station_code,omitempty"`
	RentalStationName string     `json:"rental_station_name"`
	ReturnStationCode string     `json:"return_station_code,omitempty"`
	ReturnStationName string     `json:"return_station_name"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	DistanceMeters    *float64   `json:"distance_meters,omitempty"`
	DurationSeconds   *int       `json:"duration_seconds,omitempty"`
	// The site only reports calories and CO2 as page-level aggregates,
	// carried in Window.Stats. The per-ride fields stay nil until the
	// site exposes them per row.
	CaloriesBurned *float64 `json:"calories_burned,omitempty"`
	CO2SavedGrams  *float64 `json:"co2_saved_grams,omitempty"`
	HistoryID      string   `json:"history_id,omitempty"`
}

// Window is the latest history fetch: the full window each cycle, not deltas.
type Window struct {
	PeriodStart *time.Time        `json:"period_start,omitempty"`
	PeriodEnd   *time.Time        `json:"period_end,omitempty"`
	Records     []Record          `json:"records,omitempty"`
	Stats       map[string]string `json:"stats,omitempty"`
}

// Fetcher is the slice of the site client the collector needs.
type Fetcher interface {
	FetchHistory(ctx context.Context) (bikeseoul.HistoryPage, error)
}

// CollectorConfig holds configuration for a history collector.
type CollectorConfig struct {
	// Fetcher retrieves the raw history page.
	Fetcher Fetcher

	// Sessions wraps fetches with transparent re-login.
	Sessions *session.Manager

	// Directory optionally resolves station names to canonical codes.
	Directory *station.Directory

	// Logger for collector operations.
	Logger zerolog.Logger
}

// Collector turns the scraped history page into normalized records.
type Collector struct {
	fetcher   Fetcher
	sessions  *session.Manager
	directory *station.Directory
	logger    zerolog.Logger
}

// NewCollector creates a history collector.
func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		fetcher:   cfg.Fetcher,
		sessions:  cfg.Sessions,
		directory: cfg.Directory,
		logger:    cfg.Logger,
	}
}

// Collect fetches the latest history window through the session manager.
func (c *Collector) Collect(ctx context.Context) (Window, error) {
	var page bikeseoul.HistoryPage
	err := c.sessions.WithSession(ctx, func(ctx context.Context) error {
		var fetchErr error
		page, fetchErr = c.fetcher.FetchHistory(ctx)
		return fetchErr
	})
	if err != nil {
		return Window{}, err
	}

	window := Window{
		PeriodStart: bikeseoul.ParseSiteTime(page.PeriodStart),
		PeriodEnd:   bikeseoul.ParseSiteTime(page.PeriodEnd),
		Stats:       page.Stats,
		Records:     make([]Record, 0, len(page.Rows)),
	}
	for _, row := range page.Rows {
		window.Records = append(window.Records, c.normalize(row))
	}
	c.logger.Debug().Int("records", len(window.Records)).Msg("history collected")
	return window, nil
}

func (c *Collector) normalize(row bikeseoul.RideRow) Record {
	rec := Record{
		BikeID:            row.Bike,
		RentalStationName: row.RentStation,
		ReturnStationName: row.ReturnStation,
		StartTime:         bikeseoul.ParseSiteTime(row.RentAt),
		EndTime:           bikeseoul.ParseSiteTime(row.ReturnAt),
		HistoryID:         row.HistoryID,
	}
	rec.RentalStationCode = c.resolveName(row.RentStation)
	rec.ReturnStationCode = c.resolveName(row.ReturnStation)

	if row.DistanceKm != nil {
		meters := *row.DistanceKm * 1000
		rec.DistanceMeters = &meters
	}
	if rec.StartTime != nil && rec.EndTime != nil && !rec.EndTime.Before(*rec.StartTime) {
		seconds := int(rec.EndTime.Sub(*rec.StartTime) / time.Second)
		rec.DurationSeconds = &seconds
	}
	return rec
}

// resolveName maps a scraped station label to a canonical code when the
// directory knows exactly one station with that name. The label may carry
// the numeric prefix ("102. 망원역...") or just the title.
func (c *Collector) resolveName(label string) string {
	if c.directory == nil {
		return ""
	}
	number, title := station.SplitNumberedName(label)
	if title == "" {
		return ""
	}

	if number != "" {
		if res := c.directory.ResolveAgainst(number); res.Kind == station.Resolved {
			return res.Code
		}
	}

	var match string
	for _, st := range c.directory.Snapshot() {
		if strings.EqualFold(st.Name, title) {
			if match != "" {
				return "" // two stations share the name, refuse to guess
			}
			match = st.Code
		}
	}
	return match
}
