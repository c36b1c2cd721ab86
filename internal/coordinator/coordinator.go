// Package coordinator drives the refresh cycle for one configured instance:
// a single logical worker fed by a scheduler and by forced refresh requests,
// publishing versioned snapshots that presentation entities read.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/entity"
	"github.com/ddareungi/ddareungi/internal/history"
	"github.com/ddareungi/ddareungi/internal/station"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

// Result is what one source fetch produces. Errors holds recoverable
// per-fetch problems that still leave the result publishable; a source
// returns a non-nil error only when nothing usable came back.
type Result struct {
	Stations        []station.Station
	SkippedStations int
	Favorites       []bikeseoul.Favorite
	History         *history.Window
	TicketExpiresAt *time.Time
	Renting         *bool
	Errors          []string
}

// Source fetches the raw data for one refresh cycle.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Result, error)
}

// Snapshot is the versioned refresh result. It is replaced atomically and
// never partially visible; a failed cycle leaves the previous snapshot
// published unchanged.
type Snapshot struct {
	Generation      uint64                  `json:"generation"`
	Timestamp       time.Time               `json:"timestamp"`
	Stations        []station.Station       `json:"stations,omitempty"`
	Monitored       []station.Station       `json:"monitored,omitempty"`
	Nearby          []station.NearbyStation `json:"nearby,omitempty"`
	Favorites       []bikeseoul.Favorite    `json:"favorites,omitempty"`
	History         history.Window          `json:"history"`
	TicketExpiresAt *time.Time              `json:"ticket_expires_at,omitempty"`
	Renting         *bool                   `json:"renting,omitempty"`
	SkippedStations int                     `json:"skipped_stations,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
}

// Metrics are cumulative counters for the admin surface.
type Metrics struct {
	Cycles        uint64
	Failures      uint64
	LastDuration  time.Duration
	LastCycleTime time.Time
}

// Config holds configuration for a refresh coordinator.
type Config struct {
	// InstanceID identifies the instance in logs and the admin surface.
	InstanceID string

	// Source performs the per-cycle fetch.
	Source Source

	// Directory resolves monitored codes and serves nearby search. May be
	// shared with the source, which updates it during Fetch.
	Directory *station.Directory

	// MonitoredCodes are the canonical codes to surface per cycle.
	MonitoredCodes []string

	// CycleTimeout bounds one whole cycle. Default: 30 seconds.
	CycleTimeout time.Duration

	// Nearby search parameters. Zero Lat/Lon disables the search.
	Lat              float64
	Lon              float64
	NearbyRadiusM    float64
	NearbyMinBikes   int
	NearbyMaxResults int

	// Upstreams optionally records cycle outcomes for /health.
	Upstreams *upstream.Registry

	// Entities optionally receives the per-instance sensor entities each
	// published cycle. Favorite entities are owned by the favorites
	// applier, not by the coordinator.
	Entities entity.Registry

	Logger zerolog.Logger
}

// Coordinator runs refresh cycles for one instance. Concurrent refresh
// requests coalesce onto the in-flight cycle; all callers observe the same
// resulting generation.
type Coordinator struct {
	cfg    Config
	logger zerolog.Logger

	group    singleflight.Group
	snapshot atomic.Pointer[Snapshot]

	registerEntities sync.Once

	mu      sync.Mutex
	metrics Metrics
}

// New creates a coordinator. The caller drives cycles through Refresh,
// typically from a scheduler plus forced-refresh requests.
func New(cfg Config) *Coordinator {
	if cfg.CycleTimeout == 0 {
		cfg.CycleTimeout = 30 * time.Second
	}
	return &Coordinator{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("instance", cfg.InstanceID).Logger(),
	}
}

// Snapshot returns the latest published snapshot, or nil before the first
// successful cycle.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Metrics returns the cycle counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Refresh runs one cycle now, or joins the cycle already in flight. On a
// failed cycle the previously published snapshot is returned alongside the
// error, so callers still see the freshest good data.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.runCycle(ctx)
	})
	if err != nil {
		if prev := c.snapshot.Load(); prev != nil {
			return prev, err
		}
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Coordinator) runCycle(ctx context.Context) (*Snapshot, error) {
	cycleID := uuid.NewString()
	started := time.Now()
	logger := c.logger.With().Str("cycle_id", cycleID).Logger()
	logger.Debug().Msg("refresh cycle started")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	result, err := c.cfg.Source.Fetch(ctx)
	if err == nil && ctx.Err() != nil {
		// The cycle deadline passed while the source was still fetching;
		// its result is discarded, never published over a good snapshot.
		err = ctx.Err()
	}

	c.mu.Lock()
	c.metrics.Cycles++
	c.metrics.LastDuration = time.Since(started)
	c.metrics.LastCycleTime = started
	if err != nil {
		c.metrics.Failures++
	}
	c.mu.Unlock()

	if err != nil {
		// Stale-but-available: the previous snapshot stays published and
		// its generation does not advance.
		logger.Warn().Err(err).Str("source", c.cfg.Source.Name()).Msg("refresh cycle failed")
		if c.cfg.Upstreams != nil {
			c.cfg.Upstreams.RecordFailure(c.cfg.Source.Name(), err)
		}
		return nil, err
	}
	if c.cfg.Upstreams != nil {
		c.cfg.Upstreams.RecordSuccess(c.cfg.Source.Name())
	}

	snap := c.publish(result)
	logger.Info().
		Uint64("generation", snap.Generation).
		Int("stations", len(snap.Stations)).
		Int("favorites", len(snap.Favorites)).
		Int("errors", len(snap.Errors)).
		Dur("took", time.Since(started)).
		Msg("refresh cycle published")
	return snap, nil
}

// publish builds the next snapshot from the fetch result, retaining previous
// favorites and history when the fresh fetch came back empty but the old
// snapshot had data.
func (c *Coordinator) publish(result Result) *Snapshot {
	prev := c.snapshot.Load()

	snap := &Snapshot{
		Generation:      1,
		Timestamp:       time.Now(),
		Stations:        result.Stations,
		Favorites:       result.Favorites,
		TicketExpiresAt: result.TicketExpiresAt,
		Renting:         result.Renting,
		SkippedStations: result.SkippedStations,
		Errors:          result.Errors,
	}
	if result.History != nil {
		snap.History = *result.History
	}

	if prev != nil {
		snap.Generation = prev.Generation + 1
		if len(snap.Favorites) == 0 {
			snap.Favorites = prev.Favorites
		}
		if len(snap.History.Records) == 0 {
			snap.History = prev.History
		}
		if snap.TicketExpiresAt == nil {
			snap.TicketExpiresAt = prev.TicketExpiresAt
		}
	}

	if c.cfg.Directory != nil {
		for _, code := range c.cfg.MonitoredCodes {
			if st, ok := c.cfg.Directory.ByCode(code); ok {
				snap.Monitored = append(snap.Monitored, st)
			}
		}
		if c.cfg.Lat != 0 || c.cfg.Lon != 0 {
			snap.Nearby = c.cfg.Directory.Nearby(
				c.cfg.Lat, c.cfg.Lon,
				c.cfg.NearbyRadiusM, c.cfg.NearbyMinBikes, c.cfg.NearbyMaxResults,
			)
		}
	}

	c.snapshot.Store(snap)
	c.publishEntities(snap)
	return snap
}

// publishEntities mirrors the snapshot into the host's entity registry: one
// sensor per concern, registered on the first publish and updated on every
// publish after that. Registry failures are logged, never fail the cycle.
func (c *Coordinator) publishEntities(snap *Snapshot) {
	if c.cfg.Entities == nil {
		return
	}

	states := map[entity.Kind]entity.State{
		entity.KindStationSensor: {
			"stations":         len(snap.Stations),
			"monitored":        snap.Monitored,
			"nearby":           snap.Nearby,
			"skipped_stations": snap.SkippedStations,
		},
		entity.KindHistorySensor: {
			"rides": len(snap.History.Records),
			"stats": snap.History.Stats,
		},
		entity.KindTicketSensor: {
			"expires_at": snap.TicketExpiresAt,
			"renting":    snap.Renting,
		},
		entity.KindRefreshButton: {
			"generation": snap.Generation,
			"timestamp":  snap.Timestamp,
		},
	}

	c.registerEntities.Do(func() {
		for kind, state := range states {
			key := entity.SensorKey(c.cfg.InstanceID, kind)
			if err := c.cfg.Entities.Register(kind, key, state); err != nil {
				c.logger.Warn().Err(err).Str("entity", key).Msg("entity register failed")
			}
		}
	})

	for kind, state := range states {
		key := entity.SensorKey(c.cfg.InstanceID, kind)
		if err := c.cfg.Entities.Update(key, state); err != nil {
			c.logger.Warn().Err(err).Str("entity", key).Msg("entity update failed")
		}
	}
}
