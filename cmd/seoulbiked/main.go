// Package main runs the Ddareungi daemon: one refresh coordinator per
// configured instance plus the admin HTTP surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/api"
	"github.com/ddareungi/ddareungi/internal/api/handler"
	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/config"
	"github.com/ddareungi/ddareungi/internal/coordinator"
	"github.com/ddareungi/ddareungi/internal/entity"
	"github.com/ddareungi/ddareungi/internal/favorites"
	"github.com/ddareungi/ddareungi/internal/history"
	"github.com/ddareungi/ddareungi/internal/seoulbike"
	"github.com/ddareungi/ddareungi/internal/session"
	"github.com/ddareungi/ddareungi/internal/station"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "seoulbiked").
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting seoulbiked")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	instances := instancesFromEnv()
	if len(instances) == 0 {
		log.Fatal().Msg("no instance configured: set SEOUL_API_KEY or BIKESEOUL_USERNAME/BIKESEOUL_PASSWORD/BIKESEOUL_COOKIE")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstreams := upstream.NewRegistry()
	registry := &logRegistry{logger: log}

	handlers := make(map[string]*handler.Instance, len(instances))
	var sharedDirectory *station.Directory
	scheduler := cron.New()

	for _, in := range instances {
		in.FillDefaults()
		inst, directory, err := buildInstance(in, registry, upstreams, log)
		if err != nil {
			log.Fatal().Err(err).Str("instance", in.ID).Msg("instance setup failed")
		}
		handlers[in.ID] = inst
		if sharedDirectory == nil {
			sharedDirectory = directory
		}

		coord := inst.Coordinator
		spec := "@every " + in.UpdateInterval.String()
		if _, err := scheduler.AddFunc(spec, func() {
			if _, err := coord.Refresh(ctx); err != nil {
				log.Warn().Err(err).Str("instance", inst.ID).Msg("scheduled refresh failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Str("schedule", spec).Msg("invalid refresh schedule")
		}
		log.Info().
			Str("instance", in.ID).
			Str("mode", string(in.Mode)).
			Str("schedule", spec).
			Msg("instance configured")
	}

	// Slower tier: periodic cycle metrics for operators.
	if _, err := scheduler.AddFunc("@every 1h", func() {
		for id, inst := range handlers {
			m := inst.Coordinator.Metrics()
			log.Info().
				Str("instance", id).
				Uint64("cycles", m.Cycles).
				Uint64("failures", m.Failures).
				Dur("last_duration", m.LastDuration).
				Msg("refresh metrics")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("invalid metrics schedule")
	}

	// First cycle right away so the admin surface has data to serve.
	for id, inst := range handlers {
		if _, err := inst.Coordinator.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("instance", id).Msg("initial refresh failed")
		}
	}
	scheduler.Start()

	router := api.NewRouter(api.RouterConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Logger:    log,
		Upstreams: upstreams,
		Instances: handlers,
		Directory: sharedDirectory,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("admin surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin server forced to shutdown")
	}
	log.Info().Msg("stopped")
}

// instancesFromEnv builds up to two instances, one per credential set found
// in the environment.
func instancesFromEnv() []*config.Instance {
	var out []*config.Instance

	interval := envDuration("UPDATE_INTERVAL", 0)
	monitored := envList("MONITORED_STATIONS")
	lat := envFloat("LOCATION_LAT")
	lon := envFloat("LOCATION_LON")

	if key := os.Getenv("SEOUL_API_KEY"); key != "" {
		out = append(out, &config.Instance{
			ID:                "seoul-api",
			Mode:              config.ModeAPI,
			APIKey:            key,
			UpdateInterval:    interval,
			MonitoredStations: monitored,
			Lat:               lat,
			Lon:               lon,
		})
	}

	username := os.Getenv("BIKESEOUL_USERNAME")
	password := os.Getenv("BIKESEOUL_PASSWORD")
	cookie := os.Getenv("BIKESEOUL_COOKIE")
	if cookie != "" || (username != "" && password != "") {
		out = append(out, &config.Instance{
			ID:                "bikeseoul",
			Mode:              config.ModeCookie,
			Username:          username,
			Password:          password,
			Cookie:            cookie,
			UpdateInterval:    interval,
			MonitoredStations: monitored,
			Lat:               lat,
			Lon:               lon,
		})
	}
	return out
}

// buildInstance wires one coordinator with its mode-specific source.
func buildInstance(in *config.Instance, registry entity.Registry, upstreams *upstream.Registry, log zerolog.Logger) (*handler.Instance, *station.Directory, error) {
	logger := log.With().Str("instance", in.ID).Logger()
	directory := station.NewDirectory()

	var (
		source   coordinator.Source
		sessions *session.Manager
	)

	switch in.Mode {
	case config.ModeAPI:
		client := seoulbike.NewClient(seoulbike.ClientConfig{
			APIKey: in.APIKey,
			Logger: logger,
		})
		upstreams.Register(client.HTTPClient())

		// A bad key fails every later cycle the same way, so reject it
		// at startup instead.
		keyCtx, cancel := context.WithTimeout(context.Background(), in.FetchTimeout)
		defer cancel()
		if err := client.ValidateKey(keyCtx); err != nil {
			return nil, nil, fmt.Errorf("instance %s: api key validation: %w", in.ID, err)
		}

		source = coordinator.NewAPISource(client, directory)

	case config.ModeCookie:
		client := bikeseoul.NewClient(bikeseoul.ClientConfig{
			Cookie: in.Cookie,
			Logger: logger,
		})
		upstreams.Register(client.HTTPClient())

		sessions = session.NewManager(session.Config{
			Client:   client,
			Username: in.Username,
			Password: in.Password,
			Cookie:   in.Cookie,
			Logger:   logger,
		})

		applier := favorites.NewApplier(favorites.ApplierConfig{
			InstanceID: in.ID,
			Registry:   registry,
			Logger:     logger,
		})
		collector := history.NewCollector(history.CollectorConfig{
			Fetcher:   client,
			Sessions:  sessions,
			Directory: directory,
			Logger:    logger,
		})
		source = coordinator.NewCookieSource(coordinator.CookieSourceConfig{
			Client:    client,
			Sessions:  sessions,
			Applier:   applier,
			Collector: collector,
			Directory: directory,
			Logger:    logger,
		})
	}

	// Monitored stations resolve against the live directory, so the first
	// directory fetch has to happen before validation.
	var monitoredCodes []string
	if len(in.MonitoredStations) > 0 {
		primeCtx, cancel := context.WithTimeout(context.Background(), in.FetchTimeout)
		defer cancel()
		if _, err := source.Fetch(primeCtx); err != nil {
			return nil, nil, err
		}
		codes, err := in.Validate(directory)
		if err != nil {
			return nil, nil, err
		}
		monitoredCodes = codes
	} else if _, err := in.Validate(directory); err != nil {
		return nil, nil, err
	}

	coord := coordinator.New(coordinator.Config{
		InstanceID:       in.ID,
		Source:           source,
		Directory:        directory,
		MonitoredCodes:   monitoredCodes,
		CycleTimeout:     in.FetchTimeout,
		Lat:              in.Lat,
		Lon:              in.Lon,
		NearbyRadiusM:    in.NearbyRadiusM,
		NearbyMinBikes:   in.NearbyMinBikes,
		NearbyMaxResults: in.NearbyMaxResults,
		Upstreams:        upstreams,
		Entities:         registry,
		Logger:           log,
	})

	return &handler.Instance{
		ID:          in.ID,
		Mode:        string(in.Mode),
		Coordinator: coord,
		Sessions:    sessions,
	}, directory, nil
}

// logRegistry is the stand-in entity registry when seoulbiked runs outside a
// host platform: every registration is just logged.
type logRegistry struct {
	logger zerolog.Logger
}

func (r *logRegistry) Register(kind entity.Kind, uniqueKey string, initial entity.State) error {
	r.logger.Info().Str("kind", string(kind)).Str("key", uniqueKey).Interface("state", initial).Msg("entity registered")
	return nil
}

func (r *logRegistry) Unregister(uniqueKey string) error {
	r.logger.Info().Str("key", uniqueKey).Msg("entity unregistered")
	return nil
}

func (r *logRegistry) Update(uniqueKey string, state entity.State) error {
	r.logger.Debug().Str("key", uniqueKey).Interface("state", state).Msg("entity updated")
	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFloat(key string) float64 {
	f, _ := strconv.ParseFloat(os.Getenv(key), 64)
	return f
}
