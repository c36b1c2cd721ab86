package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/favorites"
	"github.com/ddareungi/ddareungi/internal/history"
	"github.com/ddareungi/ddareungi/internal/seoulbike"
	"github.com/ddareungi/ddareungi/internal/session"
	"github.com/ddareungi/ddareungi/internal/station"
)

// APISource fetches the station directory through the official open-data
// API. API-mode instances have no user-scoped data; a cycle is the full
// station list plus the skip count.
type APISource struct {
	client    *seoulbike.Client
	directory *station.Directory
}

// NewAPISource creates an API-mode source feeding the given directory.
func NewAPISource(client *seoulbike.Client, directory *station.Directory) *APISource {
	return &APISource{client: client, directory: directory}
}

// Name implements Source.
func (s *APISource) Name() string { return seoulbike.ProviderName }

// Fetch implements Source.
func (s *APISource) Fetch(ctx context.Context) (Result, error) {
	stations, skipped, err := s.client.FetchAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching station list: %w", err)
	}
	s.directory.Update(stations)

	result := Result{Stations: stations, SkippedStations: skipped}
	if skipped > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d station rows skipped", skipped))
	}
	return result, nil
}

// CookieSourceConfig holds configuration for a cookie-mode source.
type CookieSourceConfig struct {
	Client    *bikeseoul.Client
	Sessions  *session.Manager
	Applier   *favorites.Applier
	Collector *history.Collector
	Directory *station.Directory
	Logger    zerolog.Logger
}

// CookieSource fetches everything a member session exposes: the realtime
// station list, favorites, ride history, rent status and the pass expiry.
// Individual fetch failures are downgraded to result errors as long as
// something usable came back; authentication failure fails the whole cycle.
type CookieSource struct {
	client    *bikeseoul.Client
	sessions  *session.Manager
	applier   *favorites.Applier
	collector *history.Collector
	directory *station.Directory
	logger    zerolog.Logger
}

// NewCookieSource creates a cookie-mode source.
func NewCookieSource(cfg CookieSourceConfig) *CookieSource {
	return &CookieSource{
		client:    cfg.Client,
		sessions:  cfg.Sessions,
		applier:   cfg.Applier,
		collector: cfg.Collector,
		directory: cfg.Directory,
		logger:    cfg.Logger,
	}
}

// Name implements Source.
func (s *CookieSource) Name() string { return bikeseoul.ProviderName }

// Fetch implements Source.
func (s *CookieSource) Fetch(ctx context.Context) (Result, error) {
	var result Result

	stations, voucherEnd, err := s.client.FetchStationRealtimeAll(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("station status: %v", err))
	} else {
		s.directory.Update(stations)
		result.Stations = stations
	}

	err = s.sessions.WithSession(ctx, func(ctx context.Context) error {
		status, probeErr := s.client.ProbeSession(ctx)
		if probeErr != nil {
			return probeErr
		}
		renting := status.Renting()
		result.Renting = &renting
		return nil
	})
	if err != nil {
		if session.IsAuthError(err) {
			return Result{}, err
		}
		result.Errors = append(result.Errors, fmt.Sprintf("rent status: %v", err))
	}

	err = s.sessions.WithSession(ctx, func(ctx context.Context) error {
		favs, favErr := s.client.FetchFavorites(ctx)
		if favErr != nil {
			return favErr
		}
		result.Favorites = favs
		return nil
	})
	if err != nil {
		if session.IsAuthError(err) {
			return Result{}, err
		}
		result.Errors = append(result.Errors, fmt.Sprintf("favorites: %v", err))
	} else if s.applier != nil {
		s.applier.Apply(result.Favorites)
	}

	window, err := s.collector.Collect(ctx)
	if err != nil {
		if session.IsAuthError(err) {
			return Result{}, err
		}
		result.Errors = append(result.Errors, fmt.Sprintf("history: %v", err))
	} else {
		result.History = &window
	}

	result.TicketExpiresAt = s.ticketExpiry(ctx, voucherEnd)

	if len(result.Stations) == 0 && result.Renting == nil &&
		result.Favorites == nil && result.History == nil {
		return Result{}, fmt.Errorf("every fetch failed: %s", result.Errors[0])
	}
	return result, nil
}

// ticketExpiry resolves the pass expiry, preferring the value the realtime
// payload already carried, then the voucher endpoint, then the my-page HTML.
func (s *CookieSource) ticketExpiry(ctx context.Context, fromRealtime *time.Time) *time.Time {
	if fromRealtime != nil {
		return fromRealtime
	}

	var expiry *time.Time
	err := s.sessions.WithSession(ctx, func(ctx context.Context) error {
		info, voucherErr := s.client.FetchVoucherInfo(ctx)
		if voucherErr != nil {
			return voucherErr
		}
		expiry = info.ExpiresAt
		return nil
	})
	if err == nil && expiry != nil {
		return expiry
	}

	err = s.sessions.WithSession(ctx, func(ctx context.Context) error {
		scraped, pageErr := s.client.FetchTicketExpiry(ctx)
		if pageErr != nil {
			return pageErr
		}
		expiry = scraped
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("ticket expiry unavailable")
		return nil
	}
	return expiry
}
