// Package config holds per-instance configuration handed over by the setup
// flow. Validation happens at configuration time: station tokens are resolved
// against a live directory snapshot here so ambiguity and typos surface to
// the user instead of silently monitoring the wrong station at runtime.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ddareungi/ddareungi/internal/station"
)

// Mode selects which upstream an instance talks to.
type Mode string

// Supported instance modes.
const (
	// ModeAPI polls the official open-data API with an API key.
	ModeAPI Mode = "api"

	// ModeCookie scrapes the member site with a session cookie or
	// username/password login.
	ModeCookie Mode = "cookie"
)

// Validation errors.
var (
	ErrInvalidMode        = errors.New("invalid mode")
	ErrMissingCredentials = errors.New("missing credentials")
)

// Instance is one configured integration entry. Two instances are fully
// isolated: separate session, separate cache.
type Instance struct {
	// ID identifies the instance in entity keys and the admin surface.
	ID string

	// Mode selects the upstream.
	Mode Mode

	// APIKey authenticates against the open-data API (ModeAPI).
	APIKey string

	// Username and Password drive form login (ModeCookie). Cookie may seed
	// the session instead, with login as the fallback when it expires.
	Username string
	Password string
	Cookie   string

	// UpdateInterval between automatic refresh cycles. Default: 5 minutes.
	UpdateInterval time.Duration

	// FetchTimeout bounds one whole refresh cycle. Default: 30 seconds.
	FetchTimeout time.Duration

	// MonitoredStations are user-supplied station tokens, either canonical
	// "ST-" codes or bare display numbers.
	MonitoredStations []string

	// Nearby search options. Zero Lat/Lon disables the search.
	Lat              float64
	Lon              float64
	NearbyRadiusM    float64
	NearbyMinBikes   int
	NearbyMaxResults int
}

// FillDefaults applies zero-value defaults in place.
func (in *Instance) FillDefaults() {
	if in.UpdateInterval == 0 {
		in.UpdateInterval = 5 * time.Minute
	}
	if in.FetchTimeout == 0 {
		in.FetchTimeout = 30 * time.Second
	}
	if in.NearbyRadiusM == 0 {
		in.NearbyRadiusM = 500
	}
	if in.NearbyMaxResults == 0 {
		in.NearbyMaxResults = 8
	}
}

// StationError reports one monitored-station token that failed to resolve.
type StationError struct {
	Query      string
	Kind       station.ResolutionKind
	Candidates []string
}

func (e *StationError) Error() string {
	switch e.Kind {
	case station.Ambiguous:
		return fmt.Sprintf("station %q is ambiguous, matches %s", e.Query, strings.Join(e.Candidates, ", "))
	default:
		return fmt.Sprintf("station %q not found", e.Query)
	}
}

// Unwrap maps the resolution outcome onto the station sentinel errors.
func (e *StationError) Unwrap() error {
	if e.Kind == station.Ambiguous {
		return station.ErrAmbiguous
	}
	return station.ErrNotFound
}

// Validate checks the instance and resolves every monitored-station token
// against the directory snapshot, returning the canonical codes. Ambiguous
// and unknown tokens are configuration-time errors.
func (in *Instance) Validate(directory *station.Directory) ([]string, error) {
	in.FillDefaults()

	switch in.Mode {
	case ModeAPI:
		if in.APIKey == "" {
			return nil, fmt.Errorf("%w: api mode needs an api key", ErrMissingCredentials)
		}
	case ModeCookie:
		if in.Cookie == "" && (in.Username == "" || in.Password == "") {
			return nil, fmt.Errorf("%w: cookie mode needs a cookie or username/password", ErrMissingCredentials)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}

	codes := make([]string, 0, len(in.MonitoredStations))
	for _, query := range in.MonitoredStations {
		res := directory.ResolveAgainst(query)
		if res.Kind != station.Resolved {
			return nil, &StationError{Query: query, Kind: res.Kind, Candidates: res.Candidates}
		}
		codes = append(codes, res.Code)
	}
	return codes, nil
}
