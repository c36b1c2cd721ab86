// Package favorites diffs the favorite stations fetched from the member site
// against the entities currently registered for them, and applies the delta
// through the host's registration interface.
package favorites

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/entity"
)

// Delta is the set difference between fetched favorites and registered
// entities. Codes appear sorted for deterministic application and logging.
type Delta struct {
	ToAdd    []string
	ToRemove []string
}

// Empty reports whether the delta carries no work.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Reconcile computes the add/remove delta between the fetched favorite codes
// and the registered codes. Pure set difference: order-independent, and
// re-running against the post-apply registered set yields an empty delta.
func Reconcile(fetched, registered []string) Delta {
	fetchedSet := make(map[string]struct{}, len(fetched))
	for _, code := range fetched {
		if code != "" {
			fetchedSet[code] = struct{}{}
		}
	}
	registeredSet := make(map[string]struct{}, len(registered))
	for _, code := range registered {
		if code != "" {
			registeredSet[code] = struct{}{}
		}
	}

	var delta Delta
	for code := range fetchedSet {
		if _, ok := registeredSet[code]; !ok {
			delta.ToAdd = append(delta.ToAdd, code)
		}
	}
	for code := range registeredSet {
		if _, ok := fetchedSet[code]; !ok {
			delta.ToRemove = append(delta.ToRemove, code)
		}
	}
	sort.Strings(delta.ToAdd)
	sort.Strings(delta.ToRemove)
	return delta
}

// ApplierConfig holds configuration for a favorites applier.
type ApplierConfig struct {
	// InstanceID scopes entity keys to one configured instance.
	InstanceID string

	// Registry is the host platform's entity registry.
	Registry entity.Registry

	// Logger for reconciliation events.
	Logger zerolog.Logger
}

// Applier tracks the registered favorite set for one instance and pushes
// reconciliation deltas into the entity registry.
type Applier struct {
	instanceID string
	registry   entity.Registry
	logger     zerolog.Logger
	registered map[string]struct{}
}

// NewApplier creates an applier with an empty registered set.
func NewApplier(cfg ApplierConfig) *Applier {
	return &Applier{
		instanceID: cfg.InstanceID,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
		registered: make(map[string]struct{}),
	}
}

// Registered returns the codes currently registered, sorted.
func (a *Applier) Registered() []string {
	codes := make([]string, 0, len(a.registered))
	for code := range a.registered {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Apply reconciles the fetched favorites against the registered set,
// registering new entities, unregistering stale ones, and updating state on
// the survivors. Registry failures are logged per entity and do not abort
// the rest of the pass; the registered set only tracks calls that succeeded.
func (a *Applier) Apply(fetched []bikeseoul.Favorite) {
	byCode := make(map[string]bikeseoul.Favorite, len(fetched))
	codes := make([]string, 0, len(fetched))
	for _, fav := range fetched {
		if fav.Code == "" {
			continue
		}
		byCode[fav.Code] = fav
		codes = append(codes, fav.Code)
	}

	delta := Reconcile(codes, a.Registered())
	if !delta.Empty() {
		a.logger.Info().
			Strs("add", delta.ToAdd).
			Strs("remove", delta.ToRemove).
			Msg("reconciling favorite stations")
	}

	for _, code := range delta.ToRemove {
		if err := a.registry.Unregister(entity.FavoriteKey(a.instanceID, code)); err != nil {
			a.logger.Error().Err(err).Str("station", code).Msg("unregistering favorite failed")
			continue
		}
		delete(a.registered, code)
	}

	for _, code := range delta.ToAdd {
		fav := byCode[code]
		if err := a.registry.Register(entity.KindFavoriteStation, entity.FavoriteKey(a.instanceID, code), favoriteState(fav)); err != nil {
			a.logger.Error().Err(err).Str("station", code).Msg("registering favorite failed")
			continue
		}
		a.registered[code] = struct{}{}
	}

	for code := range a.registered {
		fav, ok := byCode[code]
		if !ok {
			continue
		}
		if err := a.registry.Update(entity.FavoriteKey(a.instanceID, code), favoriteState(fav)); err != nil {
			a.logger.Error().Err(err).Str("station", code).Msg("updating favorite failed")
		}
	}
}

func favoriteState(fav bikeseoul.Favorite) entity.State {
	state := entity.State{
		"station_code": fav.Code,
		"station_name": fav.Name,
	}
	if fav.NumericID != "" {
		state["station_number"] = fav.NumericID
	}
	if fav.BikesGeneral != nil {
		state["bikes_general"] = *fav.BikesGeneral
	}
	if fav.BikesSprout != nil {
		state["bikes_sprout"] = *fav.BikesSprout
	}
	return state
}
