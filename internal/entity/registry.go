// Package entity defines the narrow surface through which the core talks to
// the host platform's entity registry. The core never stores entities itself;
// it registers, updates and removes them through this interface and leaves
// lifecycle and persistence to the host.
package entity

import "fmt"

// Kind classifies an entity for the host platform.
type Kind string

// Entity kinds published by the integration.
const (
	KindFavoriteStation Kind = "favorite_station"
	KindStationSensor   Kind = "station_sensor"
	KindHistorySensor   Kind = "history_sensor"
	KindTicketSensor    Kind = "ticket_sensor"
	KindRefreshButton   Kind = "refresh_button"
)

// State is the opaque state payload handed to the host on register/update.
type State map[string]any

// Registry is implemented by the host platform.
type Registry interface {
	Register(kind Kind, uniqueKey string, initial State) error
	Unregister(uniqueKey string) error
	Update(uniqueKey string, state State) error
}

// FavoriteKey returns the stable unique key for a favorite-station entity.
// Keys are scoped by instance so two configured accounts never collide.
func FavoriteKey(instanceID, stationCode string) string {
	return fmt.Sprintf("%s:favorite:%s", instanceID, stationCode)
}

// SensorKey returns the stable unique key for a per-instance sensor entity.
func SensorKey(instanceID string, kind Kind) string {
	return fmt.Sprintf("%s:%s", instanceID, kind)
}
