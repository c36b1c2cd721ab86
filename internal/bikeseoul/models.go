package bikeseoul

import (
	"strings"
	"time"
)

// RentStatus is the member status JSON the site answers on every page load.
// It doubles as the session validity probe: loginYn flips to anything but
// "Y" once the cookie has expired.
type RentStatus struct {
	LoginYn  string `json:"loginYn"`
	MemberYn string `json:"memberYn"`
	RentYn   string `json:"rentYn"`
}

// LoginOK reports whether the status marks the session as authenticated.
// known is false when the payload carried no verdict at all.
func (s RentStatus) LoginOK() (ok, known bool) {
	login := strings.ToUpper(strings.TrimSpace(s.LoginYn))
	if login == "" {
		return false, false
	}
	if login != "Y" {
		return false, true
	}
	member := strings.ToUpper(strings.TrimSpace(s.MemberYn))
	if member != "" && member != "Y" {
		return false, true
	}
	return true, true
}

// Renting reports whether a bike is currently rented on the account.
func (s RentStatus) Renting() bool {
	return strings.ToUpper(strings.TrimSpace(s.RentYn)) == "Y"
}

// Favorite is one favorite-station entry scraped from the member favorites
// page, with the dock counts shown inline.
type Favorite struct {
	// Code is the canonical station code ("ST-" + digits).
	Code string `json:"code"`

	// Name is the display name as listed, usually "no. title".
	Name string `json:"name"`

	// NumericID is the display number split from the name, if present.
	NumericID string `json:"numeric_id,omitempty"`

	// BikesGeneral and BikesSprout are the inline counts; nil when the
	// markup carried none.
	BikesGeneral *int `json:"bikes_general,omitempty"`
	BikesSprout  *int `json:"bikes_sprout,omitempty"`
}

// RideRow is one row of the ride-history table, untranslated. Times are the
// raw site-local strings; the history collector parses them.
type RideRow struct {
	Bike          string
	RentAt        string
	RentStation   string
	ReturnAt      string
	ReturnStation string
	HistoryID     string
	DistanceKm    *float64
}

// RideStats carries the aggregate figures shown above the history table
// (distance, calories, saved carbon). Keys are the site's labels.
type RideStats map[string]string

// HistoryPage is the parsed use-history page.
type HistoryPage struct {
	PeriodStart string
	PeriodEnd   string
	Stats       RideStats
	Rows        []RideRow
}

// VoucherInfo describes the active pass (voucher) on the account.
type VoucherInfo struct {
	ExpiresAt    *time.Time
	RegisteredAt *time.Time
	LastLoginAt  *time.Time
}
