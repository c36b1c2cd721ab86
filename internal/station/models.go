// Package station holds the station directory and identifier resolution for
// Seoul's public bike share ("Ddareungi") rental stations.
package station

import (
	"errors"
	"regexp"
	"strings"
)

// Station errors.
var (
	ErrNotFound  = errors.New("station not found")
	ErrAmbiguous = errors.New("station identifier is ambiguous")
)

// codeRE matches canonical station codes like "ST-3685".
var codeRE = regexp.MustCompile(`^ST-\d+$`)

// numberedNameRE splits the numeric prefix out of upstream station names
// like "102. 망원역 1번출구 앞".
var numberedNameRE = regexp.MustCompile(`^\s*(\d+)(?:\s*[.)\-]|\s)\s*`)

// Station is one rental station as reported by the upstream directory.
type Station struct {
	// Code is the canonical station identifier, format "ST-" + digits.
	Code string `json:"code"`

	// NumericID is the display number embedded in the station name.
	// Not unique across the network; see Resolve.
	NumericID string `json:"numeric_id,omitempty"`

	// Name is the station title without the numeric prefix.
	Name string `json:"name"`

	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`

	// BikesGeneral counts standard bikes, BikesSprout counts the smaller
	// "새싹" (sprout) bikes.
	BikesGeneral int `json:"bikes_general"`
	BikesSprout  int `json:"bikes_sprout"`
	BikesTotal   int `json:"bikes_total"`
	BikesRepair  int `json:"bikes_repair,omitempty"`
}

// IsCode reports whether s looks like a canonical station code.
func IsCode(s string) bool {
	return codeRE.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// NormalizeCode upper-cases and trims a station code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitNumberedName splits a raw upstream station name into its numeric
// prefix and title. Returns empty number when no prefix is present.
func SplitNumberedName(raw string) (number, title string) {
	raw = strings.TrimSpace(raw)
	m := numberedNameRE.FindStringSubmatch(raw)
	if m == nil {
		return "", raw
	}
	return m[1], strings.Trim(raw[len(m[0]):], " .-")
}

// DisplayName formats a station for presentation: "102. 망원역 1번출구 앞".
func (s Station) DisplayName() string {
	if s.NumericID != "" && s.Name != "" {
		return s.NumericID + ". " + s.Name
	}
	if s.Name != "" {
		return s.Name
	}
	return s.Code
}
