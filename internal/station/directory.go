package station

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Directory is an in-memory snapshot of the full station list. One snapshot
// is valid for one refresh cycle; Update swaps it wholesale and rebuilds the
// lookup indices.
type Directory struct {
	mu        sync.RWMutex
	stations  []Station
	byCode    map[string]*Station
	byNumeric map[string][]*Station
	updatedAt time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byCode:    make(map[string]*Station),
		byNumeric: make(map[string][]*Station),
	}
}

// Update replaces the snapshot. Stations with duplicate codes keep the first
// occurrence; the upstream list occasionally repeats rows across pages.
func (d *Directory) Update(stations []Station) {
	byCode := make(map[string]*Station, len(stations))
	byNumeric := make(map[string][]*Station)
	kept := make([]Station, 0, len(stations))

	for _, s := range stations {
		code := NormalizeCode(s.Code)
		if code == "" {
			continue
		}
		if _, dup := byCode[code]; dup {
			continue
		}
		s.Code = code
		kept = append(kept, s)
	}
	for i := range kept {
		byCode[kept[i].Code] = &kept[i]
		if kept[i].NumericID != "" {
			byNumeric[kept[i].NumericID] = append(byNumeric[kept[i].NumericID], &kept[i])
		}
	}

	d.mu.Lock()
	d.stations = kept
	d.byCode = byCode
	d.byNumeric = byNumeric
	d.updatedAt = time.Now()
	d.mu.Unlock()
}

// Snapshot returns a copy of the current station list in upstream order.
func (d *Directory) Snapshot() []Station {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Station, len(d.stations))
	copy(out, d.stations)
	return out
}

// ByCode looks up one station by canonical code.
func (d *Directory) ByCode(code string) (Station, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byCode[NormalizeCode(code)]
	if !ok {
		return Station{}, false
	}
	return *s, true
}

// Len returns the number of stations in the current snapshot.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.stations)
}

// UpdatedAt returns when the snapshot was last replaced.
func (d *Directory) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// NearbyStation is one nearby-search result.
type NearbyStation struct {
	Station
	DistanceM float64 `json:"distance_m"`
}

// Nearby returns stations within radiusM meters of (lat, lon) holding at
// least minBikes, sorted by bike count descending then distance ascending.
// maxResults of 0 means unlimited.
func (d *Directory) Nearby(lat, lon float64, radiusM float64, minBikes, maxResults int) []NearbyStation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []NearbyStation
	for i := range d.stations {
		s := d.stations[i]
		if s.Lat == 0 && s.Lon == 0 {
			continue
		}
		dist := haversineM(lat, lon, s.Lat, s.Lon)
		if dist > radiusM || s.BikesTotal < minBikes {
			continue
		}
		out = append(out, NearbyStation{Station: s, DistanceM: math.Round(dist*10) / 10})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BikesTotal != out[j].BikesTotal {
			return out[i].BikesTotal > out[j].BikesTotal
		}
		return out[i].DistanceM < out[j].DistanceM
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusM * 2 * math.Asin(math.Sqrt(a))
}
