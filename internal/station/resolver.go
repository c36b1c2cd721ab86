package station

import (
	"strings"
)

// ResolutionKind classifies the outcome of resolving a user-supplied
// station identifier.
type ResolutionKind int

const (
	// Resolved means the query matched exactly one station.
	Resolved ResolutionKind = iota

	// Ambiguous means a numeric query matched more than one station.
	// Multiple stations can share a display number, so the caller must
	// ask for the canonical code instead of picking one.
	Ambiguous

	// NotFound means the query matched nothing in the directory.
	NotFound
)

// Resolution is the result of resolving one station query.
type Resolution struct {
	Kind ResolutionKind

	// Code is set when Kind == Resolved.
	Code string

	// Candidates holds every matching code when Kind == Ambiguous.
	Candidates []string
}

// Resolve maps a user-supplied token, either a canonical "ST-" code or a bare
// display number, against a station list. Numeric matches are never collapsed
// to a single guess: two stations sharing a number yield Ambiguous.
func Resolve(query string, stations []Station) Resolution {
	query = strings.TrimSpace(query)
	if query == "" {
		return Resolution{Kind: NotFound}
	}

	if IsCode(query) {
		code := NormalizeCode(query)
		for _, s := range stations {
			if s.Code == code {
				return Resolution{Kind: Resolved, Code: code}
			}
		}
		return Resolution{Kind: NotFound}
	}

	var candidates []string
	for _, s := range stations {
		if s.NumericID == query {
			candidates = append(candidates, s.Code)
		}
	}
	switch len(candidates) {
	case 0:
		return Resolution{Kind: NotFound}
	case 1:
		return Resolution{Kind: Resolved, Code: candidates[0]}
	default:
		return Resolution{Kind: Ambiguous, Candidates: candidates}
	}
}

// ResolveAgainst resolves a query through the directory's lookup indices,
// without copying the snapshot. Semantics match Resolve.
func (d *Directory) ResolveAgainst(query string) Resolution {
	query = strings.TrimSpace(query)
	if query == "" {
		return Resolution{Kind: NotFound}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if IsCode(query) {
		code := NormalizeCode(query)
		if _, ok := d.byCode[code]; ok {
			return Resolution{Kind: Resolved, Code: code}
		}
		return Resolution{Kind: NotFound}
	}

	matches := d.byNumeric[query]
	switch len(matches) {
	case 0:
		return Resolution{Kind: NotFound}
	case 1:
		return Resolution{Kind: Resolved, Code: matches[0].Code}
	default:
		candidates := make([]string, len(matches))
		for i, s := range matches {
			candidates[i] = s.Code
		}
		return Resolution{Kind: Ambiguous, Candidates: candidates}
	}
}
