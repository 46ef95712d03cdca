// Package filter holds the pure predicates the dashboard applies to raw
// check records before they reach the stats engine or a table view.
package filter

import (
	"strings"

	"github.com/watchboard/watchboard/internal/domain"
)

// Predicate reports whether a record passes a filter.
type Predicate func(domain.CheckRecord) bool

// Lights matches records whose traffic light is in the given set. An empty
// set matches everything (no filter selected).
func Lights(set ...domain.TrafficLight) Predicate {
	if len(set) == 0 {
		return func(domain.CheckRecord) bool { return true }
	}
	allowed := make(map[domain.TrafficLight]bool, len(set))
	for _, l := range set {
		allowed[l] = true
	}
	return func(r domain.CheckRecord) bool { return allowed[r.TrafficLight] }
}

// StatusRange matches records with a present HTTP status in [lo, hi].
// Records without a status never match.
func StatusRange(lo, hi int) Predicate {
	return func(r domain.CheckRecord) bool {
		return r.HTTPStatus != nil && *r.HTTPStatus >= lo && *r.HTTPStatus <= hi
	}
}

// Search matches records whose URL contains the query, case-insensitive.
// An empty query matches everything.
func Search(q string) Predicate {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return func(domain.CheckRecord) bool { return true }
	}
	return func(r domain.CheckRecord) bool {
		return strings.Contains(strings.ToLower(r.URL), q)
	}
}

// All combines predicates conjunctively.
func All(ps ...Predicate) Predicate {
	return func(r domain.CheckRecord) bool {
		for _, p := range ps {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Apply returns the records passing p, in input order.
func Apply(records []domain.CheckRecord, p Predicate) []domain.CheckRecord {
	out := make([]domain.CheckRecord, 0, len(records))
	for _, r := range records {
		if p(r) {
			out = append(out, r)
		}
	}
	return out
}
