package geo

import (
	"context"
	"sort"
)

// DefaultK is the number of results returned when the caller does not ask for a count.
const DefaultK = 5

// RankedResult is a record with its distance from the query point.
type RankedResult struct {
	Record
	DistanceMeters float64 `json:"distanceMeters"`
}

// Loader provides the records to rank.
type Loader interface {
	Load(ctx context.Context) []Record
}

// Resolver answers nearest-AED queries over an index.
type Resolver struct {
	index    Loader
	defaultK int
}

// NewResolver creates a resolver. defaultK <= 0 falls back to DefaultK.
func NewResolver(index Loader, defaultK int) *Resolver {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Resolver{index: index, defaultK: defaultK}
}

// Query returns at most k records ordered by distance from (lat, lon), ties kept in dataset order.
func (r *Resolver) Query(ctx context.Context, lat, lon float64, k int) []RankedResult {
	if k <= 0 {
		k = r.defaultK
	}

	records := r.index.Load(ctx)
	ranked := make([]RankedResult, len(records))
	for n, rec := range records {
		ranked[n] = RankedResult{
			Record:         rec,
			DistanceMeters: Distance(lat, lon, rec.Latitude, rec.Longitude),
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].DistanceMeters < ranked[b].DistanceMeters
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
