// Package store implements the semantic index: a catalog collection for
// fuzzy document resolution and a content collection for chunk retrieval,
// both held in a vector Backend.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable wraps vector-backend connectivity failures. It propagates to
// the caller of a query as a hard failure and is never retried internally.
var ErrUnavailable = errors.New("vector backend unavailable")

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Scored is a query hit. Distance is non-negative; lower is closer.
type Scored struct {
	Point
	Distance float64
}

// Filter is an AND-combined payload predicate applied before the nearest
// neighbor search. A zero Filter matches everything.
type Filter struct {
	Match  map[string]string
	Ranges []Range
}

// Range is an inclusive numeric constraint on a payload key.
type Range struct {
	Key string
	Min *float64
	Max *float64
}

// IsZero reports whether the filter constrains anything.
func (f Filter) IsZero() bool {
	return len(f.Match) == 0 && len(f.Ranges) == 0
}

// Backend is a persistent vector collection supporting upsert-by-key and
// filtered nearest-neighbor queries.
type Backend interface {
	Upsert(ctx context.Context, collection string, points []Point) error
	// Query returns up to limit points in ascending distance order.
	// Zero results is not an error.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]Scored, error)
	// Get returns the point with the given ID, or nil if absent.
	Get(ctx context.Context, collection, id string) (*Point, error)
	// List returns every point's ID and payload (vectors omitted).
	List(ctx context.Context, collection string) ([]Point, error)
	Count(ctx context.Context, collection string) (int, error)
}
