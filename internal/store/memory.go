package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend using brute-force cosine distance.
// It is the development and test backend; Qdrant serves production.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]map[string]Point)}
}

func (b *MemoryBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		b.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (b *MemoryBackend) Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]Scored, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var hits []Scored
	for _, p := range b.collections[collection] {
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, Scored{Point: p, Distance: cosineDistance(vector, p.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *MemoryBackend) Get(ctx context.Context, collection, id string) (*Point, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (b *MemoryBackend) List(ctx context.Context, collection string) ([]Point, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Point
	for _, p := range b.collections[collection] {
		out = append(out, Point{ID: p.ID, Payload: p.Payload})
	}
	return out, nil
}

func (b *MemoryBackend) Count(ctx context.Context, collection string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.collections[collection]), nil
}

func matches(payload map[string]any, f Filter) bool {
	for key, want := range f.Match {
		got, ok := payload[key].(string)
		if !ok || got != want {
			return false
		}
	}
	for _, r := range f.Ranges {
		v, ok := asFloat(payload[r.Key])
		if !ok {
			return false
		}
		if r.Min != nil && v < *r.Min {
			return false
		}
		if r.Max != nil && v > *r.Max {
			return false
		}
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// cosineDistance is 1 - cosine similarity, clamped to [0, 2].
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	if d < 0 {
		return 0
	}
	return d
}
