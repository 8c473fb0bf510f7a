package store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// QdrantBackend is a minimal REST client for Qdrant. Collections are created
// lazily on first upsert using cosine distance, so the embedding dimension
// never needs to be configured up front.
type QdrantBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	created map[string]bool
}

func NewQdrantBackend(baseURL, apiKey string) *QdrantBackend {
	return &QdrantBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		created: make(map[string]bool),
	}
}

func (b *QdrantBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := b.ensureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	reqPoints := make([]map[string]any, len(points))
	for i, p := range points {
		// Qdrant only accepts integer or UUID point ids, so the natural key
		// is hashed and kept in the payload for reads.
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["point_key"] = p.ID
		reqPoints[i] = map[string]any{
			"id":      pointUUID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		}
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", b.baseURL, collection)
	return b.do(ctx, http.MethodPut, url, map[string]any{"points": reqPoints}, nil)
}

func (b *QdrantBackend) Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]Scored, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := qdrantFilter(filter); qf != nil {
		req["filter"] = qf
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", b.baseURL, collection)
	if err := b.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Scored, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Qdrant reports cosine similarity; convert to distance.
		d := 1 - r.Score
		if d < 0 {
			d = 0
		}
		hits = append(hits, Scored{
			Point:    Point{ID: naturalKey(r.ID, r.Payload), Payload: r.Payload},
			Distance: d,
		})
	}
	return hits, nil
}

func (b *QdrantBackend) Get(ctx context.Context, collection, id string) (*Point, error) {
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", b.baseURL, collection)
	err := b.do(ctx, http.MethodPost, url, map[string]any{"ids": []string{pointUUID(id)}, "with_payload": true}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	return &Point{ID: naturalKey(resp.Result[0].ID, resp.Result[0].Payload), Payload: resp.Result[0].Payload}, nil
}

func (b *QdrantBackend) List(ctx context.Context, collection string) ([]Point, error) {
	var out []Point
	var offset any
	for {
		req := map[string]any{"limit": 512, "with_payload": true}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      any            `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", b.baseURL, collection)
		if err := b.do(ctx, http.MethodPost, url, req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, Point{ID: naturalKey(p.ID, p.Payload), Payload: p.Payload})
		}
		if resp.Result.NextPageOffset == nil {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (b *QdrantBackend) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", b.baseURL, collection)
	if err := b.do(ctx, http.MethodPost, url, map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (b *QdrantBackend) ensureCollection(ctx context.Context, collection string, dimension int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created[collection] {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", b.baseURL, collection)
	// Qdrant answers 409 when the collection already exists; treat it as ok.
	if err := b.do(ctx, http.MethodPut, url, body, nil); err != nil && !isConflict(err) {
		return err
	}
	b.created[collection] = true
	return nil
}

// pointUUID derives a stable UUID from a natural key. Qdrant rejects
// arbitrary string ids with a 400.
func pointUUID(key string) string {
	sum := md5.Sum([]byte(key))
	sum[6] = (sum[6] & 0x0f) | 0x40
	sum[8] = (sum[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// naturalKey recovers the caller's id from the payload written by Upsert.
func naturalKey(id any, payload map[string]any) string {
	if k, ok := payload["point_key"].(string); ok {
		return k
	}
	return fmt.Sprint(id)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.code, e.body)
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusConflict
}

func (b *QdrantBackend) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func qdrantFilter(f Filter) map[string]any {
	if f.IsZero() {
		return nil
	}
	var must []map[string]any
	for key, v := range f.Match {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": v},
		})
	}
	for _, r := range f.Ranges {
		rng := map[string]any{}
		if r.Min != nil {
			rng["gte"] = *r.Min
		}
		if r.Max != nil {
			rng["lte"] = *r.Max
		}
		must = append(must, map[string]any{"key": r.Key, "range": rng})
	}
	return map[string]any{"must": must}
}
