package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/embed"
)

// ErrNoMatch is returned by Resolve when the catalog is empty. A non-empty
// catalog always resolves to the nearest entry; callers treat a poor match as
// a soft failure, not an error.
var ErrNoMatch = errors.New("no matching document in catalog")

// SearchFilter constrains content search. Zero-valued fields are
// unconstrained; set fields combine with AND.
type SearchFilter struct {
	Title string
	Topic string
	Kind  string
	// Section restricts to one section ordinal within a document. Nil means
	// any section; unsectioned chunks never match a set Section.
	Section  *int
	YearFrom int
	YearTo   int
}

// Result is one content hit in ascending-distance order.
type Result struct {
	Content      string
	DocTitle     string
	Section      string
	SectionIndex int // -1 when the chunk's document has no sections
	ChunkIndex   int
	Year         int
	Distance     float64
}

// Store is the semantic index over a vector backend: the catalog collection
// resolves fuzzy document names, the content collection serves chunk search.
type Store struct {
	backend    Backend
	embedder   embed.Embedder
	catalog    string
	content    string
	maxResults int
}

// Option configures a Store.
type Option func(*Store)

// WithCollections overrides the default collection names.
func WithCollections(catalog, content string) Option {
	return func(s *Store) {
		s.catalog = catalog
		s.content = content
	}
}

// WithMaxResults sets the default search limit.
func WithMaxResults(n int) Option {
	return func(s *Store) { s.maxResults = n }
}

func New(backend Backend, embedder embed.Embedder, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		embedder:   embedder,
		catalog:    "paper_catalog",
		content:    "paper_content",
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDocument adds one document to the catalog. Idempotent per title: if the
// title already exists the call is a no-op and wasNew is false.
func (s *Store) AddDocument(ctx context.Context, doc *corpus.Document) (bool, error) {
	existing, err := s.backend.Get(ctx, s.catalog, doc.Title)
	if err != nil {
		return false, fmt.Errorf("catalog lookup: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	// Embed title plus keywords so abbreviations and partial names resolve.
	text := doc.Title
	if len(doc.Keywords) > 0 {
		text += " " + strings.Join(doc.Keywords, " ")
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("embed catalog entry: %w", err)
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}
	payload := map[string]any{
		"title":    doc.Title,
		"doc_json": string(docJSON),
	}
	if doc.Topic != "" {
		payload["topic"] = doc.Topic
	}

	err = s.backend.Upsert(ctx, s.catalog, []Point{{ID: doc.Title, Vector: vec, Payload: payload}})
	if err != nil {
		return false, fmt.Errorf("catalog upsert: %w", err)
	}
	return true, nil
}

// AddChunks bulk-indexes content chunks. Callers gate on AddDocument's wasNew
// so re-ingesting an existing title never reaches this method.
func (s *Store) AddChunks(ctx context.Context, doc *corpus.Document, chunks []corpus.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	points := make([]Point, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			"doc_title":   c.DocTitle,
			"chunk_index": c.Index,
			"content":     c.Content,
		}
		if c.Section != "" {
			payload["section"] = c.Section
		}
		if c.SectionIndex >= 0 {
			payload["section_index"] = c.SectionIndex
		}
		if doc.Topic != "" {
			payload["topic"] = doc.Topic
		}
		if doc.Kind != "" {
			payload["kind"] = doc.Kind
		}
		if doc.Year > 0 {
			payload["year"] = doc.Year
		}
		points[i] = Point{
			ID:      fmt.Sprintf("%s#%d", c.DocTitle, c.Index),
			Vector:  vecs[i],
			Payload: payload,
		}
	}
	if err := s.backend.Upsert(ctx, s.content, points); err != nil {
		return fmt.Errorf("content upsert: %w", err)
	}
	return nil
}

// Resolve maps a partial or noisy document name to the nearest catalog entry
// by embedding distance. There is no distance cutoff: a non-empty catalog
// always yields its best match.
func (s *Store) Resolve(ctx context.Context, name string) (*corpus.Document, error) {
	vec, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: embed name: %v", ErrUnavailable, err)
	}
	hits, err := s.backend.Query(ctx, s.catalog, vec, Filter{}, 1)
	if err != nil {
		return nil, wrapBackend(err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrNoMatch)
	}
	return decodeDocument(hits[0].Payload)
}

// Document returns the catalog entry for an exact title, or nil if absent.
func (s *Store) Document(ctx context.Context, title string) (*corpus.Document, error) {
	p, err := s.backend.Get(ctx, s.catalog, title)
	if err != nil {
		return nil, wrapBackend(err)
	}
	if p == nil {
		return nil, nil
	}
	return decodeDocument(p.Payload)
}

// Search embeds the query, applies the filter as a payload pre-filter and
// returns up to limit results in ascending distance order. Zero results is an
// empty slice, not an error.
func (s *Store) Search(ctx context.Context, query string, f SearchFilter, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}
	hits, err := s.backend.Query(ctx, s.content, vec, f.backendFilter(), limit)
	if err != nil {
		return nil, wrapBackend(err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			Content:      payloadString(h.Payload, "content"),
			DocTitle:     payloadString(h.Payload, "doc_title"),
			Section:      payloadString(h.Payload, "section"),
			SectionIndex: payloadInt(h.Payload, "section_index", -1),
			ChunkIndex:   payloadInt(h.Payload, "chunk_index", 0),
			Year:         payloadInt(h.Payload, "year", 0),
			Distance:     h.Distance,
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the number of catalog entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.backend.Count(ctx, s.catalog)
	if err != nil {
		return 0, wrapBackend(err)
	}
	return n, nil
}

// Titles returns every indexed document title.
func (s *Store) Titles(ctx context.Context) ([]string, error) {
	points, err := s.backend.List(ctx, s.catalog)
	if err != nil {
		return nil, wrapBackend(err)
	}
	titles := make([]string, 0, len(points))
	for _, p := range points {
		titles = append(titles, p.ID)
	}
	sort.Strings(titles)
	return titles, nil
}

// Topics returns the sorted set of distinct classification tags.
func (s *Store) Topics(ctx context.Context) ([]string, error) {
	points, err := s.backend.List(ctx, s.catalog)
	if err != nil {
		return nil, wrapBackend(err)
	}
	seen := make(map[string]bool)
	for _, p := range points {
		if t := payloadString(p.Payload, "topic"); t != "" {
			seen[t] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics, nil
}

func (f SearchFilter) backendFilter() Filter {
	out := Filter{Match: map[string]string{}}
	if f.Title != "" {
		out.Match["doc_title"] = f.Title
	}
	if f.Topic != "" {
		out.Match["topic"] = f.Topic
	}
	if f.Kind != "" {
		out.Match["kind"] = f.Kind
	}
	if f.Section != nil {
		// Match is string-keyed, so an exact ordinal is a degenerate range.
		ord := float64(*f.Section)
		out.Ranges = append(out.Ranges, Range{Key: "section_index", Min: &ord, Max: &ord})
	}
	if f.YearFrom > 0 || f.YearTo > 0 {
		r := Range{Key: "year"}
		if f.YearFrom > 0 {
			min := float64(f.YearFrom)
			r.Min = &min
		}
		if f.YearTo > 0 {
			max := float64(f.YearTo)
			r.Max = &max
		}
		out.Ranges = append(out.Ranges, r)
	}
	return out
}

func decodeDocument(payload map[string]any) (*corpus.Document, error) {
	raw := payloadString(payload, "doc_json")
	if raw == "" {
		return nil, fmt.Errorf("catalog payload missing doc_json")
	}
	var doc corpus.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode catalog entry: %w", err)
	}
	return &doc, nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]any, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func wrapBackend(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
