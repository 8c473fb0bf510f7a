package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/store"
)

// SearchTool searches the indexed literature. A paper_title argument is
// resolved against the catalog first so the model can name papers loosely.
type SearchTool struct {
	store *store.Store
	limit int
}

func NewSearchTool(s *store.Store, limit int) *SearchTool {
	if limit <= 0 {
		limit = 5
	}
	return &SearchTool{store: s, limit: limit}
}

func (t *SearchTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "search_papers",
		Description: "Search the indexed medical literature for passages relevant to a query. Optionally restrict the search to one paper, a section ordinal, a topic, a paper type, or a year range.",
		InputSchema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query": {
					Type:        "string",
					Description: "What to look for. Full questions work better than keywords.",
				},
				"paper_title": {
					Type:        "string",
					Description: "Restrict to one paper. Partial or approximate titles are resolved to the closest indexed paper.",
				},
				"topic": {
					Type:        "string",
					Description: "Restrict to papers tagged with this topic.",
				},
				"paper_type": {
					Type:        "string",
					Description: "Restrict to a paper type, e.g. research_paper or course_transcript.",
				},
				"section_index": {
					Type:        "integer",
					Description: "Restrict to one section of a paper by its ordinal, e.g. 0 for the abstract or a lesson number.",
				},
				"min_year": {
					Type:        "integer",
					Description: "Only include papers published in or after this year.",
				},
				"max_year": {
					Type:        "integer",
					Description: "Only include papers published in or before this year.",
				},
			},
			Required: []string{"query"},
		},
	}
}

type searchArgs struct {
	Query        string `json:"query"`
	PaperTitle   string `json:"paper_title"`
	Topic        string `json:"topic"`
	PaperType    string `json:"paper_type"`
	SectionIndex *int   `json:"section_index"`
	MinYear      int    `json:"min_year"`
	MaxYear      int    `json:"max_year"`
}

// Execute runs the search. An empty result set and an unresolvable paper name
// both return an explanatory message for the model, not an error.
func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	var args searchArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return Result{}, fmt.Errorf("decode search arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return Result{}, fmt.Errorf("search requires a query")
	}

	filter := store.SearchFilter{
		Topic:    args.Topic,
		Kind:     args.PaperType,
		Section:  args.SectionIndex,
		YearFrom: args.MinYear,
		YearTo:   args.MaxYear,
	}

	if args.PaperTitle != "" {
		doc, err := t.store.Resolve(ctx, args.PaperTitle)
		if errors.Is(err, store.ErrNoMatch) {
			return Result{Content: fmt.Sprintf("No paper matching %q found in the catalog.", args.PaperTitle)}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("resolve paper title: %w", err)
		}
		filter.Title = doc.Title
	}

	hits, err := t.store.Search(ctx, args.Query, filter, t.limit)
	if err != nil {
		return Result{}, fmt.Errorf("content search: %w", err)
	}
	if len(hits) == 0 {
		return Result{Content: emptyMessage(args, filter)}, nil
	}

	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if h.Section != "" {
			fmt.Fprintf(&b, "[%s | %s]\n", h.DocTitle, h.Section)
		} else {
			fmt.Fprintf(&b, "[%s]\n", h.DocTitle)
		}
		b.WriteString(h.Content)
	}

	sources, err := t.sourcesFor(ctx, hits)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: b.String(), Sources: sources}, nil
}

// sourcesFor builds one citation per distinct paper, in first-hit order.
func (t *SearchTool) sourcesFor(ctx context.Context, hits []store.Result) ([]corpus.Source, error) {
	var sources []corpus.Source
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.DocTitle] {
			continue
		}
		seen[h.DocTitle] = true

		doc, err := t.store.Document(ctx, h.DocTitle)
		if err != nil {
			return nil, fmt.Errorf("load catalog entry %q: %w", h.DocTitle, err)
		}
		if doc == nil {
			sources = append(sources, corpus.Source{Text: h.DocTitle})
			continue
		}
		sources = append(sources, corpus.Source{Text: doc.SourceLabel(), URL: doc.URL()})
	}
	return sources, nil
}

func emptyMessage(args searchArgs, f store.SearchFilter) string {
	var parts []string
	if f.Title != "" {
		parts = append(parts, fmt.Sprintf("paper %q", f.Title))
	}
	if f.Topic != "" {
		parts = append(parts, fmt.Sprintf("topic %q", f.Topic))
	}
	if f.Kind != "" {
		parts = append(parts, fmt.Sprintf("type %q", f.Kind))
	}
	if f.Section != nil {
		parts = append(parts, fmt.Sprintf("section %d", *f.Section))
	}
	if f.YearFrom > 0 || f.YearTo > 0 {
		parts = append(parts, fmt.Sprintf("years %s", yearRange(f.YearFrom, f.YearTo)))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("No passages matching %q were found in the index.", args.Query)
	}
	return fmt.Sprintf("No passages matching %q were found within %s. Try widening the search.",
		args.Query, strings.Join(parts, ", "))
}

func yearRange(from, to int) string {
	switch {
	case from > 0 && to > 0:
		return fmt.Sprintf("%d-%d", from, to)
	case from > 0:
		return fmt.Sprintf("%d onward", from)
	default:
		return fmt.Sprintf("up to %d", to)
	}
}
