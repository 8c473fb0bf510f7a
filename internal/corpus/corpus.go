// Package corpus holds the data model shared by the parsing, indexing and
// retrieval layers: a Document (one indexed paper or course), its Sections,
// the Chunks derived from them, and the Source citations surfaced to users.
package corpus

import (
	"fmt"
	"strings"
)

// Document is one indexed entity. Title is the only identity: ingestion is
// idempotent on it, and chunks reference their owner by title string alone.
type Document struct {
	Title      string   // Unique human-readable title (primary key)
	PMCID      string   // PubMed Central ID, e.g. "PMC8129774"
	DOI        string   // Digital Object Identifier
	Venue      string   // Journal or course provider
	Year       int      // Publication year (0 if unknown)
	Authors    []string // Author or instructor names
	Kind       string   // e.g. "Review", "Meta-Analysis"
	Topic      string   // Classification tag, e.g. "Type 2 Diabetes Management"
	Keywords   []string
	Sections   []Section
	Instructor string // Course variant attribution (empty for papers)
	Link       string // Direct link for sources without PMC/DOI identifiers
}

// Section is a named, ordered unit of document content.
type Section struct {
	Index int    // Stable 0-based ordinal within the document
	Title string // Section heading or lesson title
	Link  string // Optional external link (lesson URL), may be empty
	Text  string // Raw section text to be chunked
}

// Chunk is one retrievable unit of text. Content already carries the
// contextual header identifying its owner, so it is readable on retrieval
// without a metadata lookup.
type Chunk struct {
	Content      string
	DocTitle     string
	Section      string
	SectionIndex int // -1 when the document has no section structure
	Index        int // 0-based, monotonically increasing per document
}

// Source is a de-duplicated per-document citation attached to an answer.
type Source struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// URL resolves a stable link for the document: PMC first, DOI second,
// empty when neither identifier is present.
func (d *Document) URL() string {
	if d.PMCID != "" {
		return fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/", d.PMCID)
	}
	if d.DOI != "" {
		return fmt.Sprintf("https://doi.org/%s", d.DOI)
	}
	return d.Link
}

// SourceLabel renders the citation label shown to users:
// "Title - Year - Venue", omitting parts that are unknown.
func (d *Document) SourceLabel() string {
	parts := []string{d.Title}
	if d.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", d.Year))
	}
	if d.Venue != "" {
		parts = append(parts, d.Venue)
	}
	return strings.Join(parts, " - ")
}
