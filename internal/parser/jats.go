package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
)

// JATSParser handles medical research papers in JATS XML form.
type JATSParser struct{}

// restrictionNotice appears as an XML comment in PMC exports whose publisher
// forbids full-text distribution; such files carry only the abstract.
const restrictionNotice = "does not allow downloading of the full text in XML form"

var whitespaceRe = regexp.MustCompile(`\s+`)

func (p *JATSParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	root, restricted, err := decodeXML(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty xml document", ErrMalformed)
	}

	title := normalizeSpace(childText(root.find("article-title")))
	if title == "" {
		return nil, fmt.Errorf("%w: missing article-title", ErrMalformed)
	}

	doc := &corpus.Document{
		Title:    title,
		PMCID:    articleID(root, "pmcid"),
		DOI:      articleID(root, "doi"),
		Venue:    childText(root.find("journal-title")),
		Authors:  parseAuthors(root),
		Keywords: parseKeywords(root),
	}
	if y := childText(root.findPath("pub-date", "year")); y != "" {
		if n, err := strconv.Atoi(y); err == nil {
			doc.Year = n
		}
	}
	if sub := root.findAttr("subj-group", "subj-group-type", "heading"); sub != nil {
		doc.Kind = childText(sub.find("subject"))
	}

	body := root.find("body")
	if restricted || body == nil || len(body.children) == 0 {
		return doc, fmt.Errorf("%q: %w", title, ErrNoContent)
	}

	// The abstract is indexed as its own leading section so it is retrievable
	// alongside body content.
	ordinal := 0
	if abstract := normalizeSpace(childText(root.find("abstract"))); abstract != "" {
		doc.Sections = append(doc.Sections, corpus.Section{
			Index: ordinal,
			Title: "Abstract",
			Text:  abstract,
		})
		ordinal++
	}

	for _, sec := range body.findAll("sec") {
		secTitle := strings.TrimSpace(directChildText(sec, "title"))
		if secTitle == "" {
			secTitle = "Untitled Section"
		}
		var parts []string
		for _, para := range sec.findAll("p") {
			if t := childText(para); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			continue
		}
		doc.Sections = append(doc.Sections, corpus.Section{
			Index: ordinal,
			Title: secTitle,
			Text:  normalizeSpace(strings.Join(parts, " ")),
		})
		ordinal++
	}

	if !hasBody(doc) {
		return doc, fmt.Errorf("%q: %w", title, ErrNoContent)
	}
	return doc, nil
}

func articleID(root *xmlNode, idType string) string {
	return childText(root.findAttr("article-id", "pub-id-type", idType))
}

func parseAuthors(root *xmlNode) []string {
	group := root.find("contrib-group")
	if group == nil {
		return nil
	}
	var authors []string
	for _, contrib := range group.findAll("contrib") {
		if contrib.attrs["contrib-type"] != "author" {
			continue
		}
		surname := strings.TrimSpace(childText(contrib.find("surname")))
		if surname == "" {
			continue
		}
		given := strings.TrimSpace(childText(contrib.find("given-names")))
		if given != "" {
			authors = append(authors, given+" "+surname)
		} else {
			authors = append(authors, surname)
		}
	}
	return authors
}

func parseKeywords(root *xmlNode) []string {
	var keywords []string
	for _, kwd := range root.findAll("kwd") {
		if t := childText(kwd); t != "" {
			keywords = append(keywords, t)
		}
	}
	return keywords
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// xmlNode is a minimal DOM built from the token stream. Character data is
// stored as unnamed child nodes so text interleaved with markup (italics,
// cross-references) keeps its document order.
type xmlNode struct {
	name     string
	attrs    map[string]string
	text     string // set only on unnamed text nodes
	children []*xmlNode
}

// decodeXML builds the element tree and reports whether the publisher
// restriction comment was seen anywhere in the stream.
func decodeXML(r io.Reader) (*xmlNode, bool, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var root *xmlNode
	var stack []*xmlNode
	restricted := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local, attrs: map[string]string{}}
			for _, a := range t.Attr {
				node.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, false, fmt.Errorf("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, false, fmt.Errorf("unbalanced end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, &xmlNode{text: string(t)})
			}
		case xml.Comment:
			if strings.Contains(string(t), restrictionNotice) {
				restricted = true
			}
		}
	}
	if len(stack) != 0 {
		return nil, false, fmt.Errorf("unclosed element %s", stack[len(stack)-1].name)
	}
	return root, restricted, nil
}

// find returns the first descendant with the given name, depth-first.
func (n *xmlNode) find(name string) *xmlNode {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// findPath finds the first descendant matching the first name, then resolves
// the remaining names as direct children.
func (n *xmlNode) findPath(names ...string) *xmlNode {
	if len(names) == 0 {
		return nil
	}
	cur := n.find(names[0])
	for _, name := range names[1:] {
		if cur == nil {
			return nil
		}
		next := (*xmlNode)(nil)
		for _, c := range cur.children {
			if c.name == name {
				next = c
				break
			}
		}
		cur = next
	}
	return cur
}

// findAttr returns the first descendant with the given name whose attribute
// matches the wanted value.
func (n *xmlNode) findAttr(name, attr, want string) *xmlNode {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name && c.attrs[attr] == want {
			return c
		}
		if found := c.findAttr(name, attr, want); found != nil {
			return found
		}
	}
	return nil
}

// findAll collects every descendant with the given name in document order.
func (n *xmlNode) findAll(name string) []*xmlNode {
	if n == nil {
		return nil
	}
	var out []*xmlNode
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// childText concatenates the text of a node and all its descendants.
func childText(n *xmlNode) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var walk func(*xmlNode)
	walk = func(node *xmlNode) {
		buf.WriteString(node.text)
		for _, c := range node.children {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

// directChildText returns the text of the first direct child with the name.
func directChildText(n *xmlNode, name string) string {
	if n == nil {
		return ""
	}
	for _, c := range n.children {
		if c.name == name {
			return childText(c)
		}
	}
	return ""
}
