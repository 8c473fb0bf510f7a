package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. The first level-1
// heading becomes the document title; every subsequent heading starts a new
// section. Heading nesting is flattened since retrieval filters on a single
// section ordinal.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	reader := text.NewReader(src)
	root := md.Parser().Parse(reader)

	doc := &corpus.Document{Title: titleFromFilename(filename)}

	var sections []corpus.Section
	var current *corpus.Section
	var body bytes.Buffer
	titleSeen := false

	flush := func() {
		t := strings.TrimSpace(body.String())
		body.Reset()
		if current == nil {
			if t != "" {
				sections = append(sections, corpus.Section{Title: "Introduction", Text: t})
			}
			return
		}
		current.Text = t
		sections = append(sections, *current)
		current = nil
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok {
			title := string(heading.Text(src))
			if heading.Level == 1 && !titleSeen {
				titleSeen = true
				doc.Title = title
				continue
			}
			flush()
			current = &corpus.Section{Title: title}
			continue
		}
		if t := extractText(n, src); t != "" {
			if body.Len() > 0 {
				body.WriteString("\n\n")
			}
			body.WriteString(t)
		}
	}
	flush()

	for i := range sections {
		sections[i].Index = i
	}
	doc.Sections = sections

	if !hasBody(doc) {
		return doc, fmt.Errorf("%q: %w", doc.Title, ErrNoContent)
	}
	return doc, nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
