package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML course pages. The <title> tag (or first <h1>)
// becomes the document title; h1-h6 headings start sections.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrMalformed, err)
	}

	doc := &corpus.Document{Title: titleFromFilename(filename)}
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	var sections []corpus.Section
	var current *corpus.Section
	var body strings.Builder

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

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if headingLevel(n.Data) > 0 {
				flush()
				current = &corpus.Section{Title: textContent(n)}
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "p", "li", "td", "blockquote":
				if t := textContent(n); t != "" {
					if body.Len() > 0 {
						body.WriteString("\n\n")
					}
					body.WriteString(t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if b := findBody(root); b != nil {
		walk(b)
	} else {
		walk(root)
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

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
