package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Heading-styled paragraphs start sections;
// the first Heading1 becomes the document title.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "medrag-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	wordDoc, err := docx.Parse(tmp, int64(size))
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx: %v", ErrMalformed, err)
	}

	doc := &corpus.Document{Title: titleFromFilename(filename)}

	var sections []corpus.Section
	var current *corpus.Section
	var body strings.Builder
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

	for _, item := range wordDoc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		level := docxHeadingLevel(para)
		text := docxParagraphText(para)
		switch {
		case level == 1 && !titleSeen && text != "":
			titleSeen = true
			doc.Title = text
		case level > 0 && text != "":
			flush()
			current = &corpus.Section{Title: text}
		case text != "":
			if body.Len() > 0 {
				body.WriteString("\n\n")
			}
			body.WriteString(text)
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

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := para.Properties.Style.Val
	for level := 1; level <= 6; level++ {
		if strings.EqualFold(style, fmt.Sprintf("Heading%d", level)) ||
			strings.EqualFold(style, fmt.Sprintf("heading %d", level)) {
			return level
		}
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
