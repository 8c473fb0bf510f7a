package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. Pages become sections since PDF text
// extraction carries no reliable heading structure.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "medrag-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	text, err := extractPDFText(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: extract pdf text: %v", ErrMalformed, err)
	}

	doc := &corpus.Document{Title: titleFromFilename(filename)}

	ordinal := 0
	for i, page := range strings.Split(text, "\f") {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		doc.Sections = append(doc.Sections, corpus.Section{
			Index: ordinal,
			Title: fmt.Sprintf("Page %d", i+1),
			Text:  page,
		})
		ordinal++
	}

	if !hasBody(doc) {
		return doc, fmt.Errorf("%q: %w", doc.Title, ErrNoContent)
	}
	return doc, nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f") // Form feed as page separator.
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}
