// Package parser converts raw document bytes into a corpus.Document with an
// ordered list of sections ready for chunking. Parsing is pure: a parser
// consumes only the reader it is given.
package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
)

// ErrMalformed signals that required header metadata could not be extracted.
// Callers skip the document and continue the batch.
var ErrMalformed = errors.New("malformed document")

// ErrNoContent signals a metadata-only document (e.g. an abstract-only paper
// whose publisher restricts full text). Distinct from ErrMalformed so callers
// can log-and-skip instead of treating it as a defect.
var ErrNoContent = errors.New("document has no body content")

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*corpus.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".xml":  true,
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xml":
		return &JATSParser{}, nil
	case ".txt":
		return &TranscriptParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// hasBody reports whether at least one section carries text.
func hasBody(doc *corpus.Document) bool {
	for _, sec := range doc.Sections {
		if strings.TrimSpace(sec.Text) != "" {
			return true
		}
	}
	return false
}

// titleFromFilename strips the extension to form a fallback title.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
