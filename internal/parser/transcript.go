package parser

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
)

// TranscriptParser handles plain-text files. Course transcripts carry a
// "Course Title:" header block and "Lesson N:" markers; anything else is
// treated as a single unsectioned document titled by filename.
type TranscriptParser struct{}

var lessonRe = regexp.MustCompile(`^Lesson\s+(\d+)\s*:\s*(.+)$`)

func (p *TranscriptParser) Parse(r io.Reader, filename string) (*corpus.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if isCourseTranscript(lines) {
		return parseCourseTranscript(lines)
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	doc := &corpus.Document{Title: titleFromFilename(filename)}
	if text == "" {
		return doc, fmt.Errorf("%q: %w", doc.Title, ErrNoContent)
	}
	// No internal structure: one untitled section with no ordinal.
	doc.Sections = []corpus.Section{{Index: -1, Text: text}}
	return doc, nil
}

func isCourseTranscript(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.HasPrefix(line, "Course Title:")
	}
	return false
}

func parseCourseTranscript(lines []string) (*corpus.Document, error) {
	doc := &corpus.Document{}

	// Header block: key-value lines until the first lesson marker.
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if lessonRe.MatchString(line) {
			break
		}
		switch {
		case strings.HasPrefix(line, "Course Title:"):
			doc.Title = strings.TrimSpace(strings.TrimPrefix(line, "Course Title:"))
		case strings.HasPrefix(line, "Course Link:"):
			doc.Link = strings.TrimSpace(strings.TrimPrefix(line, "Course Link:"))
		case strings.HasPrefix(line, "Course Instructor:"):
			doc.Instructor = strings.TrimSpace(strings.TrimPrefix(line, "Course Instructor:"))
			doc.Authors = []string{doc.Instructor}
		}
	}
	if doc.Title == "" {
		return nil, fmt.Errorf("%w: missing Course Title header", ErrMalformed)
	}

	var current *corpus.Section
	var body []string
	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(body, "\n"))
			doc.Sections = append(doc.Sections, *current)
		}
		body = body[:0]
	}

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if m := lessonRe.FindStringSubmatch(line); m != nil {
			flush()
			ordinal, _ := strconv.Atoi(m[1])
			current = &corpus.Section{Index: ordinal, Title: m[2]}
			continue
		}
		if current != nil && strings.HasPrefix(line, "Lesson Link:") && current.Link == "" {
			current.Link = strings.TrimSpace(strings.TrimPrefix(line, "Lesson Link:"))
			continue
		}
		body = append(body, lines[i])
	}
	flush()

	if !hasBody(doc) {
		return doc, fmt.Errorf("%q: %w", doc.Title, ErrNoContent)
	}
	return doc, nil
}
