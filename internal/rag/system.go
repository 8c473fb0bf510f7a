package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/medrag/internal/chunker"
	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/parser"
	"github.com/dgallion1/medrag/internal/session"
	"github.com/dgallion1/medrag/internal/store"
	"github.com/dgallion1/medrag/internal/tools"
)

const systemPrompt = `You are an AI assistant specialized in medical research literature with access to a database of peer-reviewed medical research papers and course transcripts.

IMPORTANT MEDICAL DISCLAIMER:
- You provide information from medical research for educational purposes only
- Your responses are NOT medical advice and should NOT replace consultation with qualified healthcare professionals
- Always remind users to consult with their healthcare provider for medical decisions

Search tool usage:
- Use the search tool for questions about medical conditions, treatments, clinical research, or health topics covered in the literature
- One search per query maximum
- If a search yields no results, state this clearly and explain the limitation
- You may use filters (paper title, section ordinal, topic, paper type, year range) when appropriate

Response protocol:
- Medical research questions: search the literature first, then answer from the evidence
- General health questions: use existing knowledge but search when specific evidence is requested
- Treatment questions: always cite research and include publication years
- Provide direct, evidence-based answers without describing your search process

All responses must be evidence-based, clear, balanced across conflicting findings, contextual about study limitations, and brief.`

// IngestReport describes the outcome of ingesting one document.
type IngestReport struct {
	Title      string
	ChunkCount int
	WasNew     bool
	Skipped    bool
	SkipReason string
}

// System is the service facade: ingestion on one side, query answering on the
// other.
type System struct {
	store    *store.Store
	sessions *session.Store
	client   llm.Client
	registry *tools.Registry

	chunkCfg  chunker.Config
	maxRounds int
	topicMap  map[string]string
	logger    *slog.Logger
}

// Params collects System dependencies and tuning.
type Params struct {
	Store         *store.Store
	Sessions      *session.Store
	Client        llm.Client
	SearchLimit   int
	ChunkConfig   chunker.Config
	MaxToolRounds int
	TopicMapPath  string
	Logger        *slog.Logger
}

func NewSystem(p Params) (*System, error) {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewSearchTool(p.Store, p.SearchLimit)); err != nil {
		return nil, err
	}

	topicMap := map[string]string{}
	if p.TopicMapPath != "" {
		m, err := loadTopicMap(p.TopicMapPath)
		if err != nil {
			p.Logger.Warn("topic mapping unavailable", "path", p.TopicMapPath, "error", err)
		} else {
			topicMap = m
		}
	}

	return &System{
		store:     p.Store,
		sessions:  p.Sessions,
		client:    p.Client,
		registry:  registry,
		chunkCfg:  p.ChunkConfig,
		maxRounds: p.MaxToolRounds,
		topicMap:  topicMap,
		logger:    p.Logger,
	}, nil
}

// loadTopicMap reads an optional metadata file mapping paper titles to topic
// tags: {"papers": [{"title": ..., "topic": ...}, ...]}.
func loadTopicMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta struct {
		Papers []struct {
			Title string `json:"title"`
			Topic string `json:"topic"`
		} `json:"papers"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode topic mapping: %w", err)
	}
	m := make(map[string]string, len(meta.Papers))
	for _, p := range meta.Papers {
		if p.Title != "" && p.Topic != "" {
			m[p.Title] = p.Topic
		}
	}
	return m, nil
}

// Ingest parses, chunks, embeds and indexes one document. Metadata-only
// documents (abstract-only papers) are skipped, not indexed. Re-ingesting an
// already indexed title is a no-op with WasNew false.
func (s *System) Ingest(ctx context.Context, r io.Reader, filename string) (*IngestReport, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	doc, err := p.Parse(r, filename)
	if errors.Is(err, parser.ErrNoContent) {
		title := filename
		if doc != nil && doc.Title != "" {
			title = doc.Title
		}
		s.logger.Info("skipping document without indexable content", "title", title)
		return &IngestReport{Title: title, Skipped: true, SkipReason: "no indexable content"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	if topic, ok := s.topicMap[doc.Title]; ok && doc.Topic == "" {
		doc.Topic = topic
	}

	wasNew, err := s.store.AddDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", doc.Title, err)
	}
	if !wasNew {
		return &IngestReport{Title: doc.Title, WasNew: false}, nil
	}

	chunks := s.chunkDocument(doc)
	if err := s.store.AddChunks(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("index content of %s: %w", doc.Title, err)
	}
	s.logger.Info("document indexed", "title", doc.Title, "chunks", len(chunks))
	return &IngestReport{Title: doc.Title, ChunkCount: len(chunks), WasNew: true}, nil
}

// chunkDocument splits each section and prefixes every chunk with document
// and section context before embedding.
func (s *System) chunkDocument(doc *corpus.Document) []corpus.Chunk {
	var chunks []corpus.Chunk
	for _, sec := range doc.Sections {
		ordinal := sec.Index
		if sec.Title == "" {
			// Untitled sections have no addressable ordinal.
			ordinal = -1
		}
		for _, piece := range chunker.SplitAll(sec.Text, s.chunkCfg) {
			chunks = append(chunks, corpus.Chunk{
				Content:      chunker.WithContext(doc.Title, sec.Title, piece),
				DocTitle:     doc.Title,
				Section:      sec.Title,
				SectionIndex: ordinal,
				Index:        len(chunks),
			})
		}
	}
	return chunks
}

// IngestDir ingests every supported file in a directory, logging and skipping
// individual failures. Returns documents added and chunks indexed.
func (s *System) IngestDir(ctx context.Context, dir string) (int, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read corpus dir: %w", err)
	}

	var docs, chunks int
	for _, entry := range entries {
		if entry.IsDir() || !parser.IsSupportedExtension(entry.Name()) {
			continue
		}
		report, err := s.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Error("ingest failed", "file", entry.Name(), "error", err)
			continue
		}
		if report.WasNew {
			docs++
			chunks += report.ChunkCount
		}
	}
	return docs, chunks, nil
}

// IngestFile ingests one file from disk.
func (s *System) IngestFile(ctx context.Context, path string) (*IngestReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return s.Ingest(ctx, f, filepath.Base(path))
}

// Ask answers one query. An empty sessionID mints a new session; the returned
// id lets the caller continue the conversation.
func (s *System) Ask(ctx context.Context, sessionID, query string) (*Answer, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", fmt.Errorf("empty query")
	}

	if sessionID == "" {
		id, err := s.sessions.Create()
		if err != nil {
			return nil, "", err
		}
		sessionID = id
	}

	system := systemPrompt
	history, err := s.sessions.History(sessionID)
	if err != nil {
		return nil, "", err
	}
	if history != "" {
		system = systemPrompt + "\n\nPrevious conversation:\n" + history
	}

	answer, err := newLoop(s.client, s.registry, s.maxRounds, s.logger).run(ctx, system, query)
	if err != nil {
		return nil, "", err
	}

	if err := s.sessions.AddExchange(sessionID, query, answer.Text); err != nil {
		s.logger.Error("session update failed", "session", sessionID, "error", err)
	}
	return answer, sessionID, nil
}

// Analytics summarizes the catalog for the papers endpoint.
type Analytics struct {
	TotalPapers int      `json:"total_papers"`
	Topics      []string `json:"topics"`
}

func (s *System) Analytics(ctx context.Context) (*Analytics, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	topics, err := s.store.Topics(ctx)
	if err != nil {
		return nil, err
	}
	return &Analytics{TotalPapers: count, Topics: topics}, nil
}
