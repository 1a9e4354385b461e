package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"webrag/internal/domain"
)

// Ingestor runs the ingestion pipeline: load a web document, chunk and label
// it, embed the chunks and index them. Any failure is fatal for the run; the
// workflow cannot proceed without a populated index.
type Ingestor struct {
	loader     domain.Loader
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	summarizer domain.Summarizer
	log        *logrus.Entry
}

// Report describes a completed ingestion.
type Report struct {
	Documents int
	Chunks    int
	Summary   string
}

func NewIngestor(loader domain.Loader, chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, summarizer domain.Summarizer, log *logrus.Logger) *Ingestor {
	return &Ingestor{
		loader:     loader,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		summarizer: summarizer,
		log:        logrus.NewEntry(log),
	}
}

// Ingest populates the vector index from the page at sourceURL.
func (s *Ingestor) Ingest(ctx context.Context, sourceURL, selector string) (*Report, error) {
	documents, err := s.loader.Load(ctx, sourceURL, selector)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sourceURL, err)
	}
	s.log.WithFields(logrus.Fields{"source": sourceURL, "documents": len(documents)}).Debug("loaded document")

	chunks, err := s.chunker.Chunk(documents)
	if err != nil {
		return nil, fmt.Errorf("chunk documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %s", sourceURL)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	if err := s.embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	if err := s.store.Init(s.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if err := s.store.Clear(); err != nil {
		return nil, fmt.Errorf("clear vector store: %w", err)
	}
	if err := s.store.Upsert(chunks, vectors); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	s.log.WithField("chunks", len(chunks)).Debug("indexed chunks")

	report := &Report{Documents: len(documents), Chunks: len(chunks)}
	if s.summarizer != nil {
		var corpus strings.Builder
		for _, doc := range documents {
			corpus.WriteString(doc.Text)
			corpus.WriteString("\n")
		}
		summary, err := s.summarizer.Summarize(corpus.String(), 3)
		if err != nil {
			return nil, fmt.Errorf("summarize corpus: %w", err)
		}
		report.Summary = summary
	}
	return report, nil
}
