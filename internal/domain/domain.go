package domain

import (
	"context"
	"fmt"
)

// Section is the coarse positional label assigned to a chunk at ingestion.
type Section string

const (
	SectionBeginning Section = "beginning"
	SectionMiddle    Section = "middle"
	SectionEnd       Section = "end"
)

// ParseSection validates a section label.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionBeginning, SectionMiddle, SectionEnd:
		return Section(s), nil
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// Document represents a single text-bearing record loaded from a source.
type Document struct {
	ID     string
	Source string
	Text   string
}

// ChunkMetadata travels with every chunk from ingestion through retrieval.
type ChunkMetadata struct {
	Source  string
	Section Section
}

// Chunk is a bounded text segment, the unit of indexing and retrieval.
// It is immutable once created; the section label is assigned exactly once.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Index      int
	Metadata   ChunkMetadata
}

// SearchResult is a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Loader fetches a source and extracts its text-bearing records.
type Loader interface {
	Load(ctx context.Context, source, selector string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(documents []Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
// A non-nil section filter restricts results to chunks with a matching
// label; fewer than topK results (or none) is a legal outcome, not an error.
type VectorStore interface {
	Init(dimension int) error
	Upsert(chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int, section *Section) ([]SearchResult, error)
	Clear() error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
