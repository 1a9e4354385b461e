// Package chunker splits documents into fixed-size overlapping chunks and
// assigns positional section labels.
package chunker

import (
	"strconv"

	"webrag/internal/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// FixedSize splits document text into fixed-size chunks with overlap.
// Splitting never crosses document boundaries.
type FixedSize struct {
	chunkSize int
	overlap   int
}

// Ensure FixedSize implements the Chunker interface.
var _ domain.Chunker = (*FixedSize)(nil)

// Option configures the chunker.
type Option func(*FixedSize)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *FixedSize) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *FixedSize) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a new fixed-size chunker with the given options.
func New(opts ...Option) *FixedSize {
	c := &FixedSize{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Chunk splits each document independently, then labels the combined
// sequence by global ordinal position.
func (c *FixedSize) Chunk(documents []domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	index := 0
	for _, doc := range documents {
		for _, text := range c.split(doc.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:         doc.ID + ":" + strconv.Itoa(index),
				DocumentID: doc.ID,
				Text:       text,
				Index:      index,
				Metadata:   domain.ChunkMetadata{Source: doc.Source},
			})
			index++
		}
	}
	LabelSections(chunks)
	return chunks, nil
}

func (c *FixedSize) split(content string) []string {
	if content == "" {
		return nil
	}
	contentLen := len(content)
	estimated := (contentLen / (c.chunkSize - c.overlap)) + 1
	parts := make([]string, 0, estimated)

	start := 0
	for start < contentLen {
		end := start + c.chunkSize
		if end > contentLen {
			end = contentLen
		}
		parts = append(parts, content[start:end])
		if end == contentLen {
			break
		}
		start += c.chunkSize - c.overlap
	}
	return parts
}

// LabelSections assigns each chunk a section by positional thirds of the
// whole sequence: the first ⌊N/3⌋ chunks are "beginning", the next ⌊N/3⌋
// "middle", and the remainder "end". The label is a pure function of the
// chunk's ordinal position and N, and is assigned exactly once.
func LabelSections(chunks []domain.Chunk) {
	for i := range chunks {
		chunks[i].Metadata.Section = SectionForIndex(i, len(chunks))
	}
}

// SectionForIndex returns the section label for ordinal position i of n chunks.
func SectionForIndex(i, n int) domain.Section {
	third := n / 3
	switch {
	case i < third:
		return domain.SectionBeginning
	case i < 2*third:
		return domain.SectionMiddle
	default:
		return domain.SectionEnd
	}
}
