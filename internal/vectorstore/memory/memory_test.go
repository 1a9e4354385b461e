package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/domain"
)

func seeded(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage()
	require.NoError(t, s.Init(3))

	chunks := []domain.Chunk{
		{ID: "c0", Text: "alpha", Index: 0, Metadata: domain.ChunkMetadata{Section: domain.SectionBeginning}},
		{ID: "c1", Text: "bravo", Index: 1, Metadata: domain.ChunkMetadata{Section: domain.SectionMiddle}},
		{ID: "c2", Text: "charlie", Index: 2, Metadata: domain.ChunkMetadata{Section: domain.SectionEnd}},
	}
	vectors := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, s.Upsert(chunks, vectors))
	return s
}

func TestInit_InvalidDimension(t *testing.T) {
	s := NewStorage()
	assert.Error(t, s.Init(0))
}

func TestUpsert_LengthMismatch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(3))
	err := s.Upsert([]domain.Chunk{{ID: "c0"}}, nil)
	assert.Error(t, err)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(3))
	err := s.Upsert([]domain.Chunk{{ID: "c0"}}, [][]float64{{1, 0}})
	assert.Error(t, err)
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	s := seeded(t)

	results, err := s.Search(context.Background(), []float64{0.9, 0.1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c0", results[0].Chunk.ID)
	assert.Equal(t, "c1", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_TopKBoundsResultLength(t *testing.T) {
	s := seeded(t)

	results, err := s.Search(context.Background(), []float64{1, 1, 1}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_SectionFilter(t *testing.T) {
	s := seeded(t)
	section := domain.SectionMiddle

	results, err := s.Search(context.Background(), []float64{1, 1, 1}, 2, &section)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.SectionMiddle, results[0].Chunk.Metadata.Section)
}

func TestSearch_NoSectionMatchIsEmptyNotError(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(2))
	require.NoError(t, s.Upsert(
		[]domain.Chunk{{ID: "c0", Metadata: domain.ChunkMetadata{Section: domain.SectionBeginning}}},
		[][]float64{{1, 0}},
	))

	section := domain.SectionEnd
	results, err := s.Search(context.Background(), []float64{1, 0}, 2, &section)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClear(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.Clear())

	results, err := s.Search(context.Background(), []float64{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
