package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/chunker"
	"webrag/internal/embedding/tfidf"
	"webrag/internal/loader"
	"webrag/internal/summarizer"
	"webrag/internal/vectorstore/memory"
)

const ingestPage = `<!DOCTYPE html>
<html><body>
<h1 class="post-title">LLM Powered Autonomous Agents</h1>
<div class="post-content">
<p>Task decomposition turns a complicated task into multiple manageable subtasks.
Chain of thought prompting instructs the model to think step by step.</p>
<p>Agents combine planning with short-term and long-term memory.
Memory lets the agent recall information over extended periods.</p>
<p>Finite context length restricts how much history fits in a single call.
This limitation motivates retrieval over an external index.</p>
</div>
</body></html>`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(ingestPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestIngest_PopulatesIndex(t *testing.T) {
	srv := testServer(t)
	store := memory.NewStorage()
	ingestor := NewIngestor(
		loader.NewWeb(),
		chunker.New(chunker.WithChunkSize(120), chunker.WithOverlap(20)),
		tfidf.NewEmbedder(),
		store,
		nil,
		quietLogger(),
	)

	report, err := ingestor.Ingest(context.Background(), srv.URL, ".post-title, .post-content")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Greater(t, report.Chunks, 1)
	assert.Empty(t, report.Summary)
}

func TestIngest_RetrievalFindsRelevantChunk(t *testing.T) {
	srv := testServer(t)
	store := memory.NewStorage()
	embedder := tfidf.NewEmbedder()
	ingestor := NewIngestor(
		loader.NewWeb(),
		chunker.New(chunker.WithChunkSize(120), chunker.WithOverlap(20)),
		embedder,
		store,
		nil,
		quietLogger(),
	)

	_, err := ingestor.Ingest(context.Background(), srv.URL, ".post-content")
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "task decomposition subtasks")
	require.NoError(t, err)

	results, err := store.Search(context.Background(), vector, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, strings.ToLower(results[0].Chunk.Text), "decomposition")
	assert.Equal(t, srv.URL, results[0].Chunk.Metadata.Source)
}

func TestIngest_WithSummarizer(t *testing.T) {
	srv := testServer(t)
	ingestor := NewIngestor(
		loader.NewWeb(),
		chunker.New(),
		tfidf.NewEmbedder(),
		memory.NewStorage(),
		summarizer.NewFrequency(),
		quietLogger(),
	)

	report, err := ingestor.Ingest(context.Background(), srv.URL, ".post-content")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Summary)
}

func TestIngest_LoadFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ingestor := NewIngestor(
		loader.NewWeb(),
		chunker.New(),
		tfidf.NewEmbedder(),
		memory.NewStorage(),
		nil,
		quietLogger(),
	)

	_, err := ingestor.Ingest(context.Background(), srv.URL, ".post-content")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")
}
