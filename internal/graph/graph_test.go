package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/domain"
	"webrag/internal/llm"
	convmem "webrag/internal/memory"
	"webrag/internal/search"
	vectormemory "webrag/internal/vectorstore/memory"
)

// fakeModel replays scripted responses and records the histories it was
// called with.
type fakeModel struct {
	mu sync.Mutex

	chatResponses []llm.Message
	toolResponses []llm.Message
	structured    []string

	// when set, ChatWithTools ignores the script and always requests a
	// retrieve call
	alwaysToolCall bool

	chatHistories [][]llm.Message
	toolHistories [][]llm.Message
}

func (f *fakeModel) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (llm.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatHistories = append(f.chatHistories, append([]llm.Message(nil), history...))
	if len(f.chatResponses) == 0 {
		return llm.Message{}, errors.New("no scripted chat response")
	}
	msg := f.chatResponses[0]
	f.chatResponses = f.chatResponses[1:]
	return msg, nil
}

func (f *fakeModel) ChatWithTools(_ context.Context, history []llm.Message, _ []llm.Tool, _ ...llm.Option) (llm.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolHistories = append(f.toolHistories, append([]llm.Message(nil), history...))
	if f.alwaysToolCall {
		return toolCallMessage(fmt.Sprintf("call_%d", len(f.toolHistories)), "again"), nil
	}
	if len(f.toolResponses) == 0 {
		return llm.Message{}, errors.New("no scripted tool response")
	}
	msg := f.toolResponses[0]
	f.toolResponses = f.toolResponses[1:]
	return msg, nil
}

func (f *fakeModel) ChatStructured(context.Context, string, ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.structured) == 0 {
		return "", errors.New("no scripted structured response")
	}
	out := f.structured[0]
	f.structured = f.structured[1:]
	return out, nil
}

func toolCallMessage(id, query string) llm.Message {
	args, _ := json.Marshal(map[string]string{"query": query})
	return llm.Message{
		Role:      llm.RoleAI,
		ToolCalls: []llm.ToolCall{{ID: id, Name: RetrieveToolName, Args: args}},
	}
}

// stubEmbedder maps every text to the same fixed vector.
type stubEmbedder struct{ vec []float64 }

func (e stubEmbedder) Name() string           { return "stub" }
func (e stubEmbedder) Prepare([]string) error { return nil }
func (e stubEmbedder) Dimension() int         { return len(e.vec) }
func (e stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	return e.vec, nil
}
func (e stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func seededStore(t *testing.T) *vectormemory.Storage {
	t.Helper()
	store := vectormemory.NewStorage()
	require.NoError(t, store.Init(3))
	chunks := []domain.Chunk{
		{ID: "c0", Text: "Task decomposition breaks a hard task into smaller steps.", Index: 0,
			Metadata: domain.ChunkMetadata{Source: "https://example.com/post", Section: domain.SectionBeginning}},
		{ID: "c1", Text: "Agents can use short-term and long-term memory.", Index: 1,
			Metadata: domain.ChunkMetadata{Source: "https://example.com/post", Section: domain.SectionMiddle}},
		{ID: "c2", Text: "Limitations include finite context length.", Index: 2,
			Metadata: domain.ChunkMetadata{Source: "https://example.com/post", Section: domain.SectionEnd}},
	}
	vectors := [][]float64{{1, 0, 0}, {0.5, 0.5, 0}, {0, 0, 1}}
	require.NoError(t, store.Upsert(chunks, vectors))
	return store
}

func testDeps(t *testing.T, model llm.ChatModel) Deps {
	t.Helper()
	return Deps{
		Model:    model,
		Embedder: stubEmbedder{vec: []float64{1, 0, 0}},
		Store:    seededStore(t),
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestPlain_StreamUpdates(t *testing.T) {
	model := &fakeModel{chatResponses: []llm.Message{{Role: llm.RoleAI, Content: "a concise answer"}}}
	runner := NewPlain(testDeps(t, model)).Compile()

	state := &State{Question: "What is task decomposition?"}
	events := collect(t, runner.Stream(context.Background(), state))

	require.Len(t, events, 2)
	assert.Equal(t, NodeRetrieve, events[0].Node)
	assert.Equal(t, NodeGenerate, events[1].Node)
	for _, ev := range events {
		require.NoError(t, ev.Err)
		assert.Nil(t, ev.State)
		assert.NotNil(t, ev.Delta)
	}
	assert.Contains(t, events[0].Delta, "context")
	assert.Equal(t, "a concise answer", events[1].Delta["answer"])

	assert.Equal(t, "a concise answer", state.Answer)
	require.Len(t, state.Context, 2)
	assert.Equal(t, "c0", state.Context[0].Chunk.ID)
}

func TestPlain_StreamValues(t *testing.T) {
	model := &fakeModel{chatResponses: []llm.Message{{Role: llm.RoleAI, Content: "done"}}}
	runner := NewPlain(testDeps(t, model)).Compile()

	state := &State{Question: "anything"}
	events := collect(t, runner.Stream(context.Background(), state, WithStreamMode(StreamValues)))

	require.Len(t, events, 2)
	for _, ev := range events {
		require.NoError(t, ev.Err)
		require.NotNil(t, ev.State)
		assert.Nil(t, ev.Delta)
	}
	assert.Empty(t, events[0].State.Answer)
	assert.Equal(t, "done", events[1].State.Answer)
}

func TestPlain_GeneratePromptCarriesContext(t *testing.T) {
	model := &fakeModel{chatResponses: []llm.Message{{Role: llm.RoleAI, Content: "ok"}}}
	runner := NewPlain(testDeps(t, model)).Compile()

	_, err := runner.Invoke(context.Background(), &State{Question: "What is task decomposition?"})
	require.NoError(t, err)

	require.Len(t, model.chatHistories, 1)
	require.Len(t, model.chatHistories[0], 1)
	text := model.chatHistories[0][0].Content
	assert.Equal(t, llm.RoleHuman, model.chatHistories[0][0].Role)
	assert.Contains(t, text, "Task decomposition breaks a hard task")
	assert.Contains(t, text, "Question: What is task decomposition?")
}

func TestAnalyzed_SectionFilter(t *testing.T) {
	model := &fakeModel{
		structured:    []string{`{"query": "limitations", "section": "end"}`},
		chatResponses: []llm.Message{{Role: llm.RoleAI, Content: "ok"}},
	}
	deps := testDeps(t, model)
	deps.SectionFilter = true
	runner := NewAnalyzed(deps).Compile()

	state := &State{Question: "What does the end of the post say about limitations?"}
	events := collect(t, runner.Stream(context.Background(), state))

	require.Len(t, events, 3)
	assert.Equal(t, NodeAnalyze, events[0].Node)
	assert.Equal(t, NodeRetrieve, events[1].Node)
	assert.Equal(t, NodeGenerate, events[2].Node)

	require.NotNil(t, state.Search)
	assert.Equal(t, "limitations", state.Search.Query)
	assert.Equal(t, domain.SectionEnd, state.Search.Section)

	require.Len(t, state.Context, 1)
	assert.Equal(t, domain.SectionEnd, state.Context[0].Chunk.Metadata.Section)
}

func TestAnalyzed_SchemaErrorAborts(t *testing.T) {
	model := &fakeModel{structured: []string{"I refuse to emit JSON"}}
	runner := NewAnalyzed(testDeps(t, model)).Compile()

	_, err := runner.Invoke(context.Background(), &State{Question: "anything"})
	require.Error(t, err)

	var schemaErr *search.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestAgent_DirectAnswer(t *testing.T) {
	model := &fakeModel{toolResponses: []llm.Message{{Role: llm.RoleAI, Content: "hello there"}}}
	runner := NewAgent(testDeps(t, model)).Compile()

	state := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "Hi"}}}
	events := collect(t, runner.Stream(context.Background(), state))

	require.Len(t, events, 1)
	assert.Equal(t, NodeQueryOrRespond, events[0].Node)
	assert.Equal(t, "hello there", state.Answer)
	assert.Empty(t, state.Context)
	assert.Empty(t, model.chatHistories, "generate must not run on a direct answer")
}

func TestAgent_ToolRoundTrip(t *testing.T) {
	model := &fakeModel{
		toolResponses: []llm.Message{toolCallMessage("call_0", "task decomposition")},
		chatResponses: []llm.Message{{Role: llm.RoleAI, Content: "final answer"}},
	}
	runner := NewAgent(testDeps(t, model)).Compile()

	state := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "What is task decomposition?"}}}
	events := collect(t, runner.Stream(context.Background(), state))

	require.Len(t, events, 3)
	assert.Equal(t, NodeQueryOrRespond, events[0].Node)
	assert.Equal(t, NodeTools, events[1].Node)
	assert.Equal(t, NodeGenerate, events[2].Node)
	assert.Equal(t, "final answer", state.Answer)

	require.Len(t, state.Messages, 4)
	assert.Equal(t, llm.RoleHuman, state.Messages[0].Role)
	assert.Equal(t, llm.RoleAI, state.Messages[1].Role)
	assert.True(t, state.Messages[1].HasToolCalls())
	assert.Equal(t, llm.RoleTool, state.Messages[2].Role)
	assert.Equal(t, "call_0", state.Messages[2].ToolCallID)
	assert.Contains(t, state.Messages[2].Content, "Source: https://example.com/post")
	assert.Equal(t, llm.RoleAI, state.Messages[3].Role)
	assert.False(t, state.Messages[3].HasToolCalls())

	// the generation call sees a rebuilt system prompt plus the
	// conversational history, never the tool-calling AI message
	require.Len(t, model.chatHistories, 1)
	conversation := model.chatHistories[0]
	require.Len(t, conversation, 2)
	assert.Equal(t, llm.RoleSystem, conversation[0].Role)
	assert.Contains(t, conversation[0].Content, "Task decomposition breaks a hard task")
	assert.Equal(t, llm.RoleHuman, conversation[1].Role)
}

func TestAgent_UnknownToolErrors(t *testing.T) {
	bad := llm.Message{
		Role:      llm.RoleAI,
		ToolCalls: []llm.ToolCall{{ID: "call_0", Name: "drop_index", Args: json.RawMessage(`{}`)}},
	}
	model := &fakeModel{toolResponses: []llm.Message{bad}}
	runner := NewAgent(testDeps(t, model)).Compile()

	state := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "Hi"}}}
	_, err := runner.Invoke(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestReact_MultipleRounds(t *testing.T) {
	model := &fakeModel{
		toolResponses: []llm.Message{
			toolCallMessage("call_0", "task decomposition"),
			toolCallMessage("call_1", "agent memory"),
			{Role: llm.RoleAI, Content: "synthesized answer"},
		},
	}
	runner := NewReact(testDeps(t, model)).Compile()

	state := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "Compare decomposition and memory"}}}
	_, err := runner.Invoke(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, "synthesized answer", state.Answer)
	// human, (ai + tool) x2, final ai
	require.Len(t, state.Messages, 6)
	assert.Equal(t, llm.RoleTool, state.Messages[2].Role)
	assert.Equal(t, llm.RoleTool, state.Messages[4].Role)
}

func TestReact_IterationBound(t *testing.T) {
	model := &fakeModel{alwaysToolCall: true}
	runner := NewReact(testDeps(t, model)).Compile()

	state := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "loop forever"}}}
	_, err := runner.Invoke(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestThreadMemory(t *testing.T) {
	model := &fakeModel{toolResponses: []llm.Message{
		{Role: llm.RoleAI, Content: "first reply"},
		{Role: llm.RoleAI, Content: "second reply"},
	}}
	cp := convmem.NewInMemory()
	runner := NewAgent(testDeps(t, model)).Compile(WithCheckpointer(cp))

	first := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "Hello"}}}
	_, err := runner.Invoke(context.Background(), first, WithThread("t1"))
	require.NoError(t, err)

	second := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "And again"}}}
	_, err = runner.Invoke(context.Background(), second, WithThread("t1"))
	require.NoError(t, err)

	// the second invocation sees the full first exchange before its question
	require.Len(t, model.toolHistories, 2)
	history := model.toolHistories[1]
	require.Len(t, history, 3)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, "first reply", history[1].Content)
	assert.Equal(t, "And again", history[2].Content)

	saved := cp.Load("t1")
	assert.Len(t, saved, 4)
}

func TestThreadMemory_Isolation(t *testing.T) {
	model := &fakeModel{toolResponses: []llm.Message{
		{Role: llm.RoleAI, Content: "reply one"},
		{Role: llm.RoleAI, Content: "reply two"},
	}}
	cp := convmem.NewInMemory()
	runner := NewAgent(testDeps(t, model)).Compile(WithCheckpointer(cp))

	_, err := runner.Invoke(context.Background(),
		&State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "thread one"}}}, WithThread("t1"))
	require.NoError(t, err)

	fresh := &State{Messages: []llm.Message{{Role: llm.RoleHuman, Content: "thread two"}}}
	_, err = runner.Invoke(context.Background(), fresh, WithThread("t2"))
	require.NoError(t, err)

	history := model.toolHistories[1]
	require.Len(t, history, 1)
	assert.Equal(t, "thread two", history[0].Content)
}

func TestTrailingToolMessages(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleHuman, Content: "q1"},
		{Role: llm.RoleTool, Content: "stale"},
		{Role: llm.RoleAI, Content: "a1"},
		{Role: llm.RoleTool, Content: "t1"},
		{Role: llm.RoleTool, Content: "t2"},
	}
	run := trailingToolMessages(messages)
	require.Len(t, run, 2)
	assert.Equal(t, "t1", run[0].Content)
	assert.Equal(t, "t2", run[1].Content)
}

func TestConversationalMessages_DropsToolTraffic(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleHuman, Content: "q"},
		toolCallMessage("call_0", "x"),
		{Role: llm.RoleTool, Content: "result"},
		{Role: llm.RoleAI, Content: "final"},
	}
	out := conversationalMessages(messages)
	require.Len(t, out, 3)
	assert.Equal(t, llm.RoleSystem, out[0].Role)
	assert.Equal(t, llm.RoleHuman, out[1].Role)
	assert.Equal(t, "final", out[2].Content)
}
