package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrag/internal/llm"
)

func TestLoad_UnknownThread(t *testing.T) {
	m := NewInMemory()
	assert.Nil(t, m.Load("nope"))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m := NewInMemory()
	messages := []llm.Message{
		{Role: llm.RoleHuman, Content: "hello"},
		{Role: llm.RoleAI, Content: "hi"},
	}
	m.Save("t1", messages)

	loaded := m.Load("t1")
	require.Len(t, loaded, 2)
	assert.Equal(t, messages, loaded)
}

func TestLoad_ReturnsCopy(t *testing.T) {
	m := NewInMemory()
	m.Save("t1", []llm.Message{{Role: llm.RoleHuman, Content: "original"}})

	loaded := m.Load("t1")
	loaded[0].Content = "mutated"

	again := m.Load("t1")
	assert.Equal(t, "original", again[0].Content)
}

func TestSave_ReplacesHistory(t *testing.T) {
	m := NewInMemory()
	m.Save("t1", []llm.Message{{Role: llm.RoleHuman, Content: "one"}})
	m.Save("t1", []llm.Message{
		{Role: llm.RoleHuman, Content: "one"},
		{Role: llm.RoleAI, Content: "two"},
	})

	assert.Len(t, m.Load("t1"), 2)
}

func TestThreads(t *testing.T) {
	m := NewInMemory()
	m.Save("a", nil)
	m.Save("b", nil)

	assert.ElementsMatch(t, []string{"a", "b"}, m.Threads())
}
