package graph

import (
	"context"
	"fmt"

	"webrag/internal/domain"
	"webrag/internal/llm"
	"webrag/internal/prompt"
	"webrag/internal/search"
)

// DefaultTopK is the retrieval depth used when none is configured.
const DefaultTopK = 2

// Deps carries the external collaborators a workflow needs. Provider clients
// are constructed once at process start and passed in; the graph holds no
// global state.
type Deps struct {
	Model    llm.ChatModel
	Embedder domain.Embedder
	Store    domain.VectorStore

	TopK int
	// SectionFilter enables section-restricted retrieval in the analyzed
	// workflow. Opt-in: plain retrieval never filters.
	SectionFilter bool
	// CustomTemplate switches generation to the closing-phrase template.
	CustomTemplate bool
}

func (d *Deps) topK() int {
	if d.TopK > 0 {
		return d.TopK
	}
	return DefaultTopK
}

// retrieve embeds the query and searches the index. An empty result set is a
// legal outcome, not an error.
func (d *Deps) retrieve(ctx context.Context, query string, section *domain.Section) ([]domain.SearchResult, error) {
	vector, err := d.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := d.Store.Search(ctx, vector, d.topK(), section)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// NewPlain builds the plain RAG workflow: retrieve(question) → generate.
// Retrieval runs a raw similarity search on the question text, no filter.
func NewPlain(deps Deps) *Graph {
	nodes := map[NodeID]NodeFunc{
		NodeRetrieve: func(ctx context.Context, s *State) (Delta, error) {
			results, err := deps.retrieve(ctx, s.Question, nil)
			if err != nil {
				return nil, err
			}
			s.Context = results
			return Delta{"context": results}, nil
		},
		NodeGenerate: deps.generateNode(),
	}
	return &Graph{
		name:  "plain",
		entry: NodeRetrieve,
		nodes: nodes,
		next: func(node NodeID, _ *State) NodeID {
			switch node {
			case NodeRetrieve:
				return NodeGenerate
			default:
				return End
			}
		},
		maxIterations: len(nodes) + 1,
	}
}

// NewAnalyzed builds the query-analyzed workflow:
// analyzeQuery → retrieve(search) → generate. A structured-output parse
// failure aborts the invocation; there is no fallback to unfiltered
// retrieval.
func NewAnalyzed(deps Deps) *Graph {
	nodes := map[NodeID]NodeFunc{
		NodeAnalyze: func(ctx context.Context, s *State) (Delta, error) {
			spec, err := search.Analyze(ctx, deps.Model, s.Question)
			if err != nil {
				return nil, err
			}
			s.Search = spec
			return Delta{"search": spec}, nil
		},
		NodeRetrieve: func(ctx context.Context, s *State) (Delta, error) {
			var section *domain.Section
			if deps.SectionFilter {
				section = &s.Search.Section
			}
			results, err := deps.retrieve(ctx, s.Search.Query, section)
			if err != nil {
				return nil, err
			}
			s.Context = results
			return Delta{"context": results}, nil
		},
		NodeGenerate: deps.generateNode(),
	}
	return &Graph{
		name:  "analyzed",
		entry: NodeAnalyze,
		nodes: nodes,
		next: func(node NodeID, _ *State) NodeID {
			switch node {
			case NodeAnalyze:
				return NodeRetrieve
			case NodeRetrieve:
				return NodeGenerate
			default:
				return End
			}
		},
		maxIterations: len(nodes) + 1,
	}
}

// generateNode formats the retrieved context into the prompt template and
// invokes the chat model once.
func (d *Deps) generateNode() NodeFunc {
	return func(ctx context.Context, s *State) (Delta, error) {
		var text string
		if d.CustomTemplate {
			text = prompt.RAGCustom(s.Question, s.Context)
		} else {
			text = prompt.RAG(s.Question, s.Context)
		}
		msg, err := d.Model.Chat(ctx, []llm.Message{{Role: llm.RoleHuman, Content: text}})
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		s.Answer = msg.Content
		return Delta{"answer": s.Answer}, nil
	}
}
