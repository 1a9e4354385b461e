// Package graph implements the workflow graphs that coordinate query
// analysis, retrieval and answer generation. A graph is a small set of named
// nodes over a shared state with an enumerated transition function; execution
// is a single pass that streams one event per completed node.
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webrag/internal/domain"
	"webrag/internal/llm"
	"webrag/internal/search"
)

// NodeID names a workflow step.
type NodeID string

const (
	NodeAnalyze        NodeID = "analyze_query"
	NodeRetrieve       NodeID = "retrieve"
	NodeGenerate       NodeID = "generate"
	NodeQueryOrRespond NodeID = "query_or_respond"
	NodeTools          NodeID = "tools"

	// End is the terminal pseudo-node every transition function must
	// eventually route to.
	End NodeID = "__end__"
)

// State is the per-invocation workflow record. Each field is written only by
// the node responsible for it; no node reads a field a later node produces.
type State struct {
	Question string
	Search   *search.Spec
	Context  []domain.SearchResult
	Answer   string
	Messages []llm.Message
}

// Clone returns a snapshot copy for values-mode streaming.
func (s *State) Clone() *State {
	out := *s
	out.Context = append([]domain.SearchResult(nil), s.Context...)
	out.Messages = append([]llm.Message(nil), s.Messages...)
	return &out
}

// LastMessage returns the final message, or a zero message when empty.
func (s *State) LastMessage() llm.Message {
	if len(s.Messages) == 0 {
		return llm.Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// Delta is the state change a completed node produced, keyed by field name.
type Delta map[string]any

// Event is one streamed step result. Exactly one of Delta and State is set
// depending on the stream mode; Err is set on the final event of a failed
// run.
type Event struct {
	Node  NodeID
	Delta Delta
	State *State
	Err   error
}

// StreamMode selects what each event carries.
type StreamMode string

const (
	// StreamUpdates yields the per-node state delta.
	StreamUpdates StreamMode = "updates"
	// StreamValues yields the full accumulated state snapshot.
	StreamValues StreamMode = "values"
)

// NodeFunc advances the state and reports the delta it produced.
type NodeFunc func(ctx context.Context, s *State) (Delta, error)

// TransitionFunc returns the node to run after the given node, covering
// every node of the graph and routing to End on completion.
type TransitionFunc func(node NodeID, s *State) NodeID

// Graph is a compiled-free description of a workflow.
type Graph struct {
	name          string
	entry         NodeID
	nodes         map[NodeID]NodeFunc
	next          TransitionFunc
	maxIterations int
}

// Checkpointer persists per-thread message history across invocations.
type Checkpointer interface {
	Load(threadID string) []llm.Message
	Save(threadID string, messages []llm.Message)
}

// Runner executes a graph, optionally against a conversation checkpointer.
type Runner struct {
	graph        *Graph
	checkpointer Checkpointer
	log          *logrus.Entry
}

// CompileOption configures graph compilation.
type CompileOption func(*Runner)

// WithCheckpointer attaches conversation memory; runs invoked with a thread
// id will load prior messages before and save the result after.
func WithCheckpointer(cp Checkpointer) CompileOption {
	return func(r *Runner) { r.checkpointer = cp }
}

// WithLogger sets the logger used for per-node progress.
func WithLogger(log *logrus.Logger) CompileOption {
	return func(r *Runner) { r.log = logrus.NewEntry(log) }
}

// Compile prepares the graph for execution.
func (g *Graph) Compile(opts ...CompileOption) *Runner {
	r := &Runner{
		graph: g,
		log:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("workflow", g.name)
	return r
}

// RunOption configures a single invocation.
type RunOption func(*runConfig)

type runConfig struct {
	mode   StreamMode
	thread string
}

// WithStreamMode selects delta or snapshot events. Default is StreamUpdates.
func WithStreamMode(mode StreamMode) RunOption {
	return func(c *runConfig) { c.mode = mode }
}

// WithThread scopes the run to a conversation thread. Requires a
// checkpointer; ignored otherwise.
func WithThread(id string) RunOption {
	return func(c *runConfig) { c.thread = id }
}

// Stream executes the graph, yielding one event per completed node in step
// order. The first error aborts the run; it is delivered as the final event
// and the channel is closed. No step retries.
func (r *Runner) Stream(ctx context.Context, s *State, opts ...RunOption) <-chan Event {
	cfg := runConfig{mode: StreamUpdates}
	for _, opt := range opts {
		opt(&cfg)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		log := r.log.WithField("run", uuid.New().String()[:8])

		if r.checkpointer != nil && cfg.thread != "" {
			prior := r.checkpointer.Load(cfg.thread)
			s.Messages = append(append([]llm.Message(nil), prior...), s.Messages...)
			log = log.WithField("thread", cfg.thread)
			log.WithField("prior_messages", len(prior)).Debug("loaded conversation history")
		}

		node := r.graph.entry
		for iterations := 0; node != End; iterations++ {
			if iterations >= r.graph.maxIterations {
				emit(ctx, events, Event{Node: node, Err: fmt.Errorf("workflow exceeded %d steps", r.graph.maxIterations)})
				return
			}
			if err := ctx.Err(); err != nil {
				emit(ctx, events, Event{Node: node, Err: err})
				return
			}

			fn, ok := r.graph.nodes[node]
			if !ok {
				emit(ctx, events, Event{Node: node, Err: fmt.Errorf("unknown node %q", node)})
				return
			}

			delta, err := fn(ctx, s)
			if err != nil {
				emit(ctx, events, Event{Node: node, Err: fmt.Errorf("step %s: %w", node, err)})
				return
			}
			log.WithField("node", string(node)).Debug("step complete")

			ev := Event{Node: node}
			switch cfg.mode {
			case StreamValues:
				ev.State = s.Clone()
			default:
				ev.Delta = delta
			}
			if !emit(ctx, events, ev) {
				return
			}

			node = r.graph.next(node, s)
		}

		if r.checkpointer != nil && cfg.thread != "" {
			r.checkpointer.Save(cfg.thread, s.Messages)
			log.WithField("messages", len(s.Messages)).Debug("saved conversation history")
		}
	}()
	return events
}

// Invoke runs the graph to completion, discarding intermediate events.
func (r *Runner) Invoke(ctx context.Context, s *State, opts ...RunOption) (*State, error) {
	for ev := range r.Stream(ctx, s, opts...) {
		if ev.Err != nil {
			return nil, ev.Err
		}
	}
	return s, nil
}

func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}
