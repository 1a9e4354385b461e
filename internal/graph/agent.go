package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"webrag/internal/llm"
	"webrag/internal/prompt"
)

// ReactMaxIterations bounds the autonomous tool loop. The model decides how
// many retrievals to run, but never more than this.
const ReactMaxIterations = 8

// RetrieveToolName is the tool declared to the model in the agent workflows.
const RetrieveToolName = "retrieve"

func retrieveTool() llm.Tool {
	return llm.Tool{
		Name:        RetrieveToolName,
		Description: "Retrieve information related to a query from the indexed document.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}
}

// NewAgent builds the tool-calling workflow:
// queryOrRespond → (tools → generate | END). The model either answers
// directly or requests one retrieve round-trip before generation.
func NewAgent(deps Deps) *Graph {
	nodes := map[NodeID]NodeFunc{
		NodeQueryOrRespond: deps.queryOrRespondNode(),
		NodeTools:          deps.toolsNode(),
		NodeGenerate:       deps.agentGenerateNode(),
	}
	return &Graph{
		name:  "agent",
		entry: NodeQueryOrRespond,
		nodes: nodes,
		next: func(node NodeID, s *State) NodeID {
			switch node {
			case NodeQueryOrRespond:
				if s.LastMessage().HasToolCalls() {
					return NodeTools
				}
				return End
			case NodeTools:
				return NodeGenerate
			default:
				return End
			}
		},
		maxIterations: len(nodes) + 1,
	}
}

// NewReact builds the autonomous agent loop: queryOrRespond ↔ tools repeats
// until the model stops requesting tools, bounded by ReactMaxIterations.
func NewReact(deps Deps) *Graph {
	nodes := map[NodeID]NodeFunc{
		NodeQueryOrRespond: deps.queryOrRespondNode(),
		NodeTools:          deps.toolsNode(),
	}
	return &Graph{
		name:  "react",
		entry: NodeQueryOrRespond,
		nodes: nodes,
		next: func(node NodeID, s *State) NodeID {
			switch node {
			case NodeQueryOrRespond:
				if s.LastMessage().HasToolCalls() {
					return NodeTools
				}
				return End
			default:
				return NodeQueryOrRespond
			}
		},
		maxIterations: ReactMaxIterations,
	}
}

// queryOrRespondNode invokes the model with the retrieve tool declared. The
// response either answers directly or carries tool-call requests.
func (d *Deps) queryOrRespondNode() NodeFunc {
	return func(ctx context.Context, s *State) (Delta, error) {
		msg, err := d.Model.ChatWithTools(ctx, s.Messages, []llm.Tool{retrieveTool()})
		if err != nil {
			return nil, fmt.Errorf("query or respond: %w", err)
		}
		s.Messages = append(s.Messages, msg)
		if !msg.HasToolCalls() {
			s.Answer = msg.Content
		}
		return Delta{"messages": []llm.Message{msg}}, nil
	}
}

// toolsNode executes each requested tool call and appends one tool-result
// message per call.
func (d *Deps) toolsNode() NodeFunc {
	return func(ctx context.Context, s *State) (Delta, error) {
		calls := s.LastMessage().ToolCalls
		appended := make([]llm.Message, 0, len(calls))
		for _, call := range calls {
			if call.Name != RetrieveToolName {
				return nil, fmt.Errorf("model requested unknown tool %q", call.Name)
			}
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(call.Args, &args); err != nil {
				return nil, fmt.Errorf("parse %s arguments: %w", call.Name, err)
			}
			results, err := d.retrieve(ctx, args.Query, nil)
			if err != nil {
				return nil, err
			}
			s.Context = results
			appended = append(appended, llm.Message{
				Role:       llm.RoleTool,
				Content:    prompt.ContextBlob(results),
				ToolCallID: call.ID,
			})
		}
		s.Messages = append(s.Messages, appended...)
		return Delta{"messages": appended}, nil
	}
}

// agentGenerateNode rebuilds a system prompt from the most recent contiguous
// run of tool messages and the filtered conversation history, then asks the
// model for the final answer.
func (d *Deps) agentGenerateNode() NodeFunc {
	return func(ctx context.Context, s *State) (Delta, error) {
		toolRun := trailingToolMessages(s.Messages)
		contents := make([]string, len(toolRun))
		for i, msg := range toolRun {
			contents[i] = msg.Content
		}
		system := llm.Message{
			Role:    llm.RoleSystem,
			Content: prompt.AgentSystem(strings.Join(contents, "\n")),
		}

		conversation := append([]llm.Message{system}, conversationalMessages(s.Messages)...)
		msg, err := d.Model.Chat(ctx, conversation)
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		s.Messages = append(s.Messages, msg)
		s.Answer = msg.Content
		return Delta{"messages": []llm.Message{msg}}, nil
	}
}

// trailingToolMessages collects the most recent contiguous run of tool
// messages, scanning backward and stopping at the first non-tool message.
// This is a deliberate asymmetric windowing policy: only the current turn's
// tool outputs feed the system prompt, not the full history.
func trailingToolMessages(messages []llm.Message) []llm.Message {
	var reversed []llm.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llm.RoleTool {
			break
		}
		reversed = append(reversed, messages[i])
	}
	// restore original order
	run := make([]llm.Message, len(reversed))
	for i, msg := range reversed {
		run[len(reversed)-1-i] = msg
	}
	return run
}

// conversationalMessages keeps human and system messages, plus AI messages
// that carry no tool calls. AI messages that issued tool calls are excluded
// so they are not re-sent as conversational turns.
func conversationalMessages(messages []llm.Message) []llm.Message {
	var out []llm.Message
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleHuman, llm.RoleSystem:
			out = append(out, msg)
		case llm.RoleAI:
			if !msg.HasToolCalls() {
				out = append(out, msg)
			}
		}
	}
	return out
}
