// Agent module - conversational loop with tool dispatch

package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gamedex/gamedex/pkg/llm"
	"github.com/gamedex/gamedex/storage"
	"github.com/gamedex/gamedex/tools"
)

const defaultSystemPrompt = `You are gamedex, a video game metadata assistant.
Use the game_genres, game_story and game_developer tools to answer questions
about games. Relay tool results to the user verbatim. Use the schedule tools
to set up reminders and recurring questions when asked.`

const (
	defaultMaxToolRounds = 8
	defaultMaxHistory    = 40
)

// Options configures an Agent
type Options struct {
	Model         string
	SystemPrompt  string
	Temperature   float64
	MaxToolRounds int // bound on tool-call round trips per turn
	MaxHistory    int // messages loaded from storage per turn
}

// DefaultOptions returns the default agent options
func DefaultOptions() Options {
	return Options{
		SystemPrompt:  defaultSystemPrompt,
		Temperature:   0.7,
		MaxToolRounds: defaultMaxToolRounds,
		MaxHistory:    defaultMaxHistory,
	}
}

// Agent runs chat turns against an LLM provider with tool dispatch
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	store    *storage.Storage // optional
	opts     Options
}

// New creates an agent
func New(provider llm.Provider, registry *tools.Registry, store *storage.Storage, opts Options) *Agent {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	return &Agent{
		provider: provider,
		registry: registry,
		store:    store,
		opts:     opts,
	}
}

// Store exposes the underlying storage, may be nil
func (a *Agent) Store() *storage.Storage {
	return a.store
}

// Registry exposes the tool registry
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// Chat runs one stateless turn
func (a *Agent) Chat(ctx context.Context, userMsg string) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: a.opts.SystemPrompt},
		{Role: "user", Content: userMsg},
	}
	return a.run(ctx, msgs)
}

// ChatWithSession runs one turn against a persistent session: history is
// loaded from storage, the reply and user message are persisted, and the
// session token estimate is refreshed.
func (a *Agent) ChatWithSession(ctx context.Context, sessionKey, userMsg string) (string, error) {
	msgs := []llm.Message{{Role: "system", Content: a.opts.SystemPrompt}}

	if a.store != nil {
		history, err := a.store.GetMessages(sessionKey, a.opts.MaxHistory)
		if err != nil {
			log.Printf("[Agent] failed to load history for %s: %v", sessionKey, err)
		}
		for _, m := range history {
			// Tool-role messages are not replayed; the provider only needs
			// the user/assistant transcript
			if m.Role == "tool" {
				continue
			}
			msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: userMsg})

	reply, err := a.run(ctx, msgs)
	if err != nil {
		return "", err
	}

	if a.store != nil {
		a.storeMessage(sessionKey, "user", userMsg)
		a.storeMessage(sessionKey, "assistant", reply)
		a.updateSessionTokens(sessionKey)
	}
	return reply, nil
}

// run drives the provider call plus bounded tool-call rounds
func (a *Agent) run(ctx context.Context, msgs []llm.Message) (string, error) {
	if a.provider == nil {
		return "", fmt.Errorf("no provider configured")
	}

	specs := a.toolSpecs()

	for round := 0; ; round++ {
		req := &llm.ChatRequest{
			Model:       a.opts.Model,
			Messages:    msgs,
			Temperature: a.opts.Temperature,
			Tools:       specs,
		}

		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			return "", fmt.Errorf("chat: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat: empty response")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		if round >= a.opts.MaxToolRounds {
			log.Printf("[Agent] tool round limit reached (%d), stopping", a.opts.MaxToolRounds)
			if msg.Content != "" {
				return msg.Content, nil
			}
			return "I could not finish the requested tool calls.", nil
		}

		msgs = append(msgs, msg)
		msgs = append(msgs, a.executeToolCalls(msg.ToolCalls)...)
	}
}

// executeToolCalls dispatches tool calls through the registry. Tool
// failures become tool-role messages so the model can recover.
func (a *Agent) executeToolCalls(calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, 0, len(calls))

	for _, call := range calls {
		if call.Function == nil {
			continue
		}
		name := call.Function.Name

		var content string
		args, err := tools.ParseArgs(call.Function.Arguments)
		if err != nil {
			content = fmt.Sprintf("error: %v", err)
		} else {
			out, err := a.registry.CallTool(name, args)
			if err != nil {
				content = fmt.Sprintf("error: %v", err)
			} else {
				switch v := out.(type) {
				case string:
					content = v
				default:
					content = fmt.Sprintf("%v", v)
				}
			}
		}

		content = TruncateToolResult(content, DefaultToolResultTruncationConfig)

		results = append(results, llm.Message{
			Role:       "tool",
			Name:       name,
			ToolCallID: call.ID,
			Content:    content,
		})
	}
	return results
}

// toolSpecs converts registry specs to the provider wire format
func (a *Agent) toolSpecs() []llm.Tool {
	if a.registry == nil {
		return nil
	}

	var specs []llm.Tool
	for _, spec := range a.registry.GetToolSpecs() {
		fn, ok := spec["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		specs = append(specs, llm.Tool{
			Type: "function",
			Function: &llm.ToolFunction{
				Name:        name,
				Description: desc,
				Parameters:  fn["parameters"],
			},
		})
	}
	return specs
}

func (a *Agent) storeMessage(sessionKey, role, content string) {
	if err := a.store.AddMessage(sessionKey, role, content); err != nil {
		log.Printf("[Agent] failed to store %s message: %v", role, err)
	}
}

// updateSessionTokens refreshes the token estimate in session meta
func (a *Agent) updateSessionTokens(sessionKey string) {
	history, err := a.store.GetMessages(sessionKey, a.opts.MaxHistory)
	if err != nil {
		return
	}
	contents := make([]string, 0, len(history))
	for _, m := range history {
		contents = append(contents, m.Content)
	}
	meta := storage.SessionMeta{
		SessionKey:  sessionKey,
		TotalTokens: EstimateTokens(contents),
	}
	if err := a.store.UpsertSessionMeta(meta); err != nil {
		log.Printf("[Agent] failed to update session meta: %v", err)
	}
}

// SessionSummary returns a short transcript preview for a session
func (a *Agent) SessionSummary(sessionKey string, limit int) (string, error) {
	if a.store == nil {
		return "", fmt.Errorf("no storage configured")
	}
	msgs, err := a.store.GetMessages(sessionKey, limit)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
	}
	return strings.Join(lines, "\n"), nil
}
