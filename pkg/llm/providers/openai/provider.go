// Package openai provides OpenAI provider implementation
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/gamedex/gamedex/pkg/llm"
)

// Provider implements llm.Provider for OpenAI
type Provider struct {
	config llm.Config
	client *goopenai.Client
}

// New creates a new OpenAI provider
func New(cfg llm.Config) *Provider {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}
	clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	return &Provider{
		config: cfg,
		client: goopenai.NewClientWithConfig(clientCfg),
	}
}

// NewFromEnv creates a new OpenAI provider from environment variables
func NewFromEnv() *Provider {
	cfg := llm.LoadConfigFromEnv(llm.ProviderOpenAI)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return New(cfg)
}

// Name returns the provider name
func (p *Provider) Name() string { return "openai" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderOpenAI }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	oaReq := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Tools:       toOpenAITools(req.Tools),
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	out := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.Choice{
			Index:        c.Index,
			Message:      fromOpenAIMessage(c.Message),
			FinishReason: string(c.FinishReason),
		})
	}
	return out, nil
}

func toOpenAIMessages(msgs []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			if tc.Function == nil {
				continue
			}
			om.ToolCalls = append(om.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []llm.Tool) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m goopenai.ChatCompletionMessage) llm.Message {
	msg := llm.Message{
		Role:    m.Role,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: &llm.ToolFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
