// Package google provides Google Gemini provider implementation
package google

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/gamedex/gamedex/pkg/llm"
)

// Provider implements llm.Provider for Google Gemini
type Provider struct {
	config llm.Config
	client *genai.Client
}

// New creates a new Google provider
func New(ctx context.Context, cfg llm.Config) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{config: cfg, client: client}, nil
}

// NewFromEnv creates a new Google provider from environment variables
func NewFromEnv(ctx context.Context) (*Provider, error) {
	return New(ctx, llm.LoadConfigFromEnv(llm.ProviderGoogle))
}

// Name returns the provider name
func (p *Provider) Name() string { return "google" }

// Type returns the provider type
func (p *Provider) Type() llm.ProviderType { return llm.ProviderGoogle }

// GetConfig returns the provider config
func (p *Provider) GetConfig() llm.Config { return p.config }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	contents, system := toContents(req.Messages)

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if decls := toFunctionDeclarations(req.Tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	result, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("google chat: %w", err)
	}

	msg := llm.Message{Role: "assistant"}
	finish := "stop"
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for i, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", i)
				}
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:   id,
					Type: "function",
					Function: &llm.ToolFunction{
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					},
				})
			}
		}
	}
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}

	resp := &llm.ChatResponse{
		Model:   model,
		Choices: []llm.Choice{{Index: 0, Message: msg, FinishReason: finish}},
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

// toContents converts OpenAI-wire messages to genai contents.
// System messages are pulled out into the system instruction.
func toContents(msgs []llm.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	system := ""

	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case "assistant":
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				if tc.Function == nil {
					continue
				}
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case "tool":
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     m.Name,
						Response: map[string]any{"result": m.Content},
					},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, system
}

func toFunctionDeclarations(tools []llm.Tool) []*genai.FunctionDeclaration {
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  convertToSchema(t.Function.Parameters),
		})
	}
	return decls
}

func convertToSchema(params interface{}) *genai.Schema {
	if params == nil {
		return nil
	}

	if m, ok := params.(map[string]interface{}); ok {
		return mapToSchema(m)
	}

	// If it's already a JSON string, try to unmarshal
	if s, ok := params.(string); ok {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return mapToSchema(m)
		}
	}

	return nil
}

func mapToSchema(m map[string]interface{}) *genai.Schema {
	if m == nil {
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(t)
	}

	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := m["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for k, v := range props {
			if propMap, ok := v.(map[string]interface{}); ok {
				schema.Properties[k] = mapToSchema(propMap)
			}
		}
	}

	if required, ok := m["required"].([]interface{}); ok {
		schema.Required = make([]string, len(required))
		for i, r := range required {
			if s, ok := r.(string); ok {
				schema.Required[i] = s
			}
		}
	}

	return schema
}

// Ensure Provider implements llm.Provider
var _ llm.Provider = (*Provider)(nil)
