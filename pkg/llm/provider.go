// Package llm provides LLM provider abstraction layer
package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGoogle ProviderType = "google"
)

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a function tool call requested by the model
type ToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function"`
}

// ToolFunction carries a function name plus JSON-encoded arguments
// (in a call) or a JSON-schema parameters map (in a definition)
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Arguments   string      `json:"arguments,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

// Tool represents a function tool definition
type Tool struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for LLM providers
type Provider interface {
	Name() string
	Type() ProviderType
	GetConfig() Config
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Config holds provider configuration
type Config struct {
	Type    ProviderType `json:"type"`
	APIKey  string       `json:"apiKey,omitempty"`
	BaseURL string       `json:"baseUrl,omitempty"`
	Model   string       `json:"model,omitempty"`
	Timeout int          `json:"timeout,omitempty"`
}

// ProviderRegistry manages provider instances
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[ProviderType]Provider
}

var globalRegistry = &ProviderRegistry{
	providers: make(map[ProviderType]Provider),
}

// RegisterProvider registers a provider
func RegisterProvider(p Provider) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.providers[p.Type()] = p
}

// GetProvider returns a provider by type
func GetProvider(t ProviderType) (Provider, error) {
	globalRegistry.mu.RLock()
	p, ok := globalRegistry.providers[t]
	globalRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", t)
	}
	return p, nil
}

// ListProviders returns all registered providers
func ListProviders() []ProviderType {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	types := make([]ProviderType, 0, len(globalRegistry.providers))
	for t := range globalRegistry.providers {
		types = append(types, t)
	}
	return types
}

// LoadConfigFromEnv loads provider config from environment variables
func LoadConfigFromEnv(providerType ProviderType) Config {
	cfg := Config{Type: providerType}
	switch providerType {
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-4o")
	case ProviderGoogle:
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
		cfg.Model = getEnvOrDefault("GOOGLE_MODEL", "gemini-2.0-flash")
	}
	return cfg
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
