// Package factory provides the provider factory and initialization
package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/gamedex/gamedex/pkg/llm"
	"github.com/gamedex/gamedex/pkg/llm/providers/google"
	"github.com/gamedex/gamedex/pkg/llm/providers/openai"
)

// InitProviders initializes the available LLM providers from environment
func InitProviders(ctx context.Context) error {
	if os.Getenv("OPENAI_API_KEY") != "" {
		p := openai.NewFromEnv()
		llm.RegisterProvider(p)
		fmt.Printf("[OK] Registered provider: OpenAI (model: %s)\n", p.GetConfig().Model)
	}

	if os.Getenv("GOOGLE_API_KEY") != "" {
		p, err := google.NewFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("init google provider: %w", err)
		}
		llm.RegisterProvider(p)
		fmt.Printf("[OK] Registered provider: Google (model: %s)\n", p.GetConfig().Model)
	}

	return nil
}

// GetDefaultProvider returns the default provider based on available API keys
func GetDefaultProvider() (llm.Provider, error) {
	// Priority: OpenAI > Google
	providers := []llm.ProviderType{
		llm.ProviderOpenAI,
		llm.ProviderGoogle,
	}

	for _, t := range providers {
		if p, err := llm.GetProvider(t); err == nil {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no provider available")
}

// GetProviderOrDefault resolves a named provider, falling back to default
func GetProviderOrDefault(name string) (llm.Provider, error) {
	if name != "" {
		if p, err := llm.GetProvider(llm.ProviderType(name)); err == nil {
			return p, nil
		}
	}
	return GetDefaultProvider()
}
