package agent

import (
	"fmt"
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ToolResultTruncationConfig configures tool result truncation
type ToolResultTruncationConfig struct {
	MaxBytes int // Maximum bytes
	MaxLines int // Maximum lines
}

// DefaultToolResultTruncationConfig default config
var DefaultToolResultTruncationConfig = ToolResultTruncationConfig{
	MaxBytes: 15000, // 15KB
	MaxLines: 500,
}

// TruncateToolResult truncates oversized tool results, keeping the front
// and back and cutting the middle
func TruncateToolResult(content string, cfg ToolResultTruncationConfig) string {
	if cfg.MaxBytes == 0 {
		cfg = DefaultToolResultTruncationConfig
	}

	if len(content) <= cfg.MaxBytes {
		return content
	}

	half := cfg.MaxBytes / 2
	return content[:half] + "\n[... " +
		fmt.Sprintf("%d", len(content)-cfg.MaxBytes) + " bytes truncated ...]\n" + content[len(content)-half:]
}

// tokenCounter is a package-level tiktoken instance for accurate counting
var (
	tokenCounter     *tiktoken.Tiktoken
	tokenCounterOnce sync.Once
)

// initTokenCounter initializes tiktoken for accurate token counting
func initTokenCounter() {
	tokenCounterOnce.Do(func() {
		// cl100k_base is used by GPT-3.5 Turbo, GPT-4, GPT-4 Turbo
		tk, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[WARN] Token estimation will use fallback method: %v", err)
			return
		}
		tokenCounter = tk
	})
}

// EstimateTokens counts tokens across message contents with tiktoken,
// falling back to a rough per-rune estimate when the encoding is
// unavailable
func EstimateTokens(contents []string) int {
	initTokenCounter()

	if tokenCounter != nil {
		total := 0
		for _, c := range contents {
			total += len(tokenCounter.Encode(c, nil, nil))
		}
		return total
	}

	total := 0
	for _, c := range contents {
		ascii := 0
		nonASCII := 0
		for _, r := range c {
			if r <= 127 {
				ascii++
			} else {
				nonASCII++
			}
		}
		// Rough estimate: ASCII ~4 chars/token, non-ASCII (e.g., CJK) ~2 tokens/char
		total += ascii/4 + nonASCII*2 + 4
	}
	return total
}
