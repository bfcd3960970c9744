// Package config provides configuration types and defaults for gamedex services
// Centralized management of all constants and default values

package config

import (
	"os"
	"path/filepath"
)

// ===== Ports =====

const (
	// DefaultGatewayPort is the standard port for the gamedex gateway
	DefaultGatewayPort = 8796
)

// ===== Paths =====

// DefaultDataDir returns the default data directory
func DefaultDataDir() string {
	if d := os.Getenv("GAMEDEX_DATA_DIR"); d != "" {
		return d
	}
	// Default to <binary-dir>/data
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "data")
}

// DefaultDBPath returns the default database path
func DefaultDBPath() string {
	if p := os.Getenv("GAMEDEX_DB_PATH"); p != "" {
		return p
	}
	return filepath.Join(DefaultDataDir(), "gamedex.db")
}

// DefaultKVDir returns the default badger cache directory
func DefaultKVDir() string {
	if p := os.Getenv("GAMEDEX_KV_DIR"); p != "" {
		return p
	}
	return filepath.Join(DefaultDataDir(), "kv")
}

// DefaultCronJobsPath returns the default cron jobs file path
func DefaultCronJobsPath() string {
	return filepath.Join(DefaultDataDir(), "cron-jobs.json")
}

// DefaultGatewayURL returns the default gateway URL
func DefaultGatewayURL() string {
	if u := os.Getenv("GAMEDEX_GATEWAY_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:8796"
}

// ===== Wiki endpoints =====

const (
	// DefaultSearchBaseURL is the full-text search API endpoint
	DefaultSearchBaseURL = "https://en.wikipedia.org/w/api.php"

	// DefaultSummaryBaseURL is the page summary API endpoint
	DefaultSummaryBaseURL = "https://en.wikipedia.org/api/rest_v1/page/summary"

	// DefaultUserAgent identifies the client to the wiki API
	DefaultUserAgent = "gamedex/1.0 (https://github.com/gamedex/gamedex)"
)

// ===== Buffers/Limits =====

const (
	// MaxSearchResults bounds the candidate list requested from the search API
	MaxSearchResults = 5

	// DeveloperExcerptChars is the supporting-context prefix length
	DeveloperExcerptChars = 200

	// StorySentences is the synopsis sentence count
	StorySentences = 2
)

// ===== Token/Context =====

const (
	// Context window defaults
	DefaultContextTokens = 8192
	DefaultReserveTokens = 1024
	DefaultMaxTokens     = 1000
)
