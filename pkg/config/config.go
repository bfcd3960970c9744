// Package config provides configuration types for gamedex services
// Values come from an optional YAML file with environment overrides

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// WikiConfig holds the encyclopedia endpoints the resolver talks to
type WikiConfig struct {
	SearchBaseURL  string `yaml:"searchBaseUrl"`
	SummaryBaseURL string `yaml:"summaryBaseUrl"`
	UserAgent      string `yaml:"userAgent"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// GatewayConfig holds all configurable gateway parameters
type GatewayConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	AuthToken    string        `yaml:"authToken"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	MaxBodyChat  int64         `yaml:"maxBodyChat"`
	MaxBodyCron  int64         `yaml:"maxBodyCron"`
}

// AgentConfig holds agent loop parameters
type AgentConfig struct {
	Provider      string `yaml:"provider"` // "openai" or "google"
	Model         string `yaml:"model"`
	SystemPrompt  string `yaml:"systemPrompt"`
	MaxToolRounds int    `yaml:"maxToolRounds"`
	ContextTokens int    `yaml:"contextTokens"`
}

// CacheConfig holds lookup-cache parameters
type CacheConfig struct {
	Enabled    bool  `yaml:"enabled"`
	TTLMinutes int   `yaml:"ttlMinutes"`
	MaxSizeMB  int64 `yaml:"maxSizeMb"`
}

// ServerConfig is the top-level configuration
type ServerConfig struct {
	Gateway      *GatewayConfig `yaml:"gateway"`
	Agent        *AgentConfig   `yaml:"agent"`
	Wiki         *WikiConfig    `yaml:"wiki"`
	Cache        *CacheConfig   `yaml:"cache"`
	DBPath       string         `yaml:"dbPath"`
	KVDir        string         `yaml:"kvDir"`
	CronJobsPath string         `yaml:"cronJobsPath"`
}

// DefaultWikiConfig returns the default wiki endpoints
func DefaultWikiConfig() *WikiConfig {
	return &WikiConfig{
		SearchBaseURL:  DefaultSearchBaseURL,
		SummaryBaseURL: DefaultSummaryBaseURL,
		UserAgent:      DefaultUserAgent,
		TimeoutSeconds: 10,
	}
}

// DefaultGatewayConfig returns the default gateway configuration
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Host:         "0.0.0.0",
		Port:         DefaultGatewayPort,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  300 * time.Second,
		MaxBodyChat:  2 * 1024 * 1024, // 2MB
		MaxBodyCron:  256 * 1024,      // 256KB
	}
}

// DefaultAgentConfig returns the default agent configuration
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Provider:      "openai",
		MaxToolRounds: 8,
		ContextTokens: DefaultContextTokens,
	}
}

// DefaultCacheConfig returns the default lookup-cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:    true,
		TTLMinutes: 60,
		MaxSizeMB:  64,
	}
}

// DefaultServerConfig returns the full default configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Gateway:      DefaultGatewayConfig(),
		Agent:        DefaultAgentConfig(),
		Wiki:         DefaultWikiConfig(),
		Cache:        DefaultCacheConfig(),
		DBPath:       DefaultDBPath(),
		KVDir:        DefaultKVDir(),
		CronJobsPath: DefaultCronJobsPath(),
	}
}

// Load reads the YAML config file at path (missing file is not an error),
// then applies environment overrides on top
func Load(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Gateway == nil {
		cfg.Gateway = DefaultGatewayConfig()
	}
	if cfg.Agent == nil {
		cfg.Agent = DefaultAgentConfig()
	}
	if cfg.Wiki == nil {
		cfg.Wiki = DefaultWikiConfig()
	}
	if cfg.Cache == nil {
		cfg.Cache = DefaultCacheConfig()
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *ServerConfig) applyEnv() {
	if v := os.Getenv("GAMEDEX_GATEWAY_PORT"); v != "" && c.Gateway != nil {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("GAMEDEX_AUTH_TOKEN"); v != "" && c.Gateway != nil {
		c.Gateway.AuthToken = v
	}
	if v := os.Getenv("GAMEDEX_PROVIDER"); v != "" && c.Agent != nil {
		c.Agent.Provider = v
	}
	if v := os.Getenv("GAMEDEX_MODEL"); v != "" && c.Agent != nil {
		c.Agent.Model = v
	}
	if c.Wiki != nil {
		if v := os.Getenv("GAMEDEX_SEARCH_BASE_URL"); v != "" {
			c.Wiki.SearchBaseURL = v
		}
		if v := os.Getenv("GAMEDEX_SUMMARY_BASE_URL"); v != "" {
			c.Wiki.SummaryBaseURL = v
		}
		if v := os.Getenv("GAMEDEX_USER_AGENT"); v != "" {
			c.Wiki.UserAgent = v
		}
	}
	if v := os.Getenv("GAMEDEX_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GAMEDEX_KV_DIR"); v != "" {
		c.KVDir = v
	}
}
