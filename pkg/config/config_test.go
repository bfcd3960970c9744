package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultGatewayPort(t *testing.T) {
	port := DefaultGatewayPort
	if port != 8796 {
		t.Errorf("Expected 8796, got %d", port)
	}
}

func TestDefaultDataDir(t *testing.T) {
	dir := DefaultDataDir()
	if dir == "" {
		t.Error("DefaultDataDir should not be empty")
	}
}

func TestDefaultDBPath(t *testing.T) {
	path := DefaultDBPath()
	if path == "" {
		t.Error("DefaultDBPath should not be empty")
	}
}

func TestDefaultGatewayURL(t *testing.T) {
	url := DefaultGatewayURL()
	if url == "" {
		t.Error("DefaultGatewayURL should not be empty")
	}

	expected := "http://127.0.0.1:8796"
	if url != expected {
		t.Errorf("Expected '%s', got '%s'", expected, url)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("GAMEDEX_DATA_DIR", "/tmp/test-gamedex")
	defer os.Unsetenv("GAMEDEX_DATA_DIR")

	dir := DefaultDataDir()
	if dir != "/tmp/test-gamedex" {
		t.Errorf("Expected '/tmp/test-gamedex', got '%s'", dir)
	}
}

func TestGatewayConfig(t *testing.T) {
	cfg := GatewayConfig{
		Port: 8796,
		Host: "127.0.0.1",
	}

	if cfg.Port != 8796 {
		t.Errorf("Expected port 8796, got %d", cfg.Port)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1', got '%s'", cfg.Host)
	}
}

func TestAgentConfig(t *testing.T) {
	cfg := AgentConfig{
		Model: "test-model",
	}

	if cfg.Model != "test-model" {
		t.Errorf("Expected model 'test-model', got '%s'", cfg.Model)
	}
}

func TestDefaultWikiConfig(t *testing.T) {
	cfg := DefaultWikiConfig()

	if cfg.SearchBaseURL == "" {
		t.Error("SearchBaseURL should not be empty")
	}
	if cfg.SummaryBaseURL == "" {
		t.Error("SummaryBaseURL should not be empty")
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should not be empty")
	}
	if cfg.TimeoutSeconds <= 0 {
		t.Error("TimeoutSeconds should be positive")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file should not error: %v", err)
	}
	if cfg.Gateway == nil || cfg.Wiki == nil || cfg.Agent == nil {
		t.Fatal("Load should fill in defaults")
	}
	if cfg.Gateway.Port != DefaultGatewayPort {
		t.Errorf("Expected default port, got %d", cfg.Gateway.Port)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedex.yaml")
	data := []byte("gateway:\n  port: 9999\nwiki:\n  userAgent: test-agent\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Wiki.UserAgent != "test-agent" {
		t.Errorf("Expected userAgent 'test-agent', got '%s'", cfg.Wiki.UserAgent)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedex.yaml")
	data := []byte("gateway:\n  port: 9999\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("GAMEDEX_GATEWAY_PORT", "7777")
	defer os.Unsetenv("GAMEDEX_GATEWAY_PORT")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Port != 7777 {
		t.Errorf("Env should override file: expected 7777, got %d", cfg.Gateway.Port)
	}
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.config")
	data := "# keys\nOPENAI_API_KEY=sk-test\nexport GAMEDEX_MODEL=\"gpt-4o-mini\"\n\nmalformed line\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	got := ReadEnvFile(path)
	if got["OPENAI_API_KEY"] != "sk-test" {
		t.Errorf("Expected sk-test, got %q", got["OPENAI_API_KEY"])
	}
	if got["GAMEDEX_MODEL"] != "gpt-4o-mini" {
		t.Errorf("export prefix and quotes should be stripped, got %q", got["GAMEDEX_MODEL"])
	}
	if len(got) != 2 {
		t.Errorf("Comments and malformed lines should be skipped, got %v", got)
	}
}

func TestReadEnvFileMissing(t *testing.T) {
	got := ReadEnvFile(filepath.Join(t.TempDir(), "nope"))
	if len(got) != 0 {
		t.Errorf("Missing file should yield an empty map, got %v", got)
	}
}

func TestApplyEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.config")
	data := "GAMEDEX_TEST_FROMFILE=file\nGAMEDEX_TEST_PRESET=file\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("GAMEDEX_TEST_PRESET", "shell")
	defer os.Unsetenv("GAMEDEX_TEST_PRESET")
	defer os.Unsetenv("GAMEDEX_TEST_FROMFILE")

	applied := ApplyEnvFile(path)
	if applied != 1 {
		t.Errorf("Expected 1 applied var, got %d", applied)
	}
	if v := os.Getenv("GAMEDEX_TEST_FROMFILE"); v != "file" {
		t.Errorf("Unset var should come from the file, got %q", v)
	}
	if v := os.Getenv("GAMEDEX_TEST_PRESET"); v != "shell" {
		t.Errorf("Shell environment must win over the file, got %q", v)
	}
}
