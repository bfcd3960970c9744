// Env-file bootstrap: API keys and other secrets can live in a
// KEY=VALUE file under the data directory instead of the shell
// environment.

package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEnvFilePath returns the env file location inside the data dir
func DefaultEnvFilePath() string {
	return filepath.Join(DefaultDataDir(), "env.config")
}

// ReadEnvFile parses a KEY=VALUE file. Blank lines and #-comments are
// skipped, an optional "export " prefix and surrounding quotes are
// stripped. A missing file yields an empty map.
func ReadEnvFile(path string) map[string]string {
	vars := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return vars
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key != "" {
			vars[key] = value
		}
	}
	return vars
}

// ApplyEnvFile loads the file into the process environment without
// clobbering variables the shell already set, so the real environment
// always wins. Returns the number of variables applied.
func ApplyEnvFile(path string) int {
	applied := 0
	for key, value := range ReadEnvFile(path) {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err == nil {
			applied++
		}
	}
	return applied
}
