package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and creates ~/.config/reposearch.
// Returns the config directory.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "reposearch")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// TestLoadWithFile_ValidYAML tests loading configuration from a valid YAML file.
func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)

	configPath := writeConfig(t, dir, `server:
  http_port: 9090
  http_host: 0.0.0.0

searcher:
  url: http://searcher:3181
  concurrency: 4
  timeout: 2s
  rate_limit: 50

metadata:
  provider: static
  static:
    - name: github.com/acme/api
      commit: deadbeef
    - name: github.com/acme/web
      commit: cafebabe

observability:
  enable_telemetry: true
  service_name: reposearch-test
`, 0600)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Searcher.URL != "http://searcher:3181" {
		t.Errorf("Searcher.URL = %q", cfg.Searcher.URL)
	}
	if cfg.Searcher.Concurrency != 4 {
		t.Errorf("Searcher.Concurrency = %d, want 4", cfg.Searcher.Concurrency)
	}
	if cfg.Searcher.Timeout.Duration() != 2*time.Second {
		t.Errorf("Searcher.Timeout = %v, want 2s", cfg.Searcher.Timeout.Duration())
	}
	if cfg.Searcher.RateLimit != 50 {
		t.Errorf("Searcher.RateLimit = %v, want 50", cfg.Searcher.RateLimit)
	}

	commits := cfg.Metadata.StaticCommits()
	if len(commits) != 2 || commits["github.com/acme/api"] != "deadbeef" {
		t.Errorf("Metadata.StaticCommits() = %v", commits)
	}

	if cfg.Observability.ServiceName != "reposearch-test" {
		t.Errorf("Observability.ServiceName = %q, want %q", cfg.Observability.ServiceName, "reposearch-test")
	}
	if !cfg.Observability.EnableTelemetry {
		t.Error("Observability.EnableTelemetry = false, want true")
	}
}

// TestLoadWithFile_EnvironmentOverride tests that environment variables override YAML.
func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)

	configPath := writeConfig(t, dir, `server:
  http_port: 9090
searcher:
  url: http://yaml:3181
  concurrency: 3
`, 0600)

	t.Setenv("SERVER_HTTP_PORT", "7777")
	t.Setenv("SEARCHER_URL", "http://env:3181")
	t.Setenv("SEARCHER_CONCURRENCY", "12")
	t.Setenv("METADATA_GITHUB_TOKEN", "ghp_example")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (from env)", cfg.Server.Port)
	}
	if cfg.Searcher.URL != "http://env:3181" {
		t.Errorf("Searcher.URL = %q, want env value", cfg.Searcher.URL)
	}
	if cfg.Searcher.Concurrency != 12 {
		t.Errorf("Searcher.Concurrency = %d, want 12", cfg.Searcher.Concurrency)
	}
	if cfg.Metadata.GitHubToken.Value() != "ghp_example" {
		t.Error("Metadata.GitHubToken not loaded from env")
	}
	if cfg.Metadata.GitHubToken.String() != "[REDACTED]" {
		t.Errorf("GitHubToken.String() = %q, want redacted", cfg.Metadata.GitHubToken.String())
	}
}

// TestLoadWithFile_MissingFile tests that a missing file yields defaults.
func TestLoadWithFile_MissingFile(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() should not error on missing file, got: %v", err)
	}

	if cfg.Server.Port != DefaultHTTPPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultHTTPPort)
	}
	if cfg.Searcher.Concurrency != DefaultConcurrency {
		t.Errorf("Searcher.Concurrency = %d, want %d", cfg.Searcher.Concurrency, DefaultConcurrency)
	}
	if cfg.Metadata.Provider != ProviderStatic {
		t.Errorf("Metadata.Provider = %q, want static", cfg.Metadata.Provider)
	}
}

// TestLoadWithFile_DefaultPath tests that an empty path resolves under HOME.
func TestLoadWithFile_DefaultPath(t *testing.T) {
	dir := setupTestHome(t)
	writeConfig(t, dir, "searcher:\n  concurrency: 7\n", 0600)

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile(\"\") error = %v", err)
	}
	if cfg.Searcher.Concurrency != 7 {
		t.Errorf("Searcher.Concurrency = %d, want 7", cfg.Searcher.Concurrency)
	}
}

// TestLoadWithFile_IgnoresUnrelatedEnv tests that variables outside known sections are skipped.
func TestLoadWithFile_IgnoresUnrelatedEnv(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("LOGGING", "not-a-section-map")
	t.Setenv("UNRELATED_SETTING", "x")

	if _, err := LoadWithFile(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
}

// TestLoadWithFile_InvalidYAML tests handling of malformed YAML.
func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	configPath := writeConfig(t, dir, `server:
  http_port: not-a-number
  invalid syntax here
`, 0600)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on invalid YAML, got nil")
	}
}

// TestLoadWithFile_Validation tests configuration validation.
func TestLoadWithFile_Validation(t *testing.T) {
	dir := setupTestHome(t)
	configPath := writeConfig(t, dir, `server:
  http_port: 99999
`, 0600)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on invalid port, got nil")
	}
}

// TestLoadWithFile_PathTraversal tests path traversal attack prevention.
func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("../../../../etc/passwd")
	if err == nil {
		t.Fatal("Expected error for path traversal, got nil")
	}
	if !strings.Contains(err.Error(), "must be in ~/.config/reposearch/ or /etc/reposearch/") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	valid := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "subdir", "config.yaml"),
		"/etc/reposearch/config.yaml",
	}
	for _, p := range valid {
		if err := validateConfigPath(p); err != nil {
			t.Errorf("validateConfigPath(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"/etc/reposearch../etc/passwd",
		filepath.Join(dir, "..", "..", "..", "etc", "passwd"),
		"/tmp/config.yaml",
	}
	for _, p := range invalid {
		if err := validateConfigPath(p); err == nil {
			t.Errorf("validateConfigPath(%q) = nil, want error", p)
		}
	}
}

// TestLoadWithFile_InsecurePermissions tests rejection of world-readable files.
func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	configPath := writeConfig(t, dir, "server:\n  http_port: 9090\n", 0644)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for insecure permissions, got nil")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestLoadWithFile_FileTooLarge tests the file size limit.
func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)

	var buf bytes.Buffer
	buf.WriteString("server:\n  http_port: 9090\n")
	for buf.Len() <= maxConfigFileSize {
		buf.WriteString("# padding padding padding padding padding padding padding\n")
	}
	configPath := writeConfig(t, dir, buf.String(), 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for oversized file, got nil")
	}
	if !strings.Contains(err.Error(), "config file too large") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SEARCHER_URL":          "searcher.url",
		"SEARCHER_RATE_LIMIT":   "searcher.rate_limit",
		"METADATA_GITHUB_TOKEN": "metadata.github_token",
		"SERVER_HTTP_PORT":      "server.http_port",
		"PATH":                  "",
		"HOME_DIR":              "",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
