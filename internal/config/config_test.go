package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// Override searchPathsFunc to avoid finding real config files on
	// developer/deploy machines (~/.config/eventgraph/config.yaml etc.).
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mqtt:\n  password: ${EVENTGRAPH_TEST_PASSWORD}\n"), 0600)
	os.Setenv("EVENTGRAPH_TEST_PASSWORD", "secret123")
	defer os.Unsetenv("EVENTGRAPH_TEST_PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestLoad_InlineSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("smtp:\n  password: app-password-test\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SMTP.Password != "app-password-test" {
		t.Errorf("password = %q, want %q", cfg.SMTP.Password, "app-password-test")
	}
}

func TestLoad_GraphNodesAndEdges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(`
graph:
  nodes:
    - id: sensor
      type: mqtt_subscriber
      config:
        topics: ["sensors/#"]
    - id: router
      type: switch
  edges:
    - from: sensor
      to: router
`), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.Graph.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(cfg.Graph.Nodes))
	}
	if cfg.Graph.Nodes[0].ID != "sensor" || cfg.Graph.Nodes[0].Type != "mqtt_subscriber" {
		t.Errorf("Nodes[0] = %+v", cfg.Graph.Nodes[0])
	}
	if len(cfg.Graph.Edges) != 1 || cfg.Graph.Edges[0].From != "sensor" || cfg.Graph.Edges[0].To != "router" {
		t.Errorf("Edges = %+v", cfg.Graph.Edges)
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	cfg := Default()
	cfg.Graph.Nodes = []NodeSpec{
		{ID: "a", Type: "switch"},
		{ID: "a", Type: "mapper"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate node id")
	}
}

func TestValidate_EdgeReferencesUnknownNode(t *testing.T) {
	cfg := Default()
	cfg.Graph.Nodes = []NodeSpec{{ID: "a", Type: "switch"}}
	cfg.Graph.Edges = []EdgeSpec{{From: "a", To: "missing"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for edge referencing unknown node")
	}
}

func TestValidate_EmptyNodeType(t *testing.T) {
	cfg := Default()
	cfg.Graph.Nodes = []NodeSpec{{ID: "a", Type: ""}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for node with empty type")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_SMTPPortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.SMTP.Port = 70000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range smtp port")
	}
}

func TestApplyDefaults_MQTTRetrySettings(t *testing.T) {
	cfg := Default()
	if cfg.MQTT.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.MQTT.RetryDelay)
	}
	if cfg.MQTT.Backoff != 2.0 {
		t.Errorf("Backoff = %v, want 2.0", cfg.MQTT.Backoff)
	}
	if cfg.MQTT.MaxRetryDelay != 60*time.Second {
		t.Errorf("MaxRetryDelay = %v, want 60s", cfg.MQTT.MaxRetryDelay)
	}
	if cfg.MQTT.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MQTT.MaxRetries)
	}
}

func TestApplyDefaults_SMTPPort(t *testing.T) {
	cfg := Default()
	if cfg.SMTP.Port != 587 {
		t.Errorf("Port = %d, want 587", cfg.SMTP.Port)
	}
}

func TestApplyDefaults_HTTPDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.HTTP.Retries)
	}
	if cfg.HTTP.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.HTTP.RetryDelay)
	}
}

func TestApplyDefaults_LogLevel(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}
