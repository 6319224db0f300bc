// Package config loads the graph definition and node defaults from a
// YAML file: a list of node declarations, the edges between them, and
// per-node-type default settings (MQTT broker credentials, SMTP
// credentials, HTTP client defaults) that individual node configs
// deep-merge over.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is a package variable so tests can override the
// search order without touching the real filesystem.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order: ./config.yaml,
// ~/.config/eventgraph/config.yaml, the container convention
// /config/config.yaml, then /etc/eventgraph/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "eventgraph", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml")
	paths = append(paths, "/etc/eventgraph/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise searchPathsFunc is consulted in order and the first
// existing path wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds the graph definition plus the per-node-type defaults
// node configs deep-merge over.
type Config struct {
	LogLevel string    `yaml:"log_level"`
	Graph    GraphSpec `yaml:"graph"`
	MQTT     MQTTDefaults `yaml:"mqtt"`
	SMTP     SMTPDefaults `yaml:"smtp"`
	HTTP     HTTPDefaults `yaml:"http"`
}

// GraphSpec is the declarative node/edge list the CLI walks to
// construct and wire engine nodes before calling ObserverGraph.Start.
type GraphSpec struct {
	Nodes []NodeSpec `yaml:"nodes"`
	Edges []EdgeSpec `yaml:"edges"`
}

// NodeSpec declares one node: its id, its type (a key the CLI's node
// builder switches on — "mqtt_subscriber", "mqtt_publisher", "switch",
// "mapper", "http_get", "email", "lorawan", ...), and the node's own
// config, left as a generic map since each node type owns its shape.
type NodeSpec struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// EdgeSpec declares a directed edge from one node to another.
type EdgeSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MQTTDefaults are broker credential and retry settings every
// mqtt_subscriber/mqtt_publisher node config deep-merges over.
type MQTTDefaults struct {
	Broker        string        `yaml:"broker"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TLS           bool          `yaml:"tls"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Backoff       float64       `yaml:"backoff"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
	MaxRetries    int           `yaml:"max_retries"`
}

// SMTPDefaults are SMTP credential and sender settings every email node
// config deep-merges over.
type SMTPDefaults struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"start_tls"`
	From     string `yaml:"from"`
}

// HTTPDefaults are request settings every http_* and lorawan node
// config deep-merges over.
type HTTPDefaults struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MQTT.RetryDelay == 0 {
		c.MQTT.RetryDelay = time.Second
	}
	if c.MQTT.Backoff == 0 {
		c.MQTT.Backoff = 2.0
	}
	if c.MQTT.MaxRetryDelay == 0 {
		c.MQTT.MaxRetryDelay = 60 * time.Second
	}
	if c.MQTT.MaxRetries == 0 {
		c.MQTT.MaxRetries = 5
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.Retries == 0 {
		c.HTTP.Retries = 3
	}
	if c.HTTP.RetryDelay == 0 {
		c.HTTP.RetryDelay = time.Second
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Graph.Nodes))
	for i, n := range c.Graph.Nodes {
		if n.ID == "" {
			return fmt.Errorf("graph.nodes[%d]: id must not be empty", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("graph.nodes[%d]: id %q is a duplicate", i, n.ID)
		}
		seen[n.ID] = true
		if n.Type == "" {
			return fmt.Errorf("graph.nodes[%d] (%s): type must not be empty", i, n.ID)
		}
	}

	for i, e := range c.Graph.Edges {
		if !seen[e.From] {
			return fmt.Errorf("graph.edges[%d]: unknown source node %q", i, e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("graph.edges[%d]: unknown target node %q", i, e.To)
		}
	}

	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d out of range (0-65535)", c.SMTP.Port)
	}

	return nil
}

// Default returns a minimal configuration (no nodes) with all defaults
// already applied, suitable as a starting point for `graphctl validate`
// against an empty graph.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
