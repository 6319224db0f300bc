package main

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/nugget/eventgraph/internal/config"
	"github.com/nugget/eventgraph/internal/convert"
	"github.com/nugget/eventgraph/internal/emailnode"
	"github.com/nugget/eventgraph/internal/engine"
	"github.com/nugget/eventgraph/internal/httpnode"
	"github.com/nugget/eventgraph/internal/lorawannode"
	"github.com/nugget/eventgraph/internal/mapper"
	"github.com/nugget/eventgraph/internal/mqttnode"
	"github.com/nugget/eventgraph/internal/opsbus"
	"github.com/nugget/eventgraph/internal/switchnode"
)

// buildGraph walks cfg.Graph.Nodes and cfg.Graph.Edges, constructing the
// concrete node for each NodeSpec.Type and wiring the declared edges.
// An opsbus.NodeObserverMiddleware is installed globally so every node's
// pipeline activity reaches the inspect feed.
func buildGraph(cfg *config.Config, bus *opsbus.Bus, logger *slog.Logger) (*engine.ObserverGraph, error) {
	g := engine.NewObserverGraph(logger)
	g.AddGlobalMiddleware(opsbus.NewNodeObserverMiddleware(bus))

	for _, spec := range cfg.Graph.Nodes {
		node, err := buildNode(spec, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build node %q: %w", spec.ID, err)
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, edge := range cfg.Graph.Edges {
		if err := g.AddEdge(edge.From, edge.To); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// decodeNodeConfig re-marshals raw (already decoded by yaml.v3 into
// generic map[string]any/[]any values) and unmarshals it into target.
// This lets every node package keep its own typed config struct while
// NodeSpec.Config stays a generic map in internal/config.
func decodeNodeConfig(raw map[string]any, target any) error {
	if raw == nil {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-marshal node config: %w", err)
	}
	return yaml.Unmarshal(data, target)
}

func buildNode(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	nodeLogger := logger.With("node_id", spec.ID, "node_type", spec.Type)

	switch spec.Type {
	case "mqtt_subscriber":
		return buildMQTTSubscriber(spec, cfg, nodeLogger)
	case "mqtt_publisher":
		return buildMQTTPublisher(spec, cfg, nodeLogger)
	case "switch":
		return buildSwitch(spec, nodeLogger)
	case "mapper":
		return buildMapper(spec, nodeLogger)
	case "http_get", "http_post", "http_put", "http_patch", "http_delete":
		return buildHTTP(spec, cfg, nodeLogger)
	case "email":
		return buildEmail(spec, cfg, nodeLogger)
	case "lorawan":
		return buildLoRaWAN(spec, cfg, nodeLogger)
	case "convert_csv", "convert_xml", "convert_html":
		return buildConvert(spec, nodeLogger)
	default:
		return nil, fmt.Errorf("unknown node type %q", spec.Type)
	}
}

type mqttSubscriberConfig struct {
	Credential mqttnode.CredentialConfig  `yaml:"credential"`
	Client     mqttnode.ClientSettings    `yaml:"client"`
	Retry      mqttnode.RetrySettings     `yaml:"retry"`
	Topics     []mqttnode.TopicSubscription `yaml:"topics"`
}

func buildMQTTSubscriber(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	var nc mqttSubscriberConfig
	if err := decodeNodeConfig(spec.Config, &nc); err != nil {
		return nil, err
	}
	applyMQTTDefaults(&nc.Credential, &nc.Client, &nc.Retry, cfg.MQTT)

	return mqttnode.NewSubscriber(spec.ID, nc.Credential, nc.Client, nc.Retry, nc.Topics, logger), nil
}

type mqttPublisherConfig struct {
	Credential mqttnode.CredentialConfig `yaml:"credential"`
	Client     mqttnode.ClientSettings   `yaml:"client"`
	Retry      mqttnode.RetrySettings    `yaml:"retry"`
	Publish    mqttnode.PublishSettings  `yaml:"publish"`
}

func buildMQTTPublisher(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	var nc mqttPublisherConfig
	if err := decodeNodeConfig(spec.Config, &nc); err != nil {
		return nil, err
	}
	applyMQTTDefaults(&nc.Credential, &nc.Client, &nc.Retry, cfg.MQTT)

	return mqttnode.NewPublisher(spec.ID, nc.Credential, nc.Client, nc.Retry, nc.Publish, logger), nil
}

// applyMQTTDefaults fills broker credential/client/retry fields left
// empty at the node level from the config-wide MQTT defaults.
func applyMQTTDefaults(cred *mqttnode.CredentialConfig, client *mqttnode.ClientSettings, retry *mqttnode.RetrySettings, d config.MQTTDefaults) {
	if client.Broker == "" {
		client.Broker = d.Broker
	}
	if cred.Username == "" {
		cred.Username = d.Username
	}
	if cred.Password == "" {
		cred.Password = d.Password
	}
	if !cred.TLS {
		cred.TLS = d.TLS
	}
	if retry.RetryDelay == 0 {
		retry.RetryDelay = d.RetryDelay
	}
	if retry.Backoff == 0 {
		retry.Backoff = d.Backoff
	}
	if retry.MaxRetryDelay == 0 {
		retry.MaxRetryDelay = d.MaxRetryDelay
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = d.MaxRetries
	}
}

type switchConfig struct {
	Rules         []switchnode.RuleConfig `yaml:"rules"`
	DefaultTarget string                  `yaml:"default_target"`
}

func buildSwitch(spec config.NodeSpec, logger *slog.Logger) (engine.GraphNode, error) {
	var sc switchConfig
	if err := decodeNodeConfig(spec.Config, &sc); err != nil {
		return nil, err
	}
	return switchnode.New(spec.ID, sc.Rules, sc.DefaultTarget, logger), nil
}

type mapperConfig struct {
	Mode          mapper.Mode            `yaml:"mode"`
	Mappings      []mapper.Mapping       `yaml:"mappings"`
	ArraySettings *mapper.ArraySettings  `yaml:"array_settings"`
	ErrorHandling mapper.ErrorHandling   `yaml:"error_handling"`
}

func buildMapper(spec config.NodeSpec, logger *slog.Logger) (engine.GraphNode, error) {
	var mc mapperConfig
	if err := decodeNodeConfig(spec.Config, &mc); err != nil {
		return nil, err
	}
	if mc.Mode == "" {
		mc.Mode = mapper.ModeObject
	}
	proc, err := mapper.New(mc.Mode, mc.Mappings, mc.ArraySettings, mc.ErrorHandling, logger)
	if err != nil {
		return nil, err
	}
	node := engine.NewBaseNode(spec.ID, "mapper", nil, logger)
	node.AddProcessor(proc)
	return node, nil
}

type httpNodeConfig struct {
	Timeout    string            `yaml:"timeout"`
	Retries    int               `yaml:"retries"`
	RetryDelay string            `yaml:"retry_delay"`
	Headers    map[string]string `yaml:"headers"`
}

func buildHTTP(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	var hc httpNodeConfig
	if err := decodeNodeConfig(spec.Config, &hc); err != nil {
		return nil, err
	}

	httpCfg := httpnode.Config{
		Timeout:    cfg.HTTP.Timeout,
		Retries:    cfg.HTTP.Retries,
		RetryDelay: cfg.HTTP.RetryDelay,
		Headers:    hc.Headers,
	}
	if d, err := parseDuration(hc.Timeout); err == nil && d > 0 {
		httpCfg.Timeout = d
	}
	if hc.Retries > 0 {
		httpCfg.Retries = hc.Retries
	}
	if d, err := parseDuration(hc.RetryDelay); err == nil && d > 0 {
		httpCfg.RetryDelay = d
	}

	var method httpnode.Method
	switch spec.Type {
	case "http_get":
		method = httpnode.MethodGet
	case "http_post":
		method = httpnode.MethodPost
	case "http_put":
		method = httpnode.MethodPut
	case "http_patch":
		method = httpnode.MethodPatch
	case "http_delete":
		method = httpnode.MethodDelete
	}

	proc := httpnode.New(method, httpCfg, logger)
	node := engine.NewBaseNode(spec.ID, spec.Type, nil, logger)
	node.AddProcessor(proc)
	return node, nil
}

type emailNodeConfig struct {
	SMTP     emailnode.SMTPConfig    `yaml:"smtp"`
	Defaults emailnode.Defaults      `yaml:"defaults"`
	Retry    emailnode.RetrySettings `yaml:"retry"`
}

func buildEmail(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	var ec emailNodeConfig
	if err := decodeNodeConfig(spec.Config, &ec); err != nil {
		return nil, err
	}

	if ec.SMTP.Host == "" {
		ec.SMTP.Host = cfg.SMTP.Host
	}
	if ec.SMTP.Port == 0 {
		ec.SMTP.Port = cfg.SMTP.Port
	}
	if ec.SMTP.Username == "" {
		ec.SMTP.Username = cfg.SMTP.Username
	}
	if ec.SMTP.Password == "" {
		ec.SMTP.Password = cfg.SMTP.Password
	}
	if !ec.SMTP.StartTLS {
		ec.SMTP.StartTLS = cfg.SMTP.StartTLS
	}
	if ec.Defaults.From == "" {
		ec.Defaults.From = cfg.SMTP.From
	}

	proc := emailnode.New(ec.SMTP, ec.Defaults, ec.Retry, logger)
	node := engine.NewBaseNode(spec.ID, "email", nil, logger)
	node.AddProcessor(proc)
	node.AddMiddleware(&emailnode.ValidationMiddleware{})
	return node, nil
}

type lorawanNodeConfig struct {
	Provider   lorawannode.Provider `yaml:"provider"`
	Endpoint   string               `yaml:"endpoint"`
	APIKey     string               `yaml:"api_key"`
	DeviceID   string               `yaml:"device_id"`
	FPort      int                  `yaml:"f_port"`
	Timeout    string               `yaml:"timeout"`
	Retries    int                  `yaml:"retries"`
	RetryDelay string               `yaml:"retry_delay"`
	Headers    map[string]string    `yaml:"headers"`
}

func buildLoRaWAN(spec config.NodeSpec, cfg *config.Config, logger *slog.Logger) (engine.GraphNode, error) {
	var lc lorawanNodeConfig
	if err := decodeNodeConfig(spec.Config, &lc); err != nil {
		return nil, err
	}

	lwCfg := lorawannode.Config{
		Provider:   lc.Provider,
		Endpoint:   lc.Endpoint,
		APIKey:     lc.APIKey,
		DeviceID:   lc.DeviceID,
		FPort:      lc.FPort,
		Timeout:    cfg.HTTP.Timeout,
		Retries:    cfg.HTTP.Retries,
		RetryDelay: cfg.HTTP.RetryDelay,
		Headers:    lc.Headers,
	}
	if d, err := parseDuration(lc.Timeout); err == nil && d > 0 {
		lwCfg.Timeout = d
	}
	if lc.Retries > 0 {
		lwCfg.Retries = lc.Retries
	}
	if d, err := parseDuration(lc.RetryDelay); err == nil && d > 0 {
		lwCfg.RetryDelay = d
	}

	proc := lorawannode.New(lwCfg, logger)
	node := engine.NewBaseNode(spec.ID, "lorawan", nil, logger)
	node.AddProcessor(proc)
	return node, nil
}

type convertNodeConfig struct {
	CSV convert.CSVConfig `yaml:"csv"`
}

func buildConvert(spec config.NodeSpec, logger *slog.Logger) (engine.GraphNode, error) {
	var format convert.Format
	switch spec.Type {
	case "convert_csv":
		format = convert.FormatCSV
	case "convert_xml":
		format = convert.FormatXML
	case "convert_html":
		format = convert.FormatHTML
	}

	var cc convertNodeConfig
	if err := decodeNodeConfig(spec.Config, &cc); err != nil {
		return nil, err
	}

	proc := convert.New(format, cc.CSV)
	node := engine.NewBaseNode(spec.ID, spec.Type, nil, logger)
	node.AddProcessor(proc)
	return node, nil
}
