package mqttnode

import "time"

// CredentialConfig holds broker authentication and TLS settings.
type CredentialConfig struct {
	Username string
	Password string

	TLS        bool
	CACert     string // PEM-encoded CA certificate, optional
	ClientCert string // PEM-encoded client certificate, optional
	ClientKey  string // PEM-encoded client key, optional
}

// ClientSettings holds per-connection broker parameters.
type ClientSettings struct {
	Broker       string // host:port
	ClientID     string
	CleanSession bool
	KeepAlive    time.Duration
}

// RetrySettings configures the exponential-backoff reconnect loop.
type RetrySettings struct {
	RetryDelay    time.Duration
	Backoff       float64
	MaxRetryDelay time.Duration
	MaxRetries    int

	// ReconnectOnFailure controls whether an unexpected disconnect
	// re-enters the connect loop (subscriber behavior) or simply exits.
	ReconnectOnFailure bool
}

// SubscriptionSettings lists the topics a Subscriber subscribes to on
// every (re)connect.
type SubscriptionSettings struct {
	Topics []TopicSubscription
}

// TopicSubscription is one subscribed topic filter and its QoS.
type TopicSubscription struct {
	Topic string
	QoS   byte
}

// PublishSettings holds the Publisher's defaults, overridable per event.
type PublishSettings struct {
	DefaultTopic string
	QoS          byte
	Retain       bool
}

func defaultClientSettings() ClientSettings {
	return ClientSettings{
		CleanSession: true,
		KeepAlive:    30 * time.Second,
	}
}

func defaultRetrySettings() RetrySettings {
	return RetrySettings{
		RetryDelay:         time.Second,
		Backoff:            2.0,
		MaxRetryDelay:      60 * time.Second,
		MaxRetries:         5,
		ReconnectOnFailure: true,
	}
}

func defaultPublishSettings() PublishSettings {
	return PublishSettings{QoS: 1}
}

// mergeClientSettings deep-merges user-supplied settings over the
// built-in defaults: a zero-valued string or numeric field in cfg falls
// back to the default rather than requiring every field to be specified.
// Boolean fields (CleanSession here, ReconnectOnFailure and Retain in the
// other merge helpers) are copied from cfg as given, so the built-in
// true defaults of CleanSession and ReconnectOnFailure are never used.
// Grounded on the original engine's
// _deep_merge_config helper.
func mergeClientSettings(cfg ClientSettings) ClientSettings {
	merged := defaultClientSettings()
	if cfg.Broker != "" {
		merged.Broker = cfg.Broker
	}
	if cfg.ClientID != "" {
		merged.ClientID = cfg.ClientID
	}
	if cfg.KeepAlive != 0 {
		merged.KeepAlive = cfg.KeepAlive
	}
	merged.CleanSession = cfg.CleanSession
	return merged
}

func mergeRetrySettings(cfg RetrySettings) RetrySettings {
	merged := defaultRetrySettings()
	if cfg.RetryDelay != 0 {
		merged.RetryDelay = cfg.RetryDelay
	}
	if cfg.Backoff != 0 {
		merged.Backoff = cfg.Backoff
	}
	if cfg.MaxRetryDelay != 0 {
		merged.MaxRetryDelay = cfg.MaxRetryDelay
	}
	if cfg.MaxRetries != 0 {
		merged.MaxRetries = cfg.MaxRetries
	}
	merged.ReconnectOnFailure = cfg.ReconnectOnFailure
	return merged
}

func mergePublishSettings(cfg PublishSettings) PublishSettings {
	merged := defaultPublishSettings()
	if cfg.DefaultTopic != "" {
		merged.DefaultTopic = cfg.DefaultTopic
	}
	if cfg.QoS != 0 {
		merged.QoS = cfg.QoS
	}
	merged.Retain = cfg.Retain
	return merged
}
