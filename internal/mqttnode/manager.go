// Package mqttnode implements the MQTT connection manager and the
// subscriber/publisher graph nodes built on top of it. Unlike the
// reference implementation's use of paho.golang's autopaho connection
// manager (which owns reconnection internally), this manager drives the
// lower-level paho.Client directly so the exponential-backoff reconnect
// sequence required by the engine is explicit and testable.
package mqttnode

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eclipse/paho.golang/paho"
)

// MessageHandler receives every message delivered on a subscribed topic.
type MessageHandler func(topic string, payload []byte, qos byte, retain bool)

// Manager owns exactly one broker connection on behalf of a subscriber
// or publisher node. It is not shared across nodes.
type Manager struct {
	credential CredentialConfig
	client     ClientSettings
	retry      RetrySettings
	topics     []TopicSubscription

	onMessage    MessageHandler
	onConnected  func()
	onDisconnect func(err error)

	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	pc      *paho.Client
	running bool
}

// NewManager builds a Manager. Client and retry settings are
// deep-merged over built-in defaults.
func NewManager(cred CredentialConfig, client ClientSettings, retry RetrySettings, topics []TopicSubscription, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		credential: cred,
		client:     mergeClientSettings(client),
		retry:      mergeRetrySettings(retry),
		topics:     topics,
		logger:     logger,
	}
}

// OnMessage sets the callback invoked for every received publish.
func (m *Manager) OnMessage(h MessageHandler) { m.onMessage = h }

// OnConnected sets the callback invoked after each successful connect
// (including reconnects).
func (m *Manager) OnConnected(h func()) { m.onConnected = h }

// OnDisconnect sets the callback invoked when the connection drops
// unexpectedly.
func (m *Manager) OnDisconnect(h func(err error)) { m.onDisconnect = h }

// IsRunning reports whether the manager currently holds a live
// connection.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start connects to the broker, retrying with exponential backoff on
// failure, and — if topics were configured — subscribes once connected.
// Start launches no goroutine of its own; a later connection loss is
// handled by handleDisconnect, which the client's disconnect and error
// callbacks invoke.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.connectWithRetry(ctx); err != nil {
		return err
	}
	return nil
}

// Stop disconnects and releases the held connection.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	if m.pc == nil {
		return nil
	}
	err := m.pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
	m.pc = nil
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return err
}

// Publish sends payload to topic at the given QoS/retain settings.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("mqttnode: publish: not connected")
	}

	_, err := pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("mqttnode: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe adds a topic subscription on the live connection. Exposed
// beyond the static subscription list so a running Subscriber node can
// add subscriptions at runtime.
func (m *Manager) Subscribe(ctx context.Context, topic string, qos byte) error {
	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("mqttnode: subscribe: not connected")
	}
	_, err := pc.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err != nil {
		return fmt.Errorf("mqttnode: subscribe to %q: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a topic subscription on the live connection.
func (m *Manager) Unsubscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()

	if pc == nil {
		return fmt.Errorf("mqttnode: unsubscribe: not connected")
	}
	_, err := pc.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}})
	if err != nil {
		return fmt.Errorf("mqttnode: unsubscribe from %q: %w", topic, err)
	}
	return nil
}

// connectWithRetry dials and performs the MQTT handshake, retrying with
// exponential backoff on failure: delay(n) = min(retry_delay *
// backoff^(n-1), max_retry_delay), stopping after max_retries with a
// terminal error.
func (m *Manager) connectWithRetry(ctx context.Context) error {
	b := newReconnectBackOff(m.retry)

	var lastErr error
	for attempt := 1; attempt <= m.retry.MaxRetries; attempt++ {
		err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.running = true
			m.mu.Unlock()
			if m.onConnected != nil {
				m.onConnected()
			}
			return nil
		}

		lastErr = err
		m.logger.Warn("mqtt connect attempt failed", "broker", m.client.Broker, "attempt", attempt, "max_retries", m.retry.MaxRetries, "error", err)

		if attempt == m.retry.MaxRetries {
			break
		}

		delay := b.NextBackOff()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("mqttnode: connect to %q failed after %d attempts: %w", m.client.Broker, m.retry.MaxRetries, lastErr)
}

// newReconnectBackOff builds the exponential backoff schedule described
// in the connection manager contract, with no jitter so delays are
// deterministic: RandomizationFactor is pinned to 0.
func newReconnectBackOff(r RetrySettings) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.RetryDelay,
		RandomizationFactor: 0,
		Multiplier:          r.Backoff,
		MaxInterval:         r.MaxRetryDelay,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// ReconnectDelays computes the backoff delay sequence a Manager would
// use for n connect attempts, without dialing anything. Exposed for
// testing the reconnect schedule in isolation.
func ReconnectDelays(r RetrySettings, n int) []time.Duration {
	r = mergeRetrySettings(r)
	b := newReconnectBackOff(r)
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

func (m *Manager) dial(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if m.credential.TLS {
		tlsCfg, tlsErr := m.buildTLSConfig()
		if tlsErr != nil {
			return tlsErr
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", m.client.Broker, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.client.Broker)
	}
	if err != nil {
		return fmt.Errorf("dial %q: %w", m.client.Broker, err)
	}

	pc := paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if m.onMessage != nil {
					m.onMessage(pr.Packet.Topic, pr.Packet.Payload, byte(pr.Packet.QoS), pr.Packet.Retain)
				}
				return true, nil
			},
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.handleDisconnect(fmt.Errorf("server disconnect: reason code %d", d.ReasonCode))
		},
		OnClientError: func(err error) {
			m.handleDisconnect(err)
		},
	})

	connectPacket := &paho.Connect{
		KeepAlive:  uint16(m.client.KeepAlive / time.Second),
		ClientID:   m.client.ClientID,
		CleanStart: m.client.CleanSession,
	}
	if m.credential.Username != "" {
		connectPacket.UsernameFlag = true
		connectPacket.Username = m.credential.Username
	}
	if m.credential.Password != "" {
		connectPacket.PasswordFlag = true
		connectPacket.Password = []byte(m.credential.Password)
	}

	ack, err := pc.Connect(ctx, connectPacket)
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return fmt.Errorf("connect refused: reason code %d", ack.ReasonCode)
	}

	m.mu.Lock()
	m.conn = conn
	m.pc = pc
	m.mu.Unlock()

	for _, t := range m.topics {
		if _, err := pc.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: t.Topic, QoS: t.QoS}},
		}); err != nil {
			return fmt.Errorf("subscribe to %q: %w", t.Topic, err)
		}
	}

	return nil
}

func (m *Manager) buildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{ServerName: hostOnly(m.client.Broker)}

	if m.credential.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(m.credential.CACert)) {
			return nil, fmt.Errorf("mqttnode: invalid CA certificate")
		}
		cfg.RootCAs = pool
	}

	if m.credential.ClientCert != "" && m.credential.ClientKey != "" {
		cert, err := tls.X509KeyPair([]byte(m.credential.ClientCert), []byte(m.credential.ClientKey))
		if err != nil {
			return nil, fmt.Errorf("mqttnode: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func hostOnly(broker string) string {
	host, _, err := net.SplitHostPort(broker)
	if err != nil {
		return broker
	}
	return host
}

// handleDisconnect is invoked on unexpected connection loss. If
// reconnect_on_failure is set, it re-enters the connect loop in the
// background; otherwise it just marks the manager stopped and notifies
// the owner.
func (m *Manager) handleDisconnect(cause error) {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	if !wasRunning {
		return
	}

	if m.onDisconnect != nil {
		m.onDisconnect(cause)
	}

	if !m.retry.ReconnectOnFailure {
		return
	}

	go func() {
		if err := m.connectWithRetry(context.Background()); err != nil {
			m.logger.Error("mqtt reconnect failed permanently", "broker", m.client.Broker, "error", err)
		}
	}()
}
