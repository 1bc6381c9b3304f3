package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/motion-sensor/internal/power"
)

// RealConfig configures a RealPublisher.
type RealConfig struct {
	Broker string
	// ClientID defaults to "motion-sensor-" plus a random suffix.
	ClientID string
	// BufferSize is how many messages are kept while disconnected.
	BufferSize int
	// ConnectTimeout bounds the wait for the first connection. When it
	// expires the publisher keeps retrying in the background.
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	// OnConnectionChange, if set, is called on every connect and loss.
	OnConnectionChange func(connected bool)
	Logger             *slog.Logger
}

const (
	defaultBufferSize     = 256
	defaultConnectTimeout = 10 * time.Second
	defaultRetryInterval  = 5 * time.Second
	publishTimeout        = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the broker is unreachable are buffered and replayed in order on
// reconnect.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger
	notify func(bool)

	mu        sync.Mutex
	connected bool
	buffer    *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It fails only
// when the broker refuses the connection; an unreachable broker leaves the
// publisher buffering.
func NewRealPublisher(cfg RealConfig) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: no broker configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "motion-sensor-" + uuid.NewString()[:8]
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &RealPublisher{
		log:    log.With("broker", cfg.Broker),
		notify: cfg.OnConnectionChange,
		buffer: newRingBuffer(cfg.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.RetryInterval).
		SetMaxReconnectInterval(cfg.RetryInterval).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		p.log.Warn("mqtt broker unavailable, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	pending, dropped := p.buffer.drainAll()
	// Replay under the lock so new messages queue behind the backlog.
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	p.mu.Unlock()

	p.log.Info("mqtt connected", "replayed", len(pending), "dropped", dropped)
	if p.notify != nil {
		p.notify(true)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warn("mqtt connection lost", "error", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// Publish sends a transition on Topic at QoS 0.
func (p *RealPublisher) Publish(tr power.Transition) error {
	payload, err := FormatPayload(tr)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(Topic, 0, false, payload)
}

// PublishSystem sends a lifecycle event on TopicSystem at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		if p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}) {
			p.log.Debug("mqtt buffer full, dropped oldest message")
		}
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(topic, qos, retained, payload)
	p.mu.Unlock()

	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns how many messages await a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
