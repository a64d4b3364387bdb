// Package events publishes access decisions to an MQTT broker.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rfidgate/internal/access"
	"rfidgate/internal/tag"
)

// Publisher defaults
const (
	DefaultTopic          = "rfidgate/access"
	DefaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMS   = 250
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("publish timed out")

// Config configures the broker connection.
type Config struct {
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Topic    string        `mapstructure:"topic"`
	QoS      byte          `mapstructure:"qos"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Event is the JSON body of one access decision.
type Event struct {
	CycleID        string    `json:"cycle_id"`
	UniqueID       uint16    `json:"unique_id"`
	SiteCode       uint8     `json:"site_code"`
	ManufacturerID uint32    `json:"manufacturer_id"`
	Verdict        string    `json:"verdict"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEvent builds an event for one decision.
func NewEvent(cycleID uuid.UUID, fields tag.Fields, verdict access.Verdict, at time.Time) Event {
	return Event{
		CycleID:        cycleID.String(),
		UniqueID:       fields.UniqueID,
		SiteCode:       fields.SiteCode,
		ManufacturerID: fields.ManufacturerID,
		Verdict:        verdict.String(),
		Timestamp:      at.UTC(),
	}
}

// Publisher sends access events to one topic.
type Publisher struct {
	client  Client
	topic   string
	qos     byte
	timeout time.Duration
	logger  *logrus.Logger
}

// Connect dials the broker and returns a publisher using the connection.
func Connect(cfg Config, logger *logrus.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rfidgate_" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("Reconnecting to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout(cfg.Timeout)) {
		client.Disconnect(disconnectQuiesceMS)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return NewPublisher(client, cfg, logger), nil
}

func publishTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPublishTimeout
	}
	return d
}

// NewPublisher wraps an existing client.
func NewPublisher(client Client, cfg Config, logger *logrus.Logger) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		qos:     cfg.QoS,
		timeout: publishTimeout(cfg.Timeout),
		logger:  logger,
	}
}

// Publish sends ev and waits for the broker acknowledgement.
func (p *Publisher) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":    p.topic,
		"cycle_id": ev.CycleID,
		"verdict":  ev.Verdict,
	}).Debug("Published access event")
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesceMS)
}
