package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

const (
	defaultMQTTClientID = "environmental-monitor"
	defaultMQTTTopic    = "environment/samples"
	mqttKeepAlive       = 30 // seconds
)

// MQTTConfig describes the broker connection and the topic samples are published to
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port, plain TCP
	ClientID string `yaml:"clientId"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker address is required")
	}
	if c.QoS > 1 {
		return fmt.Errorf("unsupported mqtt QoS: %d", c.QoS)
	}
	return nil
}

// MQTTPublisher publishes every sample as a JSON message to a single topic.
type MQTTPublisher struct {
	client *paho.Client
	topic  string
	qos    byte
	retain bool

	closeOnce sync.Once
	closeErr  error
}

// NewMQTTPublisher dials the broker and performs the MQTT handshake.
func NewMQTTPublisher(ctx context.Context, config *MQTTConfig) (*MQTTPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", config.Broker)
	if err != nil {
		return nil, fmt.Errorf("dialing mqtt broker: %w", err)
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = defaultMQTTClientID
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})

	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  mqttKeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt broker refused connection: reason code %d", ack.ReasonCode)
	}

	topic := config.Topic
	if topic == "" {
		topic = defaultMQTTTopic
	}

	return &MQTTPublisher{
		client: client,
		topic:  topic,
		qos:    config.QoS,
		retain: config.Retain,
	}, nil
}

func (m *MQTTPublisher) Name() string {
	return "mqtt"
}

func (m *MQTTPublisher) Publish(ctx context.Context, s sample.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshalling sample: %w", err)
	}

	_, err = m.client.Publish(ctx, &paho.Publish{
		QoS:     m.qos,
		Retain:  m.retain,
		Topic:   m.topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("publishing sample to mqtt: %w", err)
	}
	return nil
}

func (m *MQTTPublisher) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	})
	return m.closeErr
}
