package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"bridge/types"
)

var ErrNotConnected = errors.New("mqtt client is not connected")

const DefaultTopicPrefix = "pets"

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher publishes the pet state to the watch as a retained message,
// so a reconnecting watch immediately gets the latest state.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger *zap.Logger
}

func NewMQTTPublisher(cfg MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("display.mqtt").With(zap.String("broker", cfg.Broker))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("connected to broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("connection to broker lost", zap.Error(err))
		})

	return newMQTTPublisher(mqtt.NewClient(opts), cfg, logger)
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	return &MQTTPublisher{client: client, cfg: cfg, logger: logger}
}

// Connect starts connecting. With connect retry enabled the token completes
// once the first attempt is made, later attempts run in the background.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("connect to %s failed: %w", p.cfg.Broker, err)
	}
	return nil
}

func (p *MQTTPublisher) Topic(sessionID string) string {
	return fmt.Sprintf("%s/%s/state", p.cfg.TopicPrefix, sessionID)
}

func (p *MQTTPublisher) Publish(ctx context.Context, sessionID string, state types.RemoteState) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	topic := p.Topic(sessionID)
	if err := wait(ctx, p.client.Publish(topic, p.cfg.QoS, true, payload)); err != nil {
		return fmt.Errorf("publish to %q failed: %w", topic, err)
	}

	p.logger.Debug("pet state published", zap.String("topic", topic), zap.String("mood", string(state.Mood)))
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250) // ms to finish in-flight work
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
