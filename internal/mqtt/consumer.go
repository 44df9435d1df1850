package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"carbonledger/internal/logger"
	"carbonledger/internal/service"
	"carbonledger/internal/telemetry"
)

// ConsumerConfig holds the message-bus subscription settings.
type ConsumerConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	// Topic is the subscription pattern; the last level carries the device
	// id, e.g. "carbon/telemetry/+".
	Topic string
	// CompanyID attributes messages on this subscription: the broker
	// connection is credentialed the way the HTTP API key is.
	CompanyID string
}

// Consumer is the subscribe-only telemetry path. It feeds the same ingestion
// gateway as HTTP, so both transports share one contract and idempotency key.
type Consumer struct {
	client  mqtt.Client
	gateway service.Ingestion
	cfg     ConsumerConfig
	log     *logger.Logger
}

const ingestTimeout = 10 * time.Second

// NewConsumer connects to the broker with auto-reconnect.
func NewConsumer(cfg ConsumerConfig, gateway service.Ingestion, log *logger.Logger) (*Consumer, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infow("mqtt_connected", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %q: %w", cfg.Broker, token.Error())
	}

	return &Consumer{client: client, gateway: gateway, cfg: cfg, log: log}, nil
}

// Run subscribes and blocks until the context is cancelled, then disconnects.
func (c *Consumer) Run(ctx context.Context) error {
	if token := c.client.Subscribe(c.cfg.Topic, 1, c.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %q: %w", c.cfg.Topic, token.Error())
	}
	c.log.Infow("mqtt_subscribed", "topic", c.cfg.Topic)

	<-ctx.Done()
	c.client.Disconnect(250) // ms to flush in-flight work
	return nil
}

func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID := deviceIDFromTopic(msg.Topic())

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	res, err := c.gateway.Ingest(ctx, msg.Payload(), deviceID, c.cfg.CompanyID)
	if err != nil {
		var verr *telemetry.ValidationError
		switch {
		case errors.As(err, &verr):
			c.log.Infow("mqtt_payload_rejected", "topic", msg.Topic(), "err", err)
		case errors.Is(err, service.ErrUnknownDevice), errors.Is(err, service.ErrDeviceConflict):
			c.log.Infow("mqtt_device_rejected", "topic", msg.Topic(), "device", deviceID, "err", err)
		default:
			c.log.Errorw("mqtt_ingest_failed", "topic", msg.Topic(), "device", deviceID, "err", err)
		}
		return
	}
	if res.Duplicate {
		c.log.Debugw("mqtt_duplicate_reading", "device", deviceID, "reading", res.ReadingID)
	}
}

// deviceIDFromTopic extracts the trailing topic level, the device id slot in
// the subscription pattern.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
