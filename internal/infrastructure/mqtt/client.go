package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
)

// Client is the API's broker session. It publishes device commands and
// domain events, routes device status reports to handlers and keeps the
// service's retained presence record up to date.
//
// Safe for concurrent use. Routes are re-subscribed after a reconnect.
type Client struct {
	conn     pahomqtt.Client
	qos      byte
	presence presence
	log      Logger

	onConnect    func()
	onDisconnect func(err error)

	routesMu sync.RWMutex
	routes   map[string]route

	up atomic.Bool
}

// Logger is satisfied by *slog.Logger and *logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type route struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one broker message. paho runs handlers on its
// own goroutines; they should not block for long. A returned error is
// logged and does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg. The presence record (and
// its Last Will) lives on Topics.SystemStatus unless WithStatusTopic
// says otherwise.
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(log))
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := newClient(cfg, opts...)

	po := brokerOptions(cfg)
	c.presence.registerWill(po)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	po.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log.Warn("MQTT reconnecting", "broker", brokerURL(cfg))
	})

	c.conn = pahomqtt.NewClient(po)
	token := c.conn.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; publishing may start now.
	c.up.Store(true)
	return c, nil
}

// newClient applies opts without touching the network.
func newClient(cfg config.MQTTConfig, opts ...Option) *Client {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Client{
		qos:          byte(cfg.QoS),
		presence:     presence{topic: s.statusTopic, clientID: cfg.Broker.ClientID, qos: byte(cfg.QoS)},
		log:          s.logger,
		onConnect:    s.onConnect,
		onDisconnect: s.onDisconnect,
		routes:       make(map[string]route),
	}
}

func (c *Client) connected() {
	c.up.Store(true)

	c.routesMu.RLock()
	for topic, r := range c.routes {
		// Failures surface through the connection-lost handler.
		c.conn.Subscribe(topic, r.qos, c.deliver(r.handler))
	}
	c.routesMu.RUnlock()

	c.presence.announce(c.conn, statusOnline, "")
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)
	c.log.Warn("MQTT connection lost", "error", err)
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

// Close marks the service offline on the presence topic and disconnects.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if c.IsConnected() {
		c.presence.announce(c.conn, statusOffline, reasonShutdown).WaitTimeout(defaultPublishTimeout)
	}
	c.conn.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected when the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.conn != nil && c.conn.IsConnected()
}

// deliver adapts a MessageHandler to paho.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.log.Warn("MQTT handler returned error", "topic", topic, "error", err)
	}
}
