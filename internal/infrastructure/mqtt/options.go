package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Option adjusts a Client before it connects.
type Option func(*settings)

type settings struct {
	statusTopic  string
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

func defaultSettings() settings {
	return settings{
		statusTopic: Topics{}.SystemStatus(),
		logger:      nopLogger{},
	}
}

// WithStatusTopic moves the presence record and Last Will to topic.
func WithStatusTopic(topic string) Option {
	return func(s *settings) {
		if topic != "" {
			s.statusTopic = topic
		}
	}
}

// WithLogger reports handler failures and connection changes to logger.
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConnectHook runs fn after every (re)connect, once routes are restored.
func WithConnectHook(fn func()) Option {
	return func(s *settings) { s.onConnect = fn }
}

// WithDisconnectHook runs fn when the connection drops.
func WithDisconnectHook(fn func(err error)) Option {
	return func(s *settings) { s.onDisconnect = fn }
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// brokerOptions maps the mqtt config section onto paho: clean session,
// auto-reconnect between reconnect.initial_delay and reconnect.max_delay,
// optional credentials and TLS 1.2+.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		po.SetUsername(cfg.Auth.Username)
		po.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		po.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return po
}
