package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// Measurements names the series that status changes land in.
type Measurements struct {
	Device     string
	Monitoring string
}

// DefaultMeasurements returns device_status and monitoring_status.
func DefaultMeasurements() Measurements {
	return Measurements{
		Device:     "device_status",
		Monitoring: "monitoring_status",
	}
}

// Option adjusts a Client before it starts writing.
type Option func(*Client)

// WithMeasurements overrides the series names. Empty names keep the
// defaults.
func WithMeasurements(m Measurements) Option {
	return func(c *Client) {
		if m.Device != "" {
			c.names.Device = m.Device
		}
		if m.Monitoring != "" {
			c.names.Monitoring = m.Monitoring
		}
	}
}

// WithErrorHandler receives asynchronous batch write failures.
func WithErrorHandler(fn func(err error)) Option {
	return func(c *Client) { c.onError = fn }
}

// Client is the status telemetry sink for devices and monitorings. It
// satisfies device.StatusRecorder and monitoring.StatusRecorder. Writes
// are batched and never block the caller.
type Client struct {
	conn    influxdb2.Client
	points  api.WriteAPI
	names   Measurements
	onError func(err error)

	open atomic.Bool
}

// Connect pings the server and opens a batched writer for cfg.Org and
// cfg.Bucket. It returns ErrDisabled when influxdb.enabled is false.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, influxdb.WithErrorHandler(logWriteError))
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{names: DefaultMeasurements()}
	for _, opt := range opts {
		opt(c)
	}

	size, flushMillis := batching(cfg)
	conn := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(size).SetFlushInterval(flushMillis))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.conn = conn
	c.points = conn.WriteAPI(cfg.Org, cfg.Bucket)
	c.open.Store(true)

	go c.drainErrors(c.points.Errors())
	return c, nil
}

// batching resolves influxdb.batch_size and influxdb.flush_interval
// (seconds) to the writer's point count and milliseconds.
func batching(cfg config.InfluxDBConfig) (size, flushMillis uint) {
	n, secs := cfg.BatchSize, cfg.FlushInterval
	if n <= 0 {
		n = defaultBatchSize
	}
	if secs <= 0 {
		secs = defaultFlushSeconds
	}
	// #nosec G115 -- both positive
	return uint(n), uint(secs) * 1000
}

func ping(ctx context.Context, conn influxdb2.Client) error {
	healthy, err := conn.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		if c.onError != nil {
			c.onError(err)
		}
	}
}

// Close flushes pending points and closes the connection. Safe on a nil
// client.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.open.Store(false)
	c.points.Flush()
	c.conn.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.conn); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open; HealthCheck pings.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// Flush blocks until buffered points are written. It is a no-op after
// Close.
func (c *Client) Flush() {
	if !c.IsConnected() || c.points == nil {
		return
	}
	c.points.Flush()
}
