package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/tankutility-bridge/internal/infrastructure/config"
)

const (
	pingTimeout = 10 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	applicationName = "tankutility-bridge"
)

// Client writes tank readings to one InfluxDB bucket.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are buffered and sent in batches by the library.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	closed atomic.Bool

	onErrorMu sync.RWMutex
	onError   func(err error)
}

// Connect pings the server and opens a batched, non-blocking writer for
// cfg.Bucket. Readings are written with second precision.
//
// Returns:
//   - *Client: Ready for OnRecord
//   - error: ErrDisabled if cfg.Enabled is false, or wrapping
//     ErrConnectionFailed if the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg)).
		SetFlushInterval(flushIntervalMillis(cfg)).
		SetPrecision(time.Second).
		SetApplicationName(applicationName)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not ready", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// batchSize returns the configured batch size, or the default when unset.
func batchSize(cfg config.InfluxDBConfig) uint {
	if cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return uint(cfg.BatchSize) // #nosec G115 -- positive
}

// flushIntervalMillis converts the configured flush interval (seconds) to
// the milliseconds the library expects.
func flushIntervalMillis(cfg config.InfluxDBConfig) uint {
	interval := time.Duration(cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return uint(interval.Milliseconds()) // #nosec G115 -- positive
}

// forwardErrors hands asynchronous write failures to the OnError callback.
// It returns when the library closes the channel on Close.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.onErrorMu.RLock()
		callback := c.onError
		c.onErrorMu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("writing to bucket %s: %w", c.bucket, err))
		}
	}
}

// SetOnError sets the callback for failed batch writes. Writes are
// asynchronous, so this is the only place server-side failures surface.
func (c *Client) SetOnError(callback func(err error)) {
	c.onErrorMu.Lock()
	defer c.onErrorMu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered readings are sent. No-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || c.closed.Load() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending readings and releases the connection.
// Safe to call more than once and on a zero Client.
func (c *Client) Close() error {
	if c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
