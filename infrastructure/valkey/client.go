package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const defaultConnectTimeout = 5 * time.Second

// Config agrupa los parámetros de conexión a Valkey.
type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client envuelve valkey-go con el prefijo de claves de la aplicación.
// Las colas de debounce, los locks del router y el puente realtime
// comparten esta misma conexión.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient abre la conexión y la verifica con un ping antes de
// devolverla. El caller es dueño del Close.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &Client{inner: inner, keyPrefix: prefix}, nil
}

// Inner expone el cliente valkey-go crudo para comandos que el wrapper
// no cubre (SCAN, PSUBSCRIBE).
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key arma una clave con el prefijo de la aplicación.
// Ejemplo: Key("lock", "router", tenantID) -> "azcrm:lock:router:t1"
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// Ping verifica la conexión, usado por el health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Publish envía un payload a un canal pub/sub. Los nombres de canal se
// comparten entre nodos, así que no llevan el prefijo de claves.
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(payload).Build()).Error()
}
