package clickhouse

import (
	"net"
	"strconv"
	"time"
)

type ClientOption func(*ClientConfig)

// ClientConfig is translated into clickhouse-go Options by NewClient.
type ClientConfig struct {
	Addr            string
	Database        string
	User            string
	Password        string
	HTTP            bool
	Compression     string // none, lz4 or zstd
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	MaxExecTime     time.Duration
	AsyncInsert     bool
	WaitForAsync    bool
	PingTimeout     time.Duration
}

func defaultConfig() ClientConfig {
	return ClientConfig{
		Compression:     "lz4",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		if host == "" {
			c.Addr = ""
			return
		}
		c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func WithAuth(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database, c.User, c.Password = database, user, password
	}
}

// WithPool sizes the database/sql pool. Non-positive values keep defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
		if lifetime > 0 {
			c.ConnMaxLifetime = lifetime
		}
	}
}

func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption {
	return func(c *ClientConfig) { c.HTTP = on }
}

func WithCompression(method string) ClientOption {
	return func(c *ClientConfig) { c.Compression = method }
}

// WithAsyncInsert turns on server-side insert buffering. With wait set the
// server acknowledges only after the buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
