package clickhouse

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config is the connection section for the bar store and trade journal.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// UseHTTP switches the driver to the HTTP interface (port 8123 by default).
	UseHTTP bool
	// AsyncInsert lets the server buffer journal inserts. WaitForAsync makes
	// the insert return only once the buffer is flushed.
	AsyncInsert  bool
	WaitForAsync bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	MaxExecTime     time.Duration
}

func (c *Config) setDefaults() {
	if c.Database == "" {
		c.Database = "regimetrader"
	}
	if c.Port == 0 {
		c.Port = 9000
		if c.UseHTTP {
			c.Port = 8123
		}
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns / 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// DSN renders the driver connection string. Credentials are escaped.
func (c Config) DSN() (string, error) {
	if c.Host == "" {
		return "", errors.New("clickhouse host is required")
	}
	c.setDefaults()

	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	q.Set("dial_timeout", c.DialTimeout.String())
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecTime.Seconds())))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		wait := "0"
		if c.WaitForAsync {
			wait = "1"
		}
		q.Set("wait_for_async_insert", wait)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
}
