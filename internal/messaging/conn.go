// Package messaging carries events and notifications over NATS.
package messaging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials NATS and keeps reconnecting forever. Extra options are
// applied after the defaults.
func Connect(url, name string, logger *slog.Logger, opts ...nats.Option) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// CheckHealth reports whether the connection is usable.
func CheckHealth(nc *nats.Conn) error {
	if nc == nil {
		return fmt.Errorf("nats connection not configured")
	}
	if status := nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is %s", status)
	}
	return nil
}
