// Package events publishes search lifecycle events to NATS.
//
// Every search emits a started event followed by exactly one completed or
// failed event. Events are published to subjects:
//
//	{prefix}.{search_id}.started
//	{prefix}.{search_id}.completed
//	{prefix}.{search_id}.failed
//
// Consumers can follow every search with "{prefix}.>" or a single search with
// "{prefix}.{search_id}.*".
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/search"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "reposearch.search"

// ErrNoConnection is returned when publishing without a NATS connection.
var ErrNoConnection = errors.New("nats connection is not configured")

// Publisher forwards search events to NATS. It implements search.Observer.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewPublisher creates a publisher on nc. An empty prefix uses
// DefaultSubjectPrefix. A nil logger disables publish failure logs.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, ErrNoConnection
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if strings.ContainsAny(prefix, " \t\r\n*>") {
		return nil, fmt.Errorf("invalid subject prefix %q", prefix)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger.Named("events")}, nil
}

// Subject returns the subject an event is published to.
func (p *Publisher) Subject(e search.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, e.SearchID, e.Type)
}

// Publish marshals e and publishes it.
func (p *Publisher) Publish(e search.Event) error {
	if e.SearchID == "" {
		return errors.New("event has no search id")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

// Observe publishes e. Failures are logged and never reach the search.
func (p *Publisher) Observe(ctx context.Context, e search.Event) {
	if err := p.Publish(e); err != nil {
		p.logger.Warn(ctx, "failed to publish search event",
			zap.String("event", string(e.Type)),
			zap.Error(err),
		)
	}
}

// Flush waits until published events have been processed by the server.
func (p *Publisher) Flush(timeout time.Duration) error {
	return p.nc.FlushTimeout(timeout)
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string, logger *logging.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, ErrNoConnection
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return nc, nil
}
