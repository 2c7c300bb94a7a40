// Package events publishes entity mutations to NATS for downstream consumers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/travels/internal/config"
	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/logfields"
)

// MutationEvent is the wire format published for each applied mutation.
type MutationEvent struct {
	Entity    string          `json:"entity"`
	EntityID  uint32          `json:"entity_id"`
	Action    string          `json:"action"`
	Body      json.RawMessage `json:"body,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes mutation events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to NATS and returns a mutation publisher.
func NewPublisher(cfg config.EventsConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("event publishing is disabled")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("travels"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.MessagingError("could not connect to NATS").
			WithCause(err).WithContext("url", cfg.NATSURL).Build()
	}

	logger.Info("NATS mutation publisher initialized",
		"url", cfg.NATSURL,
		"subject", cfg.Subject)

	return &Publisher{conn: conn, subject: cfg.Subject, logger: logger}, nil
}

// Publish sends a mutation event. Publish failures are reported to the
// caller but never abort the mutation that triggered them.
func (p *Publisher) Publish(entity string, entityID uint32, action string, body []byte) error {
	event := MutationEvent{
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Body:      body,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.MessagingError("could not marshal event").WithCause(err).Build()
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.MessagingError("could not publish event").
			WithCause(err).WithContext("subject", p.subject).Build()
	}

	p.logger.Debug("Published mutation event",
		logfields.Entity(entity),
		logfields.EntityID(entityID),
		logfields.Action(action))

	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
			return err
		}
	}
	return nil
}
