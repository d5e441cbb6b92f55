package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/mmgen/internal/metrics"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

// NatsPublisher publishes events to a JetStream stream.
type NatsPublisher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	prefix     string
	streamName string
}

// New returns a NATS publisher when cfg names a server, otherwise Nop.
func New(cfg config.EventsConfig) (Publisher, error) {
	if cfg.NatsURL == "" {
		return Nop{}, nil
	}
	return NewNatsPublisher(cfg)
}

// NewNatsPublisher connects to NATS and makes sure the stream exists.
func NewNatsPublisher(cfg config.EventsConfig) (*NatsPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "mmgen"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name("mmgen"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Events] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Events] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NatsPublisher{
		conn:       nc,
		js:         js,
		prefix:     cfg.SubjectPrefix,
		streamName: streamName(cfg.SubjectPrefix),
	}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("[Events] Connected to NATS at %s with JetStream stream %s", cfg.NatsURL, p.streamName)
	return p, nil
}

func (p *NatsPublisher) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      p.streamName,
		Subjects:  []string{p.prefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	if _, err := p.js.StreamInfo(p.streamName); err != nil {
		if _, err := p.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Printf("[Events] Created JetStream stream: %s", p.streamName)
		return nil
	}
	if _, err := p.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// Subject returns the subject an event of the given type is published on.
func (p *NatsPublisher) Subject(eventType string) string {
	return subject(p.prefix, eventType)
}

// Publish sends ev to <prefix>.events.<type>.
func (p *NatsPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subj := p.Subject(ev.Type)
	if _, err := p.js.Publish(subj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subj, err)
	}
	metrics.NewMetrics().EventsPublished.WithLabelValues(ev.Type).Inc()
	return nil
}

// Health reports whether the connection and stream are usable.
func (p *NatsPublisher) Health() error {
	if p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	if _, err := p.js.StreamInfo(p.streamName); err != nil {
		return fmt.Errorf("JetStream stream %s is unhealthy: %w", p.streamName, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NatsPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	log.Printf("[Events] Closed NATS connection")
	return nil
}

func subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.events.%s", prefix, eventType)
}

// streamName derives a JetStream stream name from a subject prefix.
func streamName(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
