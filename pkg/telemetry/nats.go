package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject,
// e.g. crescent.events.poll.accepted.
const DefaultSubjectPrefix = "crescent.events"

// NATSConfig holds the NATS connection used to export hub events.
type NATSConfig struct {
	URL            string        `yaml:"url" json:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix" json:"subject_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// ConnectNATS dials the server named by cfg.URL.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("crescent-telemetry"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Publisher is the part of a NATS connection a Forwarder publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Forwarder republishes every hub event as JSON on
// <prefix>.<event type>. It subscribes on construction, so no event
// published after NewForwarder returns is missed.
type Forwarder struct {
	pub         Publisher
	prefix      string
	events      <-chan Event
	unsubscribe func()
	onError     func(Event, error)
}

// NewForwarder subscribes to hub. onError, if set, sees each failed publish.
func NewForwarder(hub *Hub, pub Publisher, prefix string, onError func(Event, error)) *Forwarder {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	events, unsubscribe := hub.Subscribe()
	return &Forwarder{pub: pub, prefix: prefix, events: events, unsubscribe: unsubscribe, onError: onError}
}

// Subject returns the subject an event of type t is published on.
func (f *Forwarder) Subject(t EventType) string {
	return f.prefix + "." + string(t)
}

// Run forwards events until ctx ends or the hub closes. Events already
// buffered when ctx ends are still sent.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.unsubscribe()
	for {
		select {
		case event, ok := <-f.events:
			if !ok {
				return nil
			}
			f.forward(event)
		case <-ctx.Done():
			for {
				select {
				case event, ok := <-f.events:
					if !ok {
						return nil
					}
					f.forward(event)
				default:
					return nil
				}
			}
		}
	}
}

func (f *Forwarder) forward(event Event) {
	data, err := json.Marshal(event)
	if err == nil {
		err = f.pub.Publish(f.Subject(event.Type), data)
	}
	if err != nil && f.onError != nil {
		f.onError(event, err)
	}
}
