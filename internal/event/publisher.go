package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher forwards notifications to NATS JetStream for external
// observers. Subjects: synth.loans.events.{event_type}.{currency}.
// Notify never blocks the ledger: events are queued to a buffered
// channel and dropped (with a counter in the logs) when the consumer
// cannot keep up — observers needing completeness read the database.
type Publisher struct {
	js    jetstream.JetStream
	queue chan envelope
	log   zerolog.Logger
}

type envelope struct {
	EventType string    `json:"event_type"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

func NewPublisher(js jetstream.JetStream, queueSize int, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:    js,
		queue: make(chan envelope, queueSize),
		log:   log,
	}
}

func (p *Publisher) Notify(evt Event) {
	env := envelope{
		EventType: evt.EventType().String(),
		Currency:  evt.LoanCurrency(),
		Timestamp: time.Now().UTC(),
		Payload:   evt,
	}

	select {
	case p.queue <- env:
	default:
		p.log.Warn().Str("event_type", env.EventType).Msg("notification queue full, dropping event")
	}
}

// Run drains the queue until the context is cancelled. Publish failures
// are logged and skipped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-p.queue:
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().Err(err).Str("event_type", env.EventType).Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("synth.loans.events.%s", env.EventType)
	if env.Currency != "" {
		subject = fmt.Sprintf("%s.%s", subject, env.Currency)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound notification stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SYNTH_LOAN_EVENTS",
		Subjects:  []string{"synth.loans.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create notification stream: %w", err)
	}
	return nil
}
