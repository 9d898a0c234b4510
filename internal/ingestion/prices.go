package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/oracle"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	priceStream   = "SYNTH_PRICES"
	priceSubjects = "synth.prices.>"
	priceConsumer = "loans-prices"
)

// PriceUpdate is the wire format on synth.prices.{currency}. Sequence
// is per-currency monotonic; stale or replayed updates are dropped by
// the oracle cache.
type PriceUpdate struct {
	Currency  string    `json:"currency"`
	Price     fixed.Dec `json:"price"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

// PriceSubscriber feeds the oracle cache from the JetStream price
// stream. Malformed messages are terminated (no redelivery can fix
// them); everything else is acked once the cache has seen it.
type PriceSubscriber struct {
	js       jetstream.JetStream
	cache    *oracle.Cache
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(js jetstream.JetStream, cache *oracle.Cache, log zerolog.Logger) *PriceSubscriber {
	return &PriceSubscriber{js: js, cache: cache, log: log}
}

// Subscribe creates the durable consumer and starts feeding the cache.
func (s *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, priceStream, jetstream.ConsumerConfig{
		Durable:       priceConsumer,
		FilterSubject: priceSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create price consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var update PriceUpdate
		if err := json.Unmarshal(msg.Data(), &update); err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("malformed price update")
			msg.Term()
			return
		}
		if update.Currency == "" || !update.Price.IsPositive() {
			s.log.Warn().Str("subject", msg.Subject()).Msg("price update missing currency or price")
			msg.Term()
			return
		}

		s.cache.UpdateRate(update.Currency, update.Price, update.Sequence, update.Timestamp)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume prices: %w", err)
	}

	s.consumer = cc
	s.log.Info().Str("subject", priceSubjects).Str("consumer", priceConsumer).Msg("subscribed to price stream")
	return nil
}

// Stop halts consumption.
func (s *PriceSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}

// EnsurePriceStream creates the inbound price stream if missing.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      priceStream,
		Subjects:  []string{priceSubjects},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create price stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context. Reconnects forever.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
