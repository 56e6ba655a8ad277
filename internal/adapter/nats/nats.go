// Package nats publishes completed decisions and lifecycle events to NATS
// JetStream, so downstream systems can audit or react to council output.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/domain/event"
)

const streamName = "MAGI"

// Publisher writes to the decisions.> subject space on JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes the connection and ensures the stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"decisions.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// PublishDecision emits one completed decision on
// decisions.completed.<final_decision>.
func (p *Publisher) PublishDecision(ctx context.Context, resp *decision.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	subject := fmt.Sprintf("decisions.completed.%s", resp.FinalDecision)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// PublishEvent emits one lifecycle event on decisions.events.<type>.
func (p *Publisher) PublishEvent(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("decisions.events.%s", ev.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for decision subjects, for consumers that
// live in the same process (the history backfill job, tests).
func (p *Publisher) Subscribe(ctx context.Context, subject string, handler func(subject string, data []byte) error) (func(), error) {
	consumer, err := p.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// KeyValue returns the named KV bucket, creating it when absent. TTL
// applies to every entry in the bucket.
func (p *Publisher) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := p.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
