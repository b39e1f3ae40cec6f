// Package source provides the item sources feeding the corpus preparation
// pipeline: a remote streaming source backed by NATS JetStream and a local
// columnar source backed by parquet files.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

// defaultFetchWait bounds how long a fetch waits for the next record before
// the stream is considered drained.
const defaultFetchWait = 2 * time.Second

// StreamingConfig identifies the remote dataset stream to consume.
type StreamingConfig struct {
	URL     string
	Stream  string
	Subject string
	Durable string
	// FetchWaitSeconds is how long a fetch waits for the next record before
	// the stream is considered drained. Zero selects the default.
	FetchWaitSeconds int
	MaxItems         int
}

// StreamingSource streams dataset records from a JetStream stream. Records
// are JSON-encoded raw items, delivered in stream order through a single
// pull consumer so that positional indices are stable.
type StreamingSource struct {
	conn         *nats.Conn
	subscription *nats.Subscription
	log          *logger.Logger
	fetchWait    time.Duration
	maxItems     int
	delivered    int
}

// NewStreamingSource connects to the dataset stream. Any failure to connect
// or bind is returned to the caller and must abort the run: a pipeline must
// never silently start against zero items.
func NewStreamingSource(cfg StreamingConfig, log *logger.Logger) (*StreamingSource, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dataset stream at '%s': %w", cfg.URL, err)
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subscription, err := jetstreamContext.PullSubscribe(
		cfg.Subject,
		cfg.Durable,
		nats.BindStream(cfg.Stream),
	)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf(
			"failed to subscribe to dataset stream '%s': %w",
			cfg.Stream,
			err,
		)
	}

	fetchWait := defaultFetchWait
	if cfg.FetchWaitSeconds > 0 {
		fetchWait = time.Duration(cfg.FetchWaitSeconds) * time.Second
	}

	return &StreamingSource{
		conn:         conn,
		subscription: subscription,
		log:          log,
		fetchWait:    fetchWait,
		maxItems:     cfg.MaxItems,
		delivered:    0,
	}, nil
}

// Next fetches the next record. It returns core.ErrEndOfSource once the
// stream stops delivering or the configured item cap is reached. A record
// that fails to decode yields an empty item so the processor skips it
// without losing the positional index.
func (s *StreamingSource) Next(ctx context.Context) (core.RawItem, error) {
	if s.maxItems > 0 && s.delivered >= s.maxItems {
		return core.RawItem{}, core.ErrEndOfSource
	}

	if ctx.Err() != nil {
		return core.RawItem{}, core.ErrEndOfSource
	}

	msgs, err := s.subscription.Fetch(1, nats.MaxWait(s.fetchWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			s.log.Info(
				"No record within %s after %d records, treating stream as drained",
				s.fetchWait,
				s.delivered,
			)

			return core.RawItem{}, core.ErrEndOfSource
		}

		return core.RawItem{}, fmt.Errorf("failed to fetch dataset record: %w", err)
	}

	msg := msgs[0]

	ackErr := msg.Ack()
	if ackErr != nil {
		s.log.Warn("Failed to ack dataset record: %v", ackErr)
	}

	s.delivered++

	var item core.RawItem

	decodeErr := json.Unmarshal(msg.Data, &item)
	if decodeErr != nil {
		s.log.Warn("Failed to decode dataset record %d: %v", s.delivered, decodeErr)

		return core.RawItem{}, nil
	}

	return item, nil
}

// Close releases the consumer and the connection.
func (s *StreamingSource) Close() error {
	unsubscribeErr := s.subscription.Unsubscribe()

	s.conn.Close()

	if unsubscribeErr != nil {
		return fmt.Errorf("failed to unsubscribe from dataset stream: %w", unsubscribeErr)
	}

	return nil
}
