// Package relay forwards telemetry events from a Kafka topic to a log sink such as Loki.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const pushTimeout = 10 * time.Second

// Reader is the part of *kafka.Reader the relay uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Sink receives raw event JSON.
type Sink interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// Run reads messages until ctx is canceled or the reader is closed (io.EOF). Push failures are logged and
// the message is skipped.
func Run(ctx context.Context, r Reader, sink Sink, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			logger.Warn("relay: kafka read failed", "error", err)
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := sink.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("relay: push failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		cancel()
	}
}
