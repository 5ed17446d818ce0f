package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
)

// Trigger actions.
const (
	ActionIngest   = "ingest"
	ActionBackfill = "backfill"
)

// TriggerRequest is a manual run request read from the trigger topic.
type TriggerRequest struct {
	// Action is "ingest" or "backfill". Empty means "ingest".
	Action      string `json:"action"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Runner starts cycles. *ingest.Engine implements it.
type Runner interface {
	RunCycle(ctx context.Context, trigger ingest.Trigger) (ingest.CycleResult, error)
	RunBackfill(ctx context.Context, trigger ingest.Trigger) (ingest.BackfillResult, error)
}

// messageReader is the subset of *kafka.Reader the listener needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ListenerConfig holds configuration for the trigger listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic carries trigger requests.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// TriggerListener consumes run requests from Kafka and hands them to the engine.
type TriggerListener struct {
	reader messageReader
	runner Runner
	logger zerolog.Logger
}

// NewTriggerListener creates a listener on cfg.Topic.
func NewTriggerListener(cfg ListenerConfig, runner Runner, logger zerolog.Logger) *TriggerListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newTriggerListener(reader, runner, logger)
}

func newTriggerListener(r messageReader, runner Runner, logger zerolog.Logger) *TriggerListener {
	return &TriggerListener{
		reader: r,
		runner: runner,
		logger: logger.With().Str("component", "trigger_listener").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *TriggerListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting trigger listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("trigger listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received trigger request")

		var req TriggerRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal trigger request")
			continue
		}

		if err := l.handle(ctx, req); err != nil {
			l.logger.Error().Err(err).
				Str("action", req.Action).
				Str("requested_by", req.RequestedBy).
				Msg("failed to handle trigger request")
		}
	}
}

func (l *TriggerListener) handle(ctx context.Context, req TriggerRequest) error {
	l.logger.Info().
		Str("action", req.Action).
		Str("requested_by", req.RequestedBy).
		Msg("handling trigger request")

	var err error
	switch req.Action {
	case "", ActionIngest:
		var result ingest.CycleResult
		result, err = l.runner.RunCycle(ctx, ingest.TriggerKafka)
		if err == nil {
			l.logger.Info().
				Str("cycle_id", result.CycleID).
				Str("outcome", string(result.Outcome)).
				Msg("triggered cycle finished")
		}
	case ActionBackfill:
		var result ingest.BackfillResult
		result, err = l.runner.RunBackfill(ctx, ingest.TriggerKafka)
		if err == nil {
			l.logger.Info().
				Int("flagged", len(result.Flagged)).
				Int("filled", len(result.Filled)).
				Msg("triggered backfill finished")
		}
	default:
		return domain.NewValidationError("action", fmt.Sprintf("unknown trigger action %q", req.Action))
	}

	if errors.Is(err, domain.ErrCycleInProgress) {
		l.logger.Info().Str("action", req.Action).Msg("cycle already running, trigger dropped")
		return nil
	}
	return err
}

// Close closes the Kafka reader.
func (l *TriggerListener) Close() error {
	l.logger.Info().Msg("closing trigger listener")
	return l.reader.Close()
}
