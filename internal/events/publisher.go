package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/observability"
)

const (
	// EventTypeCorpusUpdated is emitted after every persisted state change.
	EventTypeCorpusUpdated = "corpus.updated"

	// AggregateTypeCorpus is the aggregate type of corpus events.
	AggregateTypeCorpus = "corpus"

	defaultServiceName = "paper-ingest-service"

	headerEventType = "event_type"
	headerSource    = "source"
)

// Compile-time interface verification.
var _ ingest.Notifier = (*Publisher)(nil)

// Envelope wraps every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CycleID       string          `json:"cycle_id,omitempty"`
	Trigger       string          `json:"trigger,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// CorpusUpdated is the payload of a corpus.updated event.
type CorpusUpdated struct {
	Outcome          domain.CycleOutcome  `json:"outcome"`
	Added            int                  `json:"added"`
	Evicted          int                  `json:"evicted"`
	CorpusSize       int                  `json:"corpus_size"`
	WatermarkNewest  *time.Time           `json:"watermark_newest,omitempty"`
	WatermarkOldest  *time.Time           `json:"watermark_oldest,omitempty"`
	LastFetchTime    *time.Time           `json:"last_fetch_time,omitempty"`
	CategoryStats    domain.CategoryStats `json:"category_stats"`
	ProviderFailures map[string]string    `json:"provider_failures,omitempty"`
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig holds configuration for the corpus event publisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives corpus events.
	Topic string
	// ServiceName identifies the source service in every envelope.
	ServiceName string
	// BatchSize is the maximum number of messages batched before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
}

// Publisher writes corpus events to Kafka. It implements ingest.Notifier.
type Publisher struct {
	writer  messageWriter
	service string
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPublisher creates a publisher with a Kafka writer for cfg.Topic.
func NewPublisher(cfg PublisherConfig, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return newPublisher(writer, cfg.ServiceName, logger, metrics)
}

func newPublisher(w messageWriter, service string, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	if service == "" {
		service = defaultServiceName
	}
	return &Publisher{
		writer:  w,
		service: service,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// CorpusUpdated publishes a corpus.updated event describing result and the
// snapshot that was persisted.
func (p *Publisher) CorpusUpdated(ctx context.Context, result ingest.CycleResult, snap *domain.Snapshot) error {
	payload := CorpusUpdated{
		Outcome:          result.Outcome,
		Added:            result.Unique,
		Evicted:          result.Evicted,
		CorpusSize:       len(snap.Records),
		WatermarkNewest:  timePtr(snap.Watermark.Newest),
		WatermarkOldest:  timePtr(snap.Watermark.Oldest),
		LastFetchTime:    timePtr(snap.LastFetchTime),
		CategoryStats:    snap.CategoryStats,
		ProviderFailures: result.ProviderFailures,
	}

	msg, err := p.message(ctx, EventTypeCorpusUpdated, payload)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, msg)
	if p.metrics != nil {
		p.metrics.RecordEventPublished(EventTypeCorpusUpdated, err == nil)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventTypeCorpusUpdated, err)
	}

	p.logger.Debug().
		Str("event_type", EventTypeCorpusUpdated).
		Str("outcome", string(result.Outcome)).
		Int("corpus_size", payload.CorpusSize).
		Msg("event published")
	return nil
}

// message builds the envelope for payload, keyed by aggregate so that all
// corpus events land on one partition in order.
func (p *Publisher) message(ctx context.Context, eventType string, payload any) (kafka.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal payload: %w", err)
	}

	cycleID, trigger := observability.CycleFromContext(ctx)
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: AggregateTypeCorpus,
		Source:        p.service,
		OccurredAt:    p.now().UTC(),
		CycleID:       cycleID,
		Trigger:       trigger,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return kafka.Message{
		Key:   []byte(AggregateTypeCorpus),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerSource, Value: []byte(p.service)},
		},
	}, nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
