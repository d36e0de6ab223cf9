// Package kafka carries the report and admin update insert feeds over Kafka
// so that admin dashboards on other instances see every insert.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/SneHope/TVH-NotiZAR/internal/config"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

// Feed publishes records of type T to one topic and subscribes to it.
// It implements domain.Feed[T].
type Feed[T any] struct {
	brokers  []string
	topic    string
	groupID  string
	instance string
	key      func(T) string
	writer   *kafkago.Writer
	logger   *slog.Logger

	subs   atomic.Int64
	mu     sync.Mutex
	active map[*subscription]struct{}
}

var _ domain.Feed[domain.Report] = (*Feed[domain.Report])(nil)

// NewFeed creates a Kafka-backed feed on topic. key extracts the message key,
// which keeps records with the same id on one partition. Without a configured
// instance id the feed generates one, so its consumer groups are not shared
// with any other process.
func NewFeed[T any](cfg *config.Config, topic string, key func(T) string, logger *slog.Logger) *Feed[T] {
	instance := cfg.KafkaInstanceID
	if instance == "" {
		instance = uuid.NewString()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Feed[T]{
		brokers:  cfg.KafkaBrokers,
		topic:    topic,
		groupID:  cfg.KafkaGroupID,
		instance: instance,
		key:      key,
		writer:   w,
		logger:   logger,
		active:   make(map[*subscription]struct{}),
	}
}

// NewReportFeed is the report insert feed keyed by report id.
func NewReportFeed(cfg *config.Config, logger *slog.Logger) *Feed[domain.Report] {
	return NewFeed(cfg, cfg.KafkaReportsTopic, func(r domain.Report) string { return r.ID }, logger)
}

// NewAdminUpdateFeed is the admin update insert feed keyed by report id, so
// the updates for one report stay ordered.
func NewAdminUpdateFeed(cfg *config.Config, logger *slog.Logger) *Feed[domain.AdminUpdate] {
	return NewFeed(cfg, cfg.KafkaUpdatesTopic, func(u domain.AdminUpdate) string { return u.ReportID }, logger)
}

// Publish writes v to the topic.
func (f *Feed[T]) Publish(ctx context.Context, v T) error {
	msg, err := serializeToMessage(v, f.key(v), time.Now())
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", f.topic, err)
	}
	return nil
}

// Subscribe starts a consumer calling fn for each record. Every subscription
// gets its own consumer group ("<group>-<instance>-<n>"), so every replica and
// every subscriber within it sees every record. Offsets are committed after fn
// returns, which gives at-least-once delivery. A group with no committed
// offset starts at the end of the topic, so history is not replayed as new
// inserts.
func (f *Feed[T]) Subscribe(fn func(T)) (domain.Subscription, error) {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     f.brokers,
		Topic:       f.topic,
		GroupID:     f.nextGroupID(),
		StartOffset: kafkago.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{cancel: cancel, done: make(chan struct{})}
	f.mu.Lock()
	f.active[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		defer close(s.done)
		defer func() {
			f.mu.Lock()
			delete(f.active, s)
			f.mu.Unlock()
		}()
		f.consume(ctx, r, fn)
	}()
	return s, nil
}

func (f *Feed[T]) nextGroupID() string {
	n := f.subs.Add(1) - 1
	return fmt.Sprintf("%s-%s-%d", f.groupID, f.instance, n)
}

// Close stops every subscription, waits for their consumers to exit, and
// flushes the writer.
func (f *Feed[T]) Close() error {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.active))
	for s := range f.active {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
		<-s.done
	}
	return f.writer.Close()
}

func (f *Feed[T]) consume(ctx context.Context, r *kafkago.Reader, fn func(T)) {
	defer func() {
		if err := r.Close(); err != nil {
			f.logger.Warn("close kafka reader failed", "topic", f.topic, "error", err)
		}
	}()

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("fetch message failed", "topic", f.topic, "error", err)
			if !sharedretry.SleepWithContext(ctx, backoff) {
				return
			}
			backoff = sharedretry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		v, err := deserializeMessage[T](msg)
		if err != nil {
			f.logger.Warn("skipping undecodable message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		} else if ctx.Err() == nil {
			fn(v)
		}

		if ctx.Err() != nil {
			// Not committed: the record is redelivered to the next consumer.
			return
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			f.logger.Warn("commit offset failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the consumer. It does not wait for it to exit, so it is safe
// to call from inside the callback.
func (s *subscription) Cancel() {
	s.cancel()
}

// serializeToMessage marshals a record into a Kafka message.
func serializeToMessage(v any, key string, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %T: %w", v, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(fmt.Sprintf("%T", v))},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}

func deserializeMessage[T any](msg kafkago.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Value, &v); err != nil {
		return v, fmt.Errorf("deserialize %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return v, nil
}
