package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/wardgate/wardgate/pkg/infra/prometheus"
)

const (
	defaultQueueSize = 1000
	defaultRedisKey  = "wardgate:security:events"
	defaultStreamCap = 10000
	sinkWriteTimeout = 2 * time.Second
)

// Writer persists one event to durable storage.
type Writer interface {
	Write(ctx context.Context, event Event) error
}

// Sink decouples the request path from audit persistence. Publish never
// blocks: when the queue is full the event is dropped and counted. A
// circuit breaker holds writes off a failing backend so the consumer
// does not burn its queue on timeouts.
type Sink struct {
	ch      chan Event
	writers []Writer
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger

	dropped uint64

	wg   sync.WaitGroup
	stop chan struct{}
}

type SinkOpts struct {
	QueueSize int
	Logger    *logrus.Logger
}

func NewSink(opts *SinkOpts, writers ...Writer) *Sink {
	size := defaultQueueSize
	var logger *logrus.Logger
	if opts != nil {
		if opts.QueueSize > 0 {
			size = opts.QueueSize
		}
		logger = opts.Logger
	}
	s := &Sink{
		ch:      make(chan Event, size),
		writers: writers,
		logger:  logger,
		stop:    make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "audit-sink",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	s.wg.Add(1)
	go s.consume()
	return s
}

// Publish enqueues an event for background persistence. Returns false
// when the queue was full and the event was dropped.
func (s *Sink) Publish(event Event) bool {
	select {
	case s.ch <- event:
		return true
	default:
		atomic.AddUint64(&s.dropped, 1)
		prometheus.AuditEventsDropped.Inc()
		if s.logger != nil {
			s.logger.Debug("audit queue is full, dropping event")
		}
		return false
	}
}

// Dropped reports how many events were discarded on overflow.
func (s *Sink) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Close drains the queue and stops the consumer.
func (s *Sink) Close() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Sink) consume() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.ch:
			s.write(event)
		case <-s.stop:
			for {
				select {
				case event := <-s.ch:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(event Event) {
	for _, w := range s.writers {
		writer := w
		_, err := s.breaker.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
			defer cancel()
			return nil, writer.Write(ctx, event)
		})
		if err != nil {
			atomic.AddUint64(&s.dropped, 1)
			prometheus.AuditEventsDropped.Inc()
			if s.logger != nil {
				s.logger.WithError(err).Warn("failed to persist security event")
			}
		}
	}
}

// RedisWriter appends events to a capped Redis list so recent history
// survives process restarts.
type RedisWriter struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

func NewRedisWriter(client redis.UniversalClient) *RedisWriter {
	return &RedisWriter{client: client, key: defaultRedisKey, maxLen: defaultStreamCap}
}

func (w *RedisWriter) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.forExport())
	if err != nil {
		return err
	}
	pipe := w.client.TxPipeline()
	pipe.RPush(ctx, w.key, payload)
	pipe.LTrim(ctx, w.key, -w.maxLen, -1)
	_, err = pipe.Exec(ctx)
	return err
}
