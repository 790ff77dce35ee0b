package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardgate/wardgate/pkg/threat"
)

type captureWriter struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
}

func (w *captureWriter) Write(_ context.Context, event Event) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestSinkDeliversEvents(t *testing.T) {
	writer := &captureWriter{}
	sink := NewSink(&SinkOpts{QueueSize: 10}, writer)

	for i := 0; i < 5; i++ {
		require.True(t, sink.Publish(Event{ID: "e", Type: EventThreatDetected}))
	}
	sink.Close()

	assert.Equal(t, 5, writer.count())
	assert.Equal(t, uint64(0), sink.Dropped())
}

func TestSinkDropsOnOverflow(t *testing.T) {
	writer := &captureWriter{gate: make(chan struct{})}
	sink := NewSink(&SinkOpts{QueueSize: 1}, writer)

	// First event parks the consumer inside the writer; the queue then
	// holds one more, everything after that is dropped.
	sink.Publish(Event{ID: "in-flight"})
	deadline := time.After(time.Second)
	for sink.Publish(Event{ID: "queued"}) {
		select {
		case <-deadline:
			t.Fatal("publish never hit a full queue")
		default:
		}
	}

	assert.GreaterOrEqual(t, sink.Dropped(), uint64(1))

	close(writer.gate)
	sink.Close()
}

func TestRedisWriter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	writer := NewRedisWriter(db)

	event := Event{
		ID:          "event-0001",
		Type:        EventThreatDetected,
		ThreatLevel: threat.Critical,
		ClientID:    "203.0.113.9:ab12cd34",
		Path:        "/api/v1/users",
		Method:      "POST",
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(event.forExport())
	require.NoError(t, err)

	mock.ExpectTxPipeline()
	mock.ExpectRPush(writer.key, payload).SetVal(1)
	mock.ExpectLTrim(writer.key, -writer.maxLen, -1).SetVal("OK")
	mock.ExpectTxPipelineExec()

	require.NoError(t, writer.Write(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}
