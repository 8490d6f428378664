package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examgate/examgate-backend/internal/config"
)

// fakeEventSink records every insert and can be told to fail, so the
// requeue path is reachable without a database.
type fakeEventSink struct {
	mu          sync.Mutex
	batches     [][]*violationPayload
	singles     []*violationPayload
	batchErr    error
	oneFailures int // fail this many InsertOne calls, then succeed
}

func (s *fakeEventSink) InsertBatch(_ context.Context, batch []*violationPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	copied := make([]*violationPayload, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *fakeEventSink) InsertOne(_ context.Context, p *violationPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.oneFailures > 0 {
		s.oneFailures--
		return assert.AnError
	}
	s.singles = append(s.singles, p)
	return nil
}

func (s *fakeEventSink) batchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *fakeEventSink) singleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.singles)
}

func newTestWorker(t *testing.T, sink *fakeEventSink, batchSize int) (*ViolationWorker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &ViolationWorker{
		sink:           sink,
		rdb:            rdb,
		log:            zerolog.Nop(),
		batchSize:      batchSize,
		batchTimeout:   100 * time.Millisecond,
		pollTimeout:    time.Second,
		requeueBackoff: 10 * time.Millisecond,
	}, rdb
}

func queueEvent(t *testing.T, rdb *redis.Client, payload string) {
	t.Helper()
	data, err := json.Marshal(violationPayload{
		SessionID: uuid.NewString(),
		ExamID:    uuid.NewString(),
		UserID:    uuid.NewString(),
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistViolationsQueue, data).Err())
}

func TestViolationWorker(t *testing.T) {
	t.Run("flushes when the batch fills", func(t *testing.T) {
		sink := &fakeEventSink{}
		w, rdb := newTestWorker(t, sink, 3)
		for i := 0; i < 3; i++ {
			queueEvent(t, rdb, "tab_switch")
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() { defer close(done); w.Start(ctx) }()

		assert.Eventually(t, func() bool { return sink.batchedCount() == 3 }, 5*time.Second, 20*time.Millisecond)
		cancel()
		<-done
	})

	t.Run("flushes a partial batch after the interval", func(t *testing.T) {
		sink := &fakeEventSink{}
		w, rdb := newTestWorker(t, sink, 50)
		queueEvent(t, rdb, "window_blur")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() { defer close(done); w.Start(ctx) }()

		assert.Eventually(t, func() bool { return sink.batchedCount() == 1 }, 5*time.Second, 20*time.Millisecond)
		cancel()
		<-done
	})

	t.Run("requeues failed rows and retries them", func(t *testing.T) {
		sink := &fakeEventSink{batchErr: assert.AnError, oneFailures: 1}
		w, rdb := newTestWorker(t, sink, 1)
		queueEvent(t, rdb, "devtools_open")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() { defer close(done); w.Start(ctx) }()

		// First pass: batch insert fails, row insert fails, the event goes
		// back onto the queue. Second pass lands it through the fallback.
		assert.Eventually(t, func() bool { return sink.singleCount() == 1 }, 5*time.Second, 20*time.Millisecond)
		cancel()
		<-done

		queued, err := rdb.LLen(context.Background(), config.WorkerKey.PersistViolationsQueue).Result()
		require.NoError(t, err)
		assert.Zero(t, queued, "successfully persisted events must leave the queue")
	})

	t.Run("discards malformed queue entries", func(t *testing.T) {
		sink := &fakeEventSink{}
		w, rdb := newTestWorker(t, sink, 1)
		require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistViolationsQueue, "{not json").Err())
		queueEvent(t, rdb, "tab_switch")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() { defer close(done); w.Start(ctx) }()

		assert.Eventually(t, func() bool { return sink.batchedCount() == 1 }, 5*time.Second, 20*time.Millisecond)
		cancel()
		<-done
	})
}
