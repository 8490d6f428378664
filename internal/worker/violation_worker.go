package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/config"
)

const (
	BatchSize      = 50
	BatchTimeout   = 2 * time.Second
	PollTimeout    = 1 * time.Second // Must be >= 1s to satisfy Redis
	RequeueBackoff = 2 * time.Second
)

// eventSink persists violation events. Batch and single inserts are split so
// the worker can fall back to row-by-row recovery when a batch is poisoned.
type eventSink interface {
	InsertBatch(ctx context.Context, batch []*violationPayload) error
	InsertOne(ctx context.Context, p *violationPayload) error
}

// ViolationWorker drains the violation queue and persists audit rows in
// batches. The per-session counter is already incremented synchronously;
// losing a queued event costs detail, never the tally.
type ViolationWorker struct {
	sink eventSink
	rdb  *redis.Client
	log  zerolog.Logger

	batchSize      int
	batchTimeout   time.Duration
	pollTimeout    time.Duration
	requeueBackoff time.Duration
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		sink:           &pgEventSink{pool: pool},
		rdb:            rdb,
		log:            log.With().Str("component", "violation_worker").Logger(),
		batchSize:      BatchSize,
		batchTimeout:   BatchTimeout,
		pollTimeout:    PollTimeout,
		requeueBackoff: RequeueBackoff,
	}
}

type violationPayload struct {
	SessionID string `json:"session_id"`
	ExamID    string `json:"exam_id"`
	UserID    string `json:"user_id"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*violationPayload, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for at most pollTimeout.
		result, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload violationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*violationPayload) {
	if err := w.sink.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*violationPayload) {
	requeueList := make([]*violationPayload, 0)

	for _, p := range batch {
		if _, err := parseEventIDs(p); err != nil {
			w.log.Error().Str("session_id", p.SessionID).Msg("Dropping violation event with invalid UUID")
			continue
		}

		if err := w.sink.InsertOne(ctx, p); err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*violationPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: failed to requeue violation events, data loss occurred")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing while the database is down.
		time.Sleep(w.requeueBackoff)
	}
}

func (w *ViolationWorker) shutdown(buffer []*violationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func parseEventIDs(p *violationPayload) ([3]uuid.UUID, error) {
	var out [3]uuid.UUID
	for i, raw := range []string{p.SessionID, p.ExamID, p.UserID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return out, err
		}
		out[i] = id
	}
	return out, nil
}

// pgEventSink writes violation events to Postgres, CopyFrom for batches and
// a plain INSERT for the recovery path.
type pgEventSink struct {
	pool *pgxpool.Pool
}

func (s *pgEventSink) InsertBatch(ctx context.Context, batch []*violationPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		ids, err := parseEventIDs(p)
		if err != nil {
			// Trigger the fallback, which handles the bad row individually.
			return err
		}
		rows = append(rows, []interface{}{
			ids[0], ids[1], ids[2], p.Payload, time.Unix(p.Timestamp, 0),
		})
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		[]string{"session_id", "exam_id", "user_id", "event_data", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (s *pgEventSink) InsertOne(ctx context.Context, p *violationPayload) error {
	ids, err := parseEventIDs(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO violation_events (session_id, exam_id, user_id, event_data, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ids[0], ids[1], ids[2], p.Payload, time.Unix(p.Timestamp, 0),
	)
	return err
}
