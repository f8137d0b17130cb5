package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/metrics"
)

const (
	journalContentType   = "application/x-ndjson"
	defaultFlushInterval = 5 * time.Minute
	defaultMaxBuffered   = 1000
	shutdownFlushTimeout = 30 * time.Second

	// pendingFactor sets the hard cap on pending events while uploads fail,
	// as a multiple of maxBuffered.
	pendingFactor = 10
	// sinkName labels events dropped at the cap.
	sinkName = "s3"
)

// Journal buffers lifecycle events as JSONL and uploads the buffer as one
// object per flush:
//
//	<prefix>/events/2026-03-01/20260301T120000.000000000Z.jsonl
//
// A failed upload keeps the events buffered for the next flush. Pending
// events are capped at pendingFactor x maxBuffered; past that the oldest are
// dropped and counted.
type Journal struct {
	writer      domain.BlobWriter
	prefix      string
	interval    time.Duration
	maxBuffered int
	maxPending  int
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	lines   [][]byte
	dropped int
	full    chan struct{}
}

var _ domain.EventPublisher = (*Journal)(nil)

// NewJournal creates a Journal uploading through writer every interval, or
// sooner once maxBuffered events are pending. m may be nil.
func NewJournal(writer domain.BlobWriter, prefix string, interval time.Duration, maxBuffered int, m *metrics.Metrics, logger *slog.Logger) *Journal {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if maxBuffered <= 0 {
		maxBuffered = defaultMaxBuffered
	}
	return &Journal{
		writer:      writer,
		prefix:      strings.Trim(prefix, "/"),
		interval:    interval,
		maxBuffered: maxBuffered,
		maxPending:  maxBuffered * pendingFactor,
		metrics:     m,
		logger:      logger.With(slog.String("component", "journal")),
		now:         time.Now,
		full:        make(chan struct{}, 1),
	}
}

// Publish appends ev to the pending buffer.
func (j *Journal) Publish(_ context.Context, ev domain.LifecycleEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("s3blob: marshal event %s: %w", ev.ID, err)
	}

	j.mu.Lock()
	j.lines = append(j.lines, line)
	j.trimLocked()
	full := len(j.lines) >= j.maxBuffered
	j.mu.Unlock()

	if full {
		select {
		case j.full <- struct{}{}:
		default:
		}
	}
	return nil
}

// trimLocked drops the oldest events beyond maxPending.
func (j *Journal) trimLocked() {
	over := len(j.lines) - j.maxPending
	if over <= 0 {
		return
	}
	j.lines = j.lines[over:]
	j.dropped += over
	for i := 0; i < over; i++ {
		j.metrics.EventDropped(sinkName)
	}
	j.logger.Warn("journal full, oldest events dropped",
		slog.Int("dropped", over),
		slog.Int("pending", len(j.lines)),
	)
}

// Pending returns the number of buffered events.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.lines)
}

// Dropped returns how many events were discarded at the pending cap.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Flush uploads the pending events and returns how many were written.
func (j *Journal) Flush(ctx context.Context) (int, error) {
	j.mu.Lock()
	if len(j.lines) == 0 {
		j.mu.Unlock()
		return 0, nil
	}
	taken := j.lines
	j.lines = nil
	j.mu.Unlock()

	var buf bytes.Buffer
	for _, line := range taken {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	data := buf.Bytes()

	key := j.objectKey(j.now().UTC())
	var err error
	if int64(len(data)) >= MinPartSize {
		err = j.writer.PutMultipart(ctx, key, bytes.NewReader(data), MinPartSize)
	} else {
		err = j.writer.Put(ctx, key, bytes.NewReader(data), journalContentType)
	}
	if err != nil {
		j.requeue(taken)
		return 0, fmt.Errorf("s3blob: flush journal: %w", err)
	}

	j.logger.InfoContext(ctx, "journal flushed",
		slog.String("key", key),
		slog.Int("events", len(taken)),
		slog.Int("bytes", len(data)),
	)
	return len(taken), nil
}

// requeue puts taken back in front of anything buffered since the flush
// began, then enforces the cap.
func (j *Journal) requeue(taken [][]byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lines = append(taken, j.lines...)
	j.trimLocked()
}

// RunLoop flushes on every interval tick and whenever the buffer fills. After
// a failed flush, fill signals are ignored until the next tick so a dead
// bucket is not retried in a tight loop. On cancellation it makes a last
// flush with a fresh deadline.
func (j *Journal) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			if _, err := j.Flush(fctx); err != nil {
				j.logger.Error("final journal flush failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
		case <-j.full:
			if failing {
				continue
			}
		}
		_, err := j.Flush(ctx)
		failing = err != nil
		if err != nil {
			j.logger.ErrorContext(ctx, "journal flush failed",
				slog.Int("pending", j.Pending()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (j *Journal) objectKey(t time.Time) string {
	name := t.Format("20060102T150405.000000000Z") + ".jsonl"
	return path.Join(j.prefix, "events", t.Format("2006-01-02"), name)
}
