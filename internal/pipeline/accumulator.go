package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fystack/nft-activity-indexer/internal/alerting"
	"github.com/fystack/nft-activity-indexer/pkg/common/config"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
	"github.com/fystack/nft-activity-indexer/pkg/common/types"
)

// Marker is the slice of the dedup store the pipeline needs after a
// flush settles.
type Marker interface {
	MarkProcessedBatch(keys []string)
	MarkFailedBatch(keys []string, errs []string)
}

// AnalyticsSink receives committed records asynchronously. Implementations
// must not block.
type AnalyticsSink interface {
	Enqueue(records []types.ActivityRecord)
}

// Stats is the accumulator's observable state, served by the HTTP
// status endpoint.
type Stats struct {
	ProcessedCount           uint64 `json:"processed_count"`
	CurrentBatchSize         int    `json:"current_batch_size"`
	LastProcessedLedgerIndex uint64 `json:"last_processed_ledger_index"`
	IsFlushing               bool   `json:"is_flushing"`
}

// Accumulator batches classified records and flushes them through the
// committer when the batch fills or the interval elapses. A failed
// flush keeps the batch intact for the next attempt.
type Accumulator struct {
	committer Committer
	marker    Marker
	publisher alerting.Publisher
	sink      AnalyticsSink
	logger    *slog.Logger

	maxBatchSize  int
	flushInterval time.Duration

	mu         sync.Mutex
	batch      []types.ActivityRecord
	processed  uint64
	lastLedger uint64

	// flushMu admits one flush at a time; contenders no-op rather than
	// queue up behind it.
	flushMu    sync.Mutex
	isFlushing bool

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

func NewAccumulator(cfg config.PipelineConfig, committer Committer, marker Marker, publisher alerting.Publisher, sink AnalyticsSink) *Accumulator {
	a := &Accumulator{
		committer:     committer,
		marker:        marker,
		publisher:     publisher,
		sink:          sink,
		logger:        logger.With("component", "pipeline"),
		maxBatchSize:  cfg.MaxBatchSize,
		flushInterval: cfg.FlushInterval,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go a.flushLoop()
	return a
}

// Add appends one record. Reaching the batch cap triggers a synchronous
// flush so a serial producer gets natural backpressure.
func (a *Accumulator) Add(record types.ActivityRecord) {
	a.mu.Lock()
	a.batch = append(a.batch, record)
	full := len(a.batch) >= a.maxBatchSize
	a.mu.Unlock()

	if full {
		if err := a.tryFlush(context.Background()); err != nil {
			a.logger.Error("Size-triggered flush failed, batch retained", "error", err)
		}
	}
}

// Flush forces a flush and waits for any flush in flight first. Used on
// shutdown to drain the tail of the batch.
func (a *Accumulator) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()
	return a.flushLocked(ctx)
}

// Stop terminates the interval flusher. Callers drain with Flush first.
func (a *Accumulator) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
		<-a.done
	})
}

func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		ProcessedCount:           a.processed,
		CurrentBatchSize:         len(a.batch),
		LastProcessedLedgerIndex: a.lastLedger,
		IsFlushing:               a.isFlushing,
	}
}

func (a *Accumulator) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
			if err := a.tryFlush(context.Background()); err != nil {
				a.logger.Error("Interval flush failed, batch retained", "error", err)
			}
		}
	}
}

// tryFlush flushes unless another flush is already in flight, in which
// case it no-ops.
func (a *Accumulator) tryFlush(ctx context.Context) error {
	if !a.flushMu.TryLock() {
		return nil
	}
	defer a.flushMu.Unlock()
	return a.flushLocked(ctx)
}

// flushLocked commits the current batch snapshot. Records added while
// the commit runs stay queued for the next flush. Caller holds flushMu.
func (a *Accumulator) flushLocked(ctx context.Context) error {
	a.mu.Lock()
	n := len(a.batch)
	if n == 0 {
		a.mu.Unlock()
		return nil
	}
	snapshot := make([]types.ActivityRecord, n)
	copy(snapshot, a.batch)
	a.isFlushing = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.isFlushing = false
		a.mu.Unlock()
	}()

	result, err := a.committer.Commit(ctx, snapshot)
	if err != nil {
		// nothing marked: the batch stays and the next flush retries it
		return err
	}

	a.mu.Lock()
	a.batch = append(a.batch[:0], a.batch[n:]...)
	a.processed += uint64(n)
	if result.MaxLedgerIndex > a.lastLedger {
		a.lastLedger = result.MaxLedgerIndex
	}
	a.mu.Unlock()

	if a.marker != nil {
		a.marker.MarkProcessedBatch(dedupKeys(snapshot))
	}
	a.handoff(snapshot)

	a.logger.Debug("Flushed batch", "records", n, "max_ledger", result.MaxLedgerIndex)
	return nil
}

// handoff fans committed records out to alerting and analytics without
// tying their fate to the commit.
func (a *Accumulator) handoff(records []types.ActivityRecord) {
	if a.publisher != nil {
		go func() {
			if err := a.publisher.ProcessActivityBatch(records); err != nil {
				a.logger.Warn("Activity alert publish failed", "error", err, "records", len(records))
			}
		}()
	}
	if a.sink != nil {
		a.sink.Enqueue(records)
	}
}
