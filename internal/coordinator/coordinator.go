// Package coordinator owns every multi-table write: transactions with
// rollback, bounded retry on lock contention, and a deferred-write queue for
// inserts that raced ahead of their own foreign-key parents.
package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
)

// Defaults for the deferred-write queue
const (
	DefaultQueueSize     = 100
	DefaultMaxAttempts   = 5
	DefaultTTL           = 5 * time.Minute
	DefaultDrainInterval = 10 * time.Second
	DefaultTxAttempts    = 3
)

// Config tunes one coordinator instance
type Config struct {
	QueueSize     int
	MaxAttempts   int
	TTL           time.Duration
	DrainInterval time.Duration
}

// DrainStats summarizes one drain cycle
type DrainStats struct {
	Applied  int
	Requeued int
	Dropped  int
	Depth    int
}

// Coordinator wraps a store's database with transactional write machinery.
// The queue lives and dies with the instance; it is not process-global.
type Coordinator struct {
	db    *sql.DB
	cfg   Config
	queue *retryQueue
	proc  *process.Process

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a coordinator over the given database handle
func New(db *sql.DB, cfg Config) *Coordinator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Coordinator{
		db:     db,
		cfg:    cfg,
		queue:  newRetryQueue(cfg.QueueSize),
		proc:   proc,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// RunInTransaction executes fn atomically: every write commits together or
// none do.
func (c *Coordinator) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Warn("coordinator", "rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunWithRetry retries the transaction on transient lock contention with
// linear backoff plus jitter. Non-contention errors surface immediately.
func (c *Coordinator) RunWithRetry(ctx context.Context, maxAttempts int, fn func(tx *sql.Tx) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultTxAttempts
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = c.RunInTransaction(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt < maxAttempts {
			backoff := time.Duration(attempt)*25*time.Millisecond + time.Duration(rand.Intn(20))*time.Millisecond
			logging.Debug("coordinator", "write conflict (attempt %d/%d), retrying in %v", attempt, maxAttempts, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxAttempts, err)
}

// isBusy reports whether the error is transient sqlite lock contention
func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// Defer queues a write whose parent row is not visible yet. Never blocks.
func (c *Coordinator) Defer(w *PendingWrite) {
	if w.TTL <= 0 {
		w.TTL = c.cfg.TTL
	}
	c.queue.enqueue(w)
	logging.Debug("coordinator", "deferred %s write %s (queue depth %d)", w.Kind, w.ID, c.queue.len())
}

// QueueDepth reports the number of deferred writes waiting
func (c *Coordinator) QueueDepth() int {
	return c.queue.len()
}

// Start launches the periodic drain loop
func (c *Coordinator) Start() {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.cfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.DrainOnce(context.Background())
			case <-c.stopCh:
				// final drain so a clean shutdown loses nothing replayable
				c.DrainOnce(context.Background())
				return
			}
		}
	}()
}

// Stop halts the drain loop and waits for it to finish
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// DrainOnce replays every queued write once: applied on success, requeued
// with a bumped attempt counter while the parent is still missing, dropped
// and logged as lost past the attempt cap or TTL.
func (c *Coordinator) DrainOnce(ctx context.Context) DrainStats {
	pending := c.queue.takeAll()
	if len(pending) == 0 {
		return DrainStats{}
	}

	var stats DrainStats
	now := time.Now()
	for _, w := range pending {
		if w.expired(now) {
			stats.Dropped++
			logging.Warn("coordinator", "dropping %s write %s: TTL %v exceeded (lost)", w.Kind, w.ID, w.TTL)
			continue
		}
		w.Attempts++
		err := c.RunInTransaction(ctx, func(tx *sql.Tx) error { return w.apply(tx) })
		switch {
		case err == nil:
			stats.Applied++
		case !errors.Is(err, store.ErrParentMissing) && !isBusy(err):
			// genuinely non-retryable; a missing parent or a lock blip is not
			stats.Dropped++
			logging.Warn("coordinator", "dropping %s write %s: %v (lost)", w.Kind, w.ID, err)
		case w.Attempts >= c.cfg.MaxAttempts:
			stats.Dropped++
			logging.Warn("coordinator", "dropping %s write %s: still failing after %d attempts (lost): %v", w.Kind, w.ID, w.Attempts, err)
		default:
			c.queue.enqueue(w)
			stats.Requeued++
		}
	}

	stats.Depth = c.queue.len()
	logging.Info("coordinator", "drain: applied=%d requeued=%d dropped=%d depth=%d evicted=%d rss=%s",
		stats.Applied, stats.Requeued, stats.Dropped, stats.Depth, c.queue.evictedCount(), c.rss())
	return stats
}

// rss reports the process resident set for drain logs
func (c *Coordinator) rss() string {
	if c.proc == nil {
		return "n/a"
	}
	mi, err := c.proc.MemoryInfo()
	if err != nil || mi == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1fMB", float64(mi.RSS)/(1024*1024))
}
