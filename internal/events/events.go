// Package events moves screen and content notifications from their source to
// the scraper without ever blocking the source. The pump buffers a bounded
// number of events and sheds the oldest under saturation, the same trade the
// write coordinator's retry queue makes: bounded memory over zero loss.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/node"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// Defaults for the pump
const (
	DefaultBufferSize = 64
	DefaultWorkers    = 2
)

// Event is one screen or content notification plus the provider that can
// materialize the screen's node tree on demand.
type Event struct {
	types.ScreenEvent
	Provider node.Provider
}

// Source delivers events on a channel. Closing the channel detaches the
// source from the pump.
type Source interface {
	Events() <-chan Event
}

// Handler consumes one event off the delivery path
type Handler func(ctx context.Context, ev Event)

// Config tunes one pump
type Config struct {
	BufferSize int
	Workers    int
}

// Pump fans events out to worker goroutines through a bounded buffer
type Pump struct {
	handler Handler
	buf     chan Event
	workers int

	dropped int64

	stopCh chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a pump that hands events to the given handler
func New(handler Handler, cfg Config) *Pump {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Pump{
		handler: handler,
		buf:     make(chan Event, cfg.BufferSize),
		workers: cfg.Workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutines. The context is passed through to the
// handler so in-flight work observes shutdown.
func (p *Pump) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(ctx)
		}
		logging.Info("events", "pump started: %d workers, buffer %d", p.workers, cap(p.buf))
	})
}

// Stop halts the workers after they finish their current event. Buffered
// events that were never picked up are discarded.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		logging.Info("events", "pump stopped, %d events dropped over lifetime", p.Dropped())
	})
}

// Attach forwards a source's events into the pump until the source channel
// closes. Multiple sources may be attached.
func (p *Pump) Attach(src Source) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stopCh:
				return
			case ev, ok := <-src.Events():
				if !ok {
					return
				}
				p.Offer(ev)
			}
		}
	}()
}

// Offer enqueues an event without ever blocking the caller. When the buffer
// is full the oldest buffered event is shed to make room.
func (p *Pump) Offer(ev Event) {
	for {
		select {
		case p.buf <- ev:
			return
		default:
		}
		select {
		case old := <-p.buf:
			atomic.AddInt64(&p.dropped, 1)
			logging.Warn("events", "buffer saturated, dropped %s event for %s (%d dropped total)",
				old.Kind, old.Package, atomic.LoadInt64(&p.dropped))
		default:
			// a worker raced us to the oldest entry; retry the send
		}
	}
}

// Dropped returns the number of events shed under saturation
func (p *Pump) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

func (p *Pump) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-p.buf:
			p.handler(ctx, ev)
		}
	}
}
