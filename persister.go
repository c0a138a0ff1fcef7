package lexkv

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// persister writes full-text snapshots of stores marked dirty by committed
// transactions. Rounds are throttled so bursts of small commits share one
// snapshot per store.
type persister struct {
	db      *DB
	limiter *rate.Limiter

	mu    sync.Mutex
	dirty map[string]struct{}

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPersister(db *DB, interval time.Duration) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	return &persister{
		db:      db,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		dirty:   map[string]struct{}{},
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (p *persister) start() {
	go p.run()
}

// mark schedules a snapshot of store.
func (p *persister) mark(store string) {
	p.mu.Lock()
	p.dirty[store] = struct{}{}
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		if err := p.limiter.Wait(p.ctx); err != nil {
			return
		}
		_ = p.flush(p.ctx)
	}
}

// take empties the dirty set and returns its stores in ascending order.
func (p *persister) take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	stores := make([]string, 0, len(p.dirty))
	for name := range p.dirty {
		stores = append(stores, name)
	}
	clear(p.dirty)
	slices.Sort(stores)
	return stores
}

// flush snapshots every dirty store. A store whose snapshot fails stays
// dirty for the next round.
func (p *persister) flush(ctx context.Context) error {
	var errs []error
	for _, name := range p.take() {
		if err := p.db.saveSnapshot(ctx, name); err != nil {
			errs = append(errs, err)
			p.mu.Lock()
			p.dirty[name] = struct{}{}
			p.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// close stops the background goroutine and flushes synchronously.
func (p *persister) close(ctx context.Context) error {
	p.cancel()
	<-p.done
	return p.flush(ctx)
}
