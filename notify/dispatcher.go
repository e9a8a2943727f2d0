/*
dispatcher.go - Event dispatcher

PURPOSE:
  Tails the ledger's EventLog and hands each new event to a Notifier
  (email, webhook, log). Decouples notification from the Engine so a slow
  or failing notifier never blocks or fails a ledger operation.

DESIGN:
  - Runs a background goroutine with a configurable poll interval
  - Keeps a cursor (last delivered Seq); each tick fetches events after it
  - Delivers in Seq order; on a Notifier error the cursor stops at the
    failed event and the next tick retries from there
  - BatchSize bounds how many events one tick pulls

CONFIGURATION:
  - Interval:  How often to poll (default: 2s)
  - BatchSize: Max events per poll (default: 100)
  - Enabled:   Whether the dispatcher runs (default: true)

USAGE:
  d := notify.NewDispatcher(events, notify.NewLogNotifier())
  d.Start()
  // ... later
  d.Stop()

SEE ALSO:
  - provenance/events.go: Event types
  - notifier.go: Notifier implementations
*/
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/provenance-ledger/provenance"
)

// Dispatcher delivers ledger events to a Notifier.
type Dispatcher struct {
	Events    provenance.EventLog
	Notifier  provenance.Notifier
	Interval  time.Duration
	BatchSize int
	Enabled   bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	cursorMu sync.Mutex
	cursor   uint64
}

// NewDispatcher creates a dispatcher starting from the beginning of the log.
func NewDispatcher(events provenance.EventLog, notifier provenance.Notifier) *Dispatcher {
	return &Dispatcher{
		Events:    events,
		Notifier:  notifier,
		Interval:  2 * time.Second,
		BatchSize: 100,
		Enabled:   true,
	}
}

// StartAt moves the cursor so events with Seq <= seq are skipped.
func (d *Dispatcher) StartAt(seq uint64) {
	d.cursorMu.Lock()
	d.cursor = seq
	d.cursorMu.Unlock()
}

// Cursor returns the Seq of the last delivered event.
func (d *Dispatcher) Cursor() uint64 {
	d.cursorMu.Lock()
	defer d.cursorMu.Unlock()
	return d.cursor
}

// Start begins the dispatcher.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.Enabled {
		log.Println("[Dispatcher] Disabled, not starting")
		return
	}
	if d.ticker != nil {
		return
	}

	d.ticker = time.NewTicker(d.Interval)
	d.stop = make(chan struct{})
	d.wg.Add(1)

	go d.run()

	log.Printf("[Dispatcher] Started with poll interval: %v", d.Interval)
}

// Stop stops the dispatcher and waits for the current tick to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ticker != nil {
		d.ticker.Stop()
		close(d.stop)
		d.wg.Wait()
		d.ticker = nil
		log.Println("[Dispatcher] Stopped")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	// Run immediately on start
	d.Poll(context.Background())

	for {
		select {
		case <-d.ticker.C:
			d.Poll(context.Background())
		case <-d.stop:
			return
		}
	}
}

// Poll delivers every pending event up to BatchSize and returns how many
// were delivered.
func (d *Dispatcher) Poll(ctx context.Context) int {
	d.cursorMu.Lock()
	defer d.cursorMu.Unlock()

	events, err := d.Events.EventsSince(ctx, d.cursor, d.BatchSize)
	if err != nil {
		log.Printf("[Dispatcher] Error reading events after %d: %v", d.cursor, err)
		return 0
	}

	delivered := 0
	for _, e := range events {
		if err := d.Notifier.Notify(ctx, e); err != nil {
			log.Printf("[Dispatcher] Error delivering event %d (%s): %v; will retry", e.Seq, e.Type, err)
			break
		}
		d.cursor = e.Seq
		delivered++
	}
	if delivered > 0 {
		log.Printf("[Dispatcher] Delivered %d event(s), cursor at %d", delivered, d.cursor)
	}
	return delivered
}
