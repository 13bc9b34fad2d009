/*
scheduler.go - Automated order confirmation scheduler

PURPOSE:
  Periodically scans for pending orders whose auto-confirm deadline has
  passed and confirms them without operator involvement. Orders flagged
  for manual approval never get a deadline and are never touched here.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Polls the store for pending orders with auto_confirm_at <= now
  - Confirms each through the state machine so stock commit, payment
    counters, and notifications all happen exactly as a manual confirm
  - A single failing order is logged and skipped, the sweep continues

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAutoConfirmScheduler(store, machine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - orders/machine.go: Transition side effects
  - orders/schedule.go: Deadline computation at admission time
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/campo-vida/order-engine/orders"
)

// AutoConfirmScheduler confirms pending orders past their deadline.
type AutoConfirmScheduler struct {
	Store         orders.OrderStore
	Machine       *orders.StateMachine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAutoConfirmScheduler creates a new scheduler.
func NewAutoConfirmScheduler(store orders.OrderStore, machine *orders.StateMachine) *AutoConfirmScheduler {
	return &AutoConfirmScheduler{
		Store:         store,
		Machine:       machine,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *AutoConfirmScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	// Pass the ticker in rather than reading s.ticker inside the goroutine:
	// Stop() nils s.ticker while run is still live, which would race.
	go s.run(s.ticker)

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *AutoConfirmScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *AutoConfirmScheduler) run(ticker *time.Ticker) {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *AutoConfirmScheduler) sweep() {
	ctx := context.Background()
	now := time.Now()

	due, err := s.Store.ListAutoConfirmDue(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Error listing due orders: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	confirmed := 0
	for _, o := range due {
		// Re-check under the machine: the order may have been cancelled
		// or manually confirmed between the query and now. Those come
		// back as invalid-transition errors and are simply skipped.
		_, err := s.Machine.Transition(ctx, o.ID, orders.StatusConfirmed, "", "auto-confirmed")
		if err != nil {
			log.Printf("[Scheduler] Error confirming order %s: %v", o.ID, err)
			continue
		}
		confirmed++
	}

	if confirmed > 0 {
		log.Printf("[Scheduler] Completed: %d of %d due orders confirmed", confirmed, len(due))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *AutoConfirmScheduler) RunNow() {
	s.sweep()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *AutoConfirmScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
