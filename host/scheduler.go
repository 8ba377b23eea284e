package host

import (
	"fmt"
	"sync"
	"time"
)

const defaultTimerInterval = 10 * time.Millisecond

// TickerScheduler is the stock Scheduler implementation. Every registered
// timer gets its own ticker goroutine, but callback execution is serialised
// through a shared run lock, preserving the single-threaded cooperative
// contract the bridge dispatch loop relies on.
type TickerScheduler struct {
	runMu sync.Mutex

	mu      sync.Mutex
	timers  map[string]chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{timers: make(map[string]chan struct{})}
}

// CreatePeriodicTimer registers fn to run every interval. A non-positive
// interval selects a short default. Re-using a name replaces the previous
// timer.
func (s *TickerScheduler) CreatePeriodicTimer(name string, interval time.Duration, fn func()) error {
	if name == "" {
		return fmt.Errorf("scheduler: timer name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("scheduler: timer %s: callback must not be nil", name)
	}
	if interval <= 0 {
		interval = defaultTimerInterval
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: timer %s: scheduler stopped", name)
	}
	if old, ok := s.timers[name]; ok {
		close(old)
	}
	stop := make(chan struct{})
	s.timers[name] = stop
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.runMu.Lock()
				fn()
				s.runMu.Unlock()
			}
		}
	}()
	return nil
}

// Remove cancels the named timer if it exists.
func (s *TickerScheduler) Remove(name string) {
	s.mu.Lock()
	if stop, ok := s.timers[name]; ok {
		close(stop)
		delete(s.timers, name)
	}
	s.mu.Unlock()
}

// Stop cancels all timers and waits for in-flight callbacks to return.
func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, stop := range s.timers {
		close(stop)
	}
	s.timers = nil
	s.mu.Unlock()
	s.wg.Wait()
}
