package download

import (
	"sync"
	"time"
)

// watchdog calls back when it isn't kicked during the interval.
// A zero interval disables it.
type watchdog struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	fired    bool
}

func newWatchDog(interval time.Duration, callback func()) *watchdog {
	w := &watchdog{
		interval: interval,
	}
	if interval > 0 {
		w.timer = time.AfterFunc(interval, func() {
			w.mu.Lock()
			w.fired = true
			w.mu.Unlock()
			callback()
		})
	}
	return w
}

func (w *watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *watchdog) Kick() {
	if w.timer != nil {
		w.timer.Reset(w.interval)
	}
}

// Fired tells if the callback has been called
func (w *watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
