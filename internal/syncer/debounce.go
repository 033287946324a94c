package syncer

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer runs keyed delayed tasks. Scheduling a key that already has a
// pending task replaces it and restarts the delay; a task fires at most once.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pendingTask
	gen     uint64 // never reused, so a stale timer cannot match a newer task
	stopped bool
	running sync.WaitGroup
}

type pendingTask struct {
	timer *time.Timer
	gen   uint64
}

func NewDebouncer() *Debouncer {
	return &Debouncer{pending: map[string]*pendingTask{}}
}

// Schedule runs fn after delay unless key is scheduled again first.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	task := &pendingTask{gen: gen}
	task.timer = time.AfterFunc(delay, func() { d.fire(key, gen, fn) })
	d.pending[key] = task
}

func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Debounced task panicked", "key", key, "panic", r)
		}
	}()
	fn()
}

// Pending reports the number of scheduled tasks that have not fired.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending tasks and waits for running ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	d.running.Wait()
}
