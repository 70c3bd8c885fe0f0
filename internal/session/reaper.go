package session

import (
	"sync"
	"time"
)

// Reaper fires onExpire once no activity has been recorded for timeout.
// A single timer is kept; Reset restarts it rather than stacking another.
type Reaper struct {
	timeout  time.Duration
	onExpire func()

	mu           sync.Mutex
	timer        *time.Timer
	lastActivity time.Time
	stopped      bool
}

// NewReaper creates a reaper. A timeout of zero or less disables it.
func NewReaper(timeout time.Duration, onExpire func()) *Reaper {
	return &Reaper{timeout: timeout, onExpire: onExpire}
}

// Enabled reports whether the reaper ever fires
func (r *Reaper) Enabled() bool {
	return r.timeout > 0
}

// Timeout returns the configured idle window
func (r *Reaper) Timeout() time.Duration {
	return r.timeout
}

// Reset records activity now and restarts the countdown
func (r *Reaper) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActivity = time.Now()
	r.arm()
}

// Rearm restarts the countdown without recording activity
func (r *Reaper) Rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arm()
}

func (r *Reaper) arm() {
	if !r.Enabled() || r.stopped {
		return
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(r.timeout, r.onExpire)
		return
	}
	r.timer.Stop()
	r.timer.Reset(r.timeout)
}

// Stop cancels the countdown for good
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

// LastActivity returns when Reset was last called, or the zero time
func (r *Reaper) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}
