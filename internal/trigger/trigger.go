// Package trigger decides when a chat session's data is flushed to the
// host. Four triggers funnel into one flush callback: a message-count
// threshold, an inactivity timeout, page-hide/unload, and an explicit
// forced command from the host. The first trigger to fire wins; once the
// done-flag is set, later non-forced trigger callbacks are no-ops.
package trigger

import (
	"log/slog"
	"sync"
	"time"
)

// Reason identifies which trigger requested a flush.
type Reason string

const (
	ReasonThreshold  Reason = "threshold"
	ReasonInactivity Reason = "inactivity"
	ReasonPageHide   Reason = "page_hide"
	ReasonForced     Reason = "forced"
	ReasonUpdate     Reason = "update"
)

// FlushFunc delivers the session payload. first is true exactly once per
// session: the only call allowed to surface the user-visible confirmation.
type FlushFunc func(reason Reason, first bool)

// Config carries the trigger timings. Zero values get the defaults the
// widget ships with.
type Config struct {
	// MessageThreshold is the message count at which a flush is
	// scheduled (after SettleDelay, to let the final message settle).
	MessageThreshold int
	SettleDelay      time.Duration

	// InactivityMinMessages is the minimum conversation size before the
	// quiet-period timer is armed.
	InactivityMinMessages int
	InactivityQuiet       time.Duration

	// ContinuousUpdate re-flushes after every message, UpdateDelay after
	// the append, without touching the done-flag.
	ContinuousUpdate bool
	UpdateDelay      time.Duration

	Clock Clock
}

func (c *Config) applyDefaults() {
	if c.MessageThreshold == 0 {
		c.MessageThreshold = 6
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.InactivityMinMessages == 0 {
		c.InactivityMinMessages = 2
	}
	if c.InactivityQuiet == 0 {
		c.InactivityQuiet = 30 * time.Second
	}
	if c.UpdateDelay == 0 {
		c.UpdateDelay = 100 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
}

// Controller owns the timers and the done-flag.
type Controller struct {
	cfg   Config
	flush FlushFunc

	mu         sync.Mutex
	submitted  bool
	closed     bool
	inactivity Timer
	settle     Timer
}

func New(cfg Config, flush FlushFunc) *Controller {
	cfg.applyDefaults()
	return &Controller{cfg: cfg, flush: flush}
}

// MessageLogged must be called after every appended message with the new
// message count. It rearms the inactivity timer, schedules the threshold
// flush when the count is reached, and in continuous-update mode
// schedules a lightweight re-flush.
func (c *Controller) MessageLogged(count int) {
	if count == 0 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if c.cfg.ContinuousUpdate {
		c.cfg.Clock.AfterFunc(c.cfg.UpdateDelay, func() {
			c.fire(ReasonUpdate, false)
		})
	}

	if c.submitted {
		c.mu.Unlock()
		return
	}

	// Any new message resets the quiet period.
	if c.inactivity != nil {
		c.inactivity.Stop()
		c.inactivity = nil
	}

	if count >= c.cfg.MessageThreshold {
		if c.settle == nil {
			slog.Info("message threshold reached, scheduling flush",
				"count", count,
				"settle_delay", c.cfg.SettleDelay,
			)
			c.settle = c.cfg.Clock.AfterFunc(c.cfg.SettleDelay, func() {
				c.fire(ReasonThreshold, true)
			})
		}
		c.mu.Unlock()
		return
	}

	if count >= c.cfg.InactivityMinMessages {
		c.inactivity = c.cfg.Clock.AfterFunc(c.cfg.InactivityQuiet, func() {
			c.fire(ReasonInactivity, true)
		})
	}
	c.mu.Unlock()
}

// PageHidden flushes immediately and synchronously when the page is being
// hidden or unloaded. Best-effort: the host compensates by forcing a
// re-submit during its own unload handling.
func (c *Controller) PageHidden(count int) {
	if count == 0 {
		return
	}
	c.fire(ReasonPageHide, true)
}

// ForceFlush is the host's explicit command. It bypasses the done-flag
// for delivery: data is resent even after a completed submission, without
// re-tripping the once-only side effects.
func (c *Controller) ForceFlush(count int) {
	if count == 0 {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	first := !c.submitted
	c.submitted = true
	c.mu.Unlock()

	c.flush(ReasonForced, first)
}

// fire is the funnel for non-forced triggers. The first one in flips the
// done-flag; everything after is a no-op (deterministic precedence when
// threshold and inactivity are both in flight).
func (c *Controller) fire(reason Reason, guarded bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if guarded {
		if c.submitted {
			c.mu.Unlock()
			return
		}
		c.submitted = true
		c.cancelTimersLocked()
		c.mu.Unlock()
		c.flush(reason, true)
		return
	}
	c.mu.Unlock()
	c.flush(reason, false)
}

// Submitted reports the done-flag.
func (c *Controller) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// MarkSubmitted sets the done-flag without flushing. Used when restoring
// a session the host already captured.
func (c *Controller) MarkSubmitted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = true
}

// Reset clears the done-flag and any armed timers. Used on start-fresh
// and when clearing for the next prompt in a sequence.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = false
	c.cancelTimersLocked()
}

// Close cancels all timers. Callbacks that race Close observe the closed
// flag and do nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelTimersLocked()
}

func (c *Controller) cancelTimersLocked() {
	if c.inactivity != nil {
		c.inactivity.Stop()
		c.inactivity = nil
	}
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}
