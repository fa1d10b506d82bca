package widget

import (
	"sync"
	"time"

	"github.com/kapa-moon/creativity-ai/internal/trigger"
)

// defaultNudges is the rotating pool of creativity nudges.
var defaultNudges = []string{
	"Try combining two unrelated ideas.",
	"What would the opposite approach look like?",
	"Imagine explaining this to a five-year-old.",
	"What constraint could you remove?",
	"Borrow a solution from a different field.",
}

const (
	nudgeInterval = 10 * time.Second
	nudgeAutoHide = 8 * time.Second
)

// Nudger rotates through the pool on an interval and auto-hides each
// nudge after a shorter delay. Show and dismiss events are recorded on
// the controller; a manual dismissal stops the pending auto-hide.
type Nudger struct {
	ctrl  *Controller
	clock trigger.Clock
	pool  []string

	mu       sync.Mutex
	next     int
	current  string
	visible  bool
	stopped  bool
	rotate   trigger.Timer
	autoHide trigger.Timer
}

// NewNudger builds a nudger. A nil pool gets the default set; a nil
// clock gets the wall clock.
func NewNudger(ctrl *Controller, pool []string, clock trigger.Clock) *Nudger {
	if pool == nil {
		pool = defaultNudges
	}
	if clock == nil {
		clock = trigger.RealClock()
	}
	return &Nudger{ctrl: ctrl, clock: clock, pool: pool}
}

// Start arms the first rotation.
func (n *Nudger) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.rotate != nil {
		return
	}
	n.rotate = n.clock.AfterFunc(nudgeInterval, n.show)
}

// minMessages gates nudges until the conversation has warmed up.
const minMessages = 2

func (n *Nudger) show() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	if n.ctrl.log.MessageCount() <= minMessages {
		n.rotate = n.clock.AfterFunc(nudgeInterval, n.show)
		n.mu.Unlock()
		return
	}
	text := n.pool[n.next%len(n.pool)]
	n.next++
	n.current = text
	n.visible = true
	n.autoHide = n.clock.AfterFunc(nudgeAutoHide, func() { n.hide(false) })
	n.rotate = n.clock.AfterFunc(nudgeInterval, n.show)
	n.mu.Unlock()

	n.ctrl.NudgeShown(text)
}

// Dismiss hides the current nudge at the participant's request.
func (n *Nudger) Dismiss() {
	n.hide(true)
}

// Current returns the visible nudge text, empty when none is showing.
func (n *Nudger) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.visible {
		return ""
	}
	return n.current
}

func (n *Nudger) hide(manual bool) {
	n.mu.Lock()
	if n.stopped || !n.visible {
		n.mu.Unlock()
		return
	}
	text := n.current
	n.visible = false
	if manual && n.autoHide != nil {
		n.autoHide.Stop()
		n.autoHide = nil
	}
	n.mu.Unlock()

	if manual {
		n.ctrl.NudgeDismissed(text)
	}
}

// Stop cancels rotation and any pending auto-hide.
func (n *Nudger) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	if n.rotate != nil {
		n.rotate.Stop()
		n.rotate = nil
	}
	if n.autoHide != nil {
		n.autoHide.Stop()
		n.autoHide = nil
	}
}
