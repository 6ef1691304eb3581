package transfer

import (
	"sync"
	"time"
)

// DefaultNoticeDuration is how long a notice stays visible.
const DefaultNoticeDuration = 10 * time.Second

// Notice holds the status message shown after a transfer. Each Show
// replaces the current message and arms a timer that clears it. Close stops
// the timer; a closed Notice ignores further calls.
type Notice struct {
	mu       sync.Mutex
	duration time.Duration
	status   string
	shownAt  time.Time
	timer    *time.Timer
	seq      uint64
	closed   bool
}

// NoticeView is a snapshot of a Notice.
type NoticeView struct {
	Visible bool      `json:"visible"`
	Status  string    `json:"status,omitempty"`
	ShownAt time.Time `json:"shown_at,omitzero"`
}

// NewNotice creates a Notice that clears after d. Zero selects
// DefaultNoticeDuration.
func NewNotice(d time.Duration) *Notice {
	if d <= 0 {
		d = DefaultNoticeDuration
	}
	return &Notice{duration: d}
}

// Show displays status and restarts the clear timer.
func (n *Notice) Show(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.seq++
	seq := n.seq
	n.status = status
	n.shownAt = time.Now()
	n.timer = time.AfterFunc(n.duration, func() { n.expire(seq) })
}

// expire clears the notice unless a newer one replaced it. A stopped timer
// may still fire once, so the sequence number is checked.
func (n *Notice) expire(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || seq != n.seq {
		return
	}
	n.status = ""
	n.shownAt = time.Time{}
	n.timer = nil
}

// Clear hides the notice immediately.
func (n *Notice) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clearLocked()
}

func (n *Notice) clearLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.seq++
	n.status = ""
	n.shownAt = time.Time{}
}

// View returns the current notice.
func (n *Notice) View() NoticeView {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NoticeView{Visible: n.status != "", Status: n.status, ShownAt: n.shownAt}
}

// Close cancels any pending timer and clears the notice.
func (n *Notice) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clearLocked()
	n.closed = true
}
