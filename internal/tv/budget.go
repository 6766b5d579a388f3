package tv

import (
	"sync"
	"time"
)

// messageBudget enforces spec §4.7's two-tier outbound message budget:
// every join/part/privmsg/action consumes one unit; once any
// non-moderator message has been sent in the current window, the lower
// normal limit applies to everything until the window clears. Unlike the
// smooth token refill chatcmd uses (golang.org/x/time/rate), the budget
// has a hard reset on timeout rather than a continuous rate, so it is
// hand-rolled (SPEC_FULL.md DOMAIN STACK).
type messageBudget struct {
	normalLimit    int
	moderatorLimit int
	timeout        time.Duration

	mu          sync.Mutex
	count       int
	sentNormal  bool
	lastMessage time.Time
}

func newMessageBudget(normalLimit, moderatorLimit int, timeout time.Duration) *messageBudget {
	return &messageBudget{normalLimit: normalLimit, moderatorLimit: moderatorLimit, timeout: timeout}
}

// allow reports whether one more message may be sent right now, and if
// so, consumes a unit. moderator indicates the message originates from a
// moderated (higher-budget) channel.
func (b *messageBudget) allow(moderator bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if !b.lastMessage.IsZero() && now.Sub(b.lastMessage) > b.timeout {
		b.count = 0
		b.sentNormal = false
	}

	limit := b.normalLimit
	if moderator && !b.sentNormal {
		limit = b.moderatorLimit
	}
	if b.count >= limit {
		return false
	}

	b.count++
	b.lastMessage = now
	if !moderator {
		b.sentNormal = true
	}
	return true
}
