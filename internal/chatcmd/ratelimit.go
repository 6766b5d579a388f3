package chatcmd

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crawlbeem/beem/internal/chatsource"
)

// RateLimit is spec §6's command_period/command_limit pair: at most Limit
// commands from a non-admin user per Period.
type RateLimit struct {
	Period time.Duration
	Limit  int
}

// limiter holds one golang.org/x/time/rate.Limiter per (source, user) key,
// spec §4.3 step 6. A command that fails parsing still consumes a token,
// since Handle calls exceeded before validating arguments.
type limiter struct {
	cfg RateLimit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiter(cfg RateLimit) *limiter {
	return &limiter{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (l *limiter) exceeded(source chatsource.Source, user string) bool {
	if l.cfg.Limit <= 0 || l.cfg.Period <= 0 {
		return false
	}

	key := strings.ToLower(source.SourceIdent().Service + "\x00" + source.SourceIdent().Key + "\x00" + user)

	l.mu.Lock()
	rl, ok := l.limiters[key]
	if !ok {
		// A burst of Limit tokens refilling once per Period approximates
		// spec §4.3's rolling "command_limit per command_period" window.
		rl = rate.NewLimiter(rate.Limit(float64(l.cfg.Limit)/l.cfg.Period.Seconds()), l.cfg.Limit)
		l.limiters[key] = rl
	}
	l.mu.Unlock()

	return !rl.Allow()
}
