package queryrouter

import (
	"regexp"
	"time"

	"github.com/crawlbeem/beem/internal/domain"
)

// idAlphabet is the 62-character ID space [A-Za-z0-9] used for bots
// accessed through the primary (prefix-echoing) bot, per spec §4.2. The
// Open Question in spec §9(a) about a 2-digit-vs-single-char scheme is
// resolved in favor of this, the more recent scheme.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxRequestTimePrimary and maxRequestTimeSecondary are spec §4.2 /
// §5's MAX_REQUEST_TIME: an id is reclaimable once its QueryEntry is
// older than this.
const (
	maxRequestTimePrimary   = 100 * time.Second
	maxRequestTimeSecondary = 80 * time.Second
)

// bot is one knowledge bot reachable on the dcss IRC network.
type bot struct {
	nick    string
	primary bool             // echoes a caller-supplied prefix; uses the 62-char id space
	kind    domain.QueryKind // service this bot answers, for reply kind=

	wtPatterns []*regexp.Regexp
	tvPatterns []*regexp.Regexp

	queries map[string]*domain.QueryEntry
	queue   []string // FIFO of ids, for bots that can't echo a prefix

	// lastAnswered is the most recently delivered query on this bot; a
	// stray reply line that matches no outstanding id (spec §4.2) is
	// attributed to it rather than dropped.
	lastAnswered *domain.QueryEntry
}

func newBot(nick string, primary bool, kind domain.QueryKind, wtPatterns, tvPatterns []*regexp.Regexp) *bot {
	return &bot{
		nick:       nick,
		primary:    primary,
		kind:       kind,
		wtPatterns: wtPatterns,
		tvPatterns: tvPatterns,
		queries:    make(map[string]*domain.QueryEntry),
	}
}

func (b *bot) maxRequestTime() time.Duration {
	if b.primary {
		return maxRequestTimePrimary
	}
	return maxRequestTimeSecondary
}

// allocateID does a linear scan over the bot's id space and reuses the
// first free-or-stale slot. Every component method that touches bot state
// runs on the router's single event-loop goroutine, so no lock is needed
// around the map itself (spec §5); this function assumes that discipline.
func (b *bot) allocateID(now time.Time) (string, error) {
	if b.primary {
		for i := 0; i < len(idAlphabet); i++ {
			id := string(idAlphabet[i])
			if b.slotFree(id, now) {
				return id, nil
			}
		}
		return "", errQueueFull
	}

	for i := 0; i < 100; i++ {
		id := decimalID(i)
		if b.slotFree(id, now) {
			return id, nil
		}
	}
	return "", errQueueFull
}

func (b *bot) slotFree(id string, now time.Time) bool {
	entry, ok := b.queries[id]
	if !ok {
		return true
	}
	return entry.Stale(now, b.maxRequestTime())
}

func decimalID(i int) string {
	digits := "0123456789"
	return string([]byte{digits[i/10], digits[i%10]})
}

// matches reports whether text matches any of the bot's declared patterns
// for the given service ("wt" or "tv"), first match wins per spec §4.2
// "Bot dispatch".
func (b *bot) matches(service, text string) bool {
	patterns := b.wtPatterns
	if service == "tv" {
		patterns = b.tvPatterns
	}
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
