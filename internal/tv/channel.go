package tv

import (
	"strings"
	"sync"
	"time"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/userstore"
)

// Channel is one joined TV (streaming-platform) chat, spec §4.7's
// per-streamer live channel and a chatsource.Source.
type Channel struct {
	manager  *Manager
	streamer string // display-case streamer/channel name

	mu           sync.Mutex
	joinedAt     time.Time
	lastActivity time.Time
	isModerator  bool
}

func newChannel(m *Manager, streamer string) *Channel {
	now := time.Now()
	return &Channel{manager: m, streamer: streamer, joinedAt: now, lastActivity: now}
}

func (c *Channel) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *Channel) idle(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

var _ chatsource.Source = (*Channel)(nil)

// SendChat implements spec §4.7 "Outbound chat": a leading "." or "/" is
// prefixed with a space to neutralize server-side command interpretation,
// and a leading "!" is escaped with "]" the same way
// webtiles.GameSession's send_chat does (spec §8's "never transmits a raw
// payload beginning with !" invariant).
func (c *Channel) SendChat(message string, kind chatsource.Kind) {
	text := escapeOutbound(message)
	if kind == chatsource.Action {
		text = "/me " + text
	}

	c.mu.Lock()
	moderator := c.isModerator
	c.mu.Unlock()
	if !c.manager.consumeBudget(moderator) {
		return
	}
	c.manager.client.Privmsg("#"+strings.ToLower(c.streamer), text)
}

func escapeOutbound(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '.', '/':
		return " " + s
	case '!':
		return "]" + s
	default:
		return s
	}
}

// Describe returns a short identifier for logging.
func (c *Channel) Describe() string { return "tv:" + c.streamer }

// SourceIdent returns the opaque handle QueryRouter round-trips back to
// resolve this channel later.
func (c *Channel) SourceIdent() domain.SourceIdent {
	return domain.SourceIdent{Service: "tv", Key: strings.ToLower(c.streamer)}
}

// DCSSNick resolves a TV chat username to the DCSS nick they've linked via
// the "nick" command.
func (c *Channel) DCSSNick(user string) string {
	u, ok := userstore.GetTVUser(c.manager.store, user)
	if !ok || u.Nick == "" {
		return user
	}
	return u.Nick
}

// ChatDCSSNicks has no cheap full-membership nick list on TV (unlike WT,
// which observes chatters directly); it resolves just the requester,
// still satisfying the $chat substitution's "@u1|@u2|..." shape for the
// single-entry case.
func (c *Channel) ChatDCSSNicks(requester string) []string {
	return []string{c.DCSSNick(requester)}
}

// WatchedPlayer resolves the WT player linked to this channel's streamer
// handle, if any (spec §4.5's "dump" forwarding runs this in reverse).
func (c *Channel) WatchedPlayer() string {
	u, ok := userstore.FindWTUserByTwitchUsername(c.manager.store, c.streamer)
	if !ok {
		return ""
	}
	return u.Name
}

// BotLogin returns the bot's own TV login name.
func (c *Channel) BotLogin() string { return c.manager.cfg.Nick }

// IsDisallowedUser reports whether name is excluded from this channel's
// chat. TV carries no per-channel ignore list beyond the bot's own login.
func (c *Channel) IsDisallowedUser(name string) bool { return false }

// IsAdmin reports whether name is a configured TV admin.
func (c *Channel) IsAdmin(name string) bool {
	_, ok := c.manager.cfg.Admins[strings.ToLower(name)]
	return ok
}
