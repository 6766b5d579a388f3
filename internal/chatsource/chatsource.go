// Package chatsource declares the capability every chat origin (a WT game
// session or a TV channel) must provide so ChatCommandEngine and
// QueryRouter can address either uniformly, per spec §9's "class
// hierarchy" design note: express the shared behavior as a small
// capability set rather than a base class, with independent WT/TV
// implementations.
package chatsource

import "github.com/crawlbeem/beem/internal/domain"

// Kind selects how a chat line should be rendered by the destination
// service (e.g. WT prefixes actions differently than TV does).
type Kind int

const (
	// Normal is a plain chat line.
	Normal Kind = iota
	// Action is an emote/action line (the "/me " form).
	Action
	// Monster is a monster-lookup reply.
	Monster
	// Repo is a source-repo lookup reply.
	Repo
)

// Source is the capability set spec §3 calls ChatSource: send_chat,
// describe, get_source_ident, get_dcss_nick, get_chat_dcss_nicks.
type Source interface {
	// SendChat delivers message to the originating chat channel/session.
	SendChat(message string, kind Kind)

	// Describe returns a short human-readable identifier for logging.
	Describe() string

	// SourceIdent returns the opaque handle QueryRouter rounds-trips back
	// through the owning manager to re-resolve this source later.
	SourceIdent() domain.SourceIdent

	// DCSSNick returns the DCSS nick of the named chat user, used to
	// resolve the $p substitution (the watched player's nick).
	DCSSNick(user string) string

	// ChatDCSSNicks returns the set of DCSS nicks of users currently
	// present in this source's chat, used to resolve the $chat
	// substitution. The requester is included if resolvable.
	ChatDCSSNicks(requester string) []string

	// WatchedPlayer returns the DCSS username this source is centered on
	// (the watched game's player for WT, the linked player for TV),
	// used to resolve the $p substitution.
	WatchedPlayer() string

	// BotLogin is the chat login name this bot itself uses on this
	// source, so ChatCommandEngine can ignore its own lines.
	BotLogin() string

	// IsDisallowedUser reports whether name is excluded from this
	// source's chat entirely (e.g. a configured ignore list), independent
	// of the never_watch denylist.
	IsDisallowedUser(name string) bool

	// IsAdmin reports whether name holds admin privileges on this
	// source.
	IsAdmin(name string) bool
}

// Registry resolves a domain.SourceIdent back to a live Source, owned by
// the top-level orchestrator per spec §9's "index/handle" design note —
// this avoids an ownership cycle between QueryRouter and the per-service
// managers.
type Registry interface {
	Resolve(ident domain.SourceIdent) (Source, bool)
}
