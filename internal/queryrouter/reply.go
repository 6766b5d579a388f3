package queryrouter

import (
	"log/slog"
	"strings"
	"time"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
)

const actionPrefix = "/me "

// handleBotReply demultiplexes one already-control-stripped reply line from
// b back to the chat source that issued the matching query, per spec §4.2
// "Reply demultiplexing".
//
// The primary bot echoes back the caller-supplied prefix as the reply's
// first token ("<id>: <text>" or "<id> <text>"); every other bot is matched
// strictly in FIFO order against its queue.
func (r *Router) handleBotReply(b *bot, message string) {
	var id, body string
	var ok bool

	if b.primary {
		id, body, ok = splitPrefix(message)
	} else {
		id, ok = b.dequeue()
		body = message
	}
	if !ok {
		r.deliverStray(b, message)
		return
	}

	entry, found := b.queries[id]
	if !found {
		r.deliverStray(b, message)
		return
	}
	delete(b.queries, id)

	now := time.Now()
	if entry.Stale(now, b.maxRequestTime()) {
		slog.Debug("queryrouter: dropping reply to stale query", "bot", b.nick, "id", id, "correlation_id", entry.CorrelationID)
		return
	}
	b.lastAnswered = entry

	if b.primary && r.relayToSecondary(b, entry, body) {
		return
	}

	r.deliver(entry, body)
}

// splitPrefix pulls the leading "<id>: " or "<id> " token the primary bot
// echoes from its !RELAY -prefix argument.
func splitPrefix(message string) (id, body string, ok bool) {
	message = strings.TrimSpace(message)
	sep := strings.IndexAny(message, " :")
	if sep <= 0 {
		return "", "", false
	}
	id = message[:sep]
	rest := strings.TrimSpace(message[sep+1:])
	rest = strings.TrimPrefix(rest, ":")
	return id, strings.TrimSpace(rest), true
}

// dequeue pops the oldest outstanding id for a non-primary bot; such bots
// cannot echo a caller prefix, so replies are matched strictly FIFO.
func (b *bot) dequeue() (id string, ok bool) {
	if len(b.queue) == 0 {
		return "", false
	}
	id = b.queue[0]
	b.queue = b.queue[1:]
	return id, true
}

// relayToSecondary detects a primary bot reply that is itself a query meant
// for another configured bot (bot-to-bot relaying, spec §4.2) and re-routes
// it. It reports whether the reply was consumed this way.
func (r *Router) relayToSecondary(origin *bot, entry *domain.QueryEntry, body string) bool {
	for _, candidate := range r.bots {
		if candidate == origin {
			continue
		}
		if candidate.matches(entry.Source.Service, body) {
			if err := r.sendQuery(candidate, entry.Source, entry.Requester, body, candidate.kind, entry.CorrelationID); err != nil {
				slog.Warn("queryrouter: bot-to-bot relay failed", "from", origin.nick, "to", candidate.nick, "error", err, "correlation_id", entry.CorrelationID)
			}
			return true
		}
	}
	return false
}

// deliverStray routes a reply line that matched no outstanding query id
// (e.g. a trailing line of a multi-line reply, sent after its id was
// already consumed) to the source of b's most recently answered query,
// per spec §4.2's "last_answered" fallback. With nothing to fall back to,
// the line is dropped.
func (r *Router) deliverStray(b *bot, message string) {
	if b.lastAnswered == nil {
		slog.Debug("queryrouter: reply did not match an outstanding query", "bot", b.nick)
		return
	}
	r.deliver(b.lastAnswered, message)
}

// deliver sends a resolved reply body to its originating chat source.
func (r *Router) deliver(entry *domain.QueryEntry, body string) {
	source, ok := r.registry.Resolve(entry.Source)
	if !ok {
		slog.Debug("queryrouter: source no longer resolvable", "service", entry.Source.Service, "key", entry.Source.Key, "correlation_id", entry.CorrelationID)
		return
	}

	kind := chatsource.Normal
	if rest, isAction := trimAction(body); isAction {
		body = rest
		kind = chatsource.Action
	} else {
		switch entry.Kind {
		case domain.QueryMonster:
			kind = chatsource.Monster
		case domain.QueryRepo:
			kind = chatsource.Repo
		}
	}

	source.SendChat(body, kind)
}

func trimAction(s string) (string, bool) {
	if strings.HasPrefix(strings.ToLower(s), actionPrefix) {
		return strings.TrimSpace(s[len(actionPrefix):]), true
	}
	return s, false
}
