// Package queryrouter owns the IRC connection to the knowledge-bot
// network, the per-bot query ID tables, and the reply demultiplexer
// (spec §4.2).
package queryrouter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/config"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/ircnet"
	"github.com/crawlbeem/beem/internal/shared"
)

var errQueueFull = fmt.Errorf("%w: no free query id", shared.ErrQueueFull)

// ShutdownRequester is invoked when the knowledge-bot connection's
// authentication fails (SASL 904), which spec §7 treats as fatal.
type ShutdownRequester func(reason string)

// Router is the QueryRouter of spec §4.2.
type Router struct {
	client      *ircnet.Client
	bots        []*bot
	botsByNick  map[string]*bot
	badPatterns []*regexp.Regexp
	registry    chatsource.Registry
	requestStop ShutdownRequester
}

// New builds a Router from the dcss config table. requestStop is called
// on SASL failure; registry resolves a query's originating chat source.
func New(cfg config.DCSS, registry chatsource.Registry, requestStop ShutdownRequester) (*Router, error) {
	bad := make([]*regexp.Regexp, 0, len(cfg.BadPatterns))
	for _, p := range cfg.BadPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad_patterns %q: %w", shared.ErrConfigInvalid, p, err)
		}
		bad = append(bad, re)
	}

	r := &Router{
		botsByNick:  make(map[string]*bot),
		badPatterns: bad,
		registry:    registry,
		requestStop: requestStop,
	}

	for _, bc := range cfg.Bots {
		wt, err := compileAll(bc.WTPatterns)
		if err != nil {
			return nil, err
		}
		tv, err := compileAll(bc.TVPatterns)
		if err != nil {
			return nil, err
		}
		b := newBot(bc.Nick, bc.Primary, queryKind(bc.Kind), wt, tv)
		r.bots = append(r.bots, b)
		r.botsByNick[strings.ToLower(bc.Nick)] = b
	}

	r.client = ircnet.New(ircnet.Config{
		Hostname: cfg.Hostname,
		Port:     cfg.Port,
		Nick:     cfg.Nick,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
	}, ircnet.Handlers{
		OnPrivmsg:       r.onPrivmsg,
		OnAuthFailed:    r.onAuthFailed,
		OnAuthenticated: func() { slog.Info("queryrouter: authenticated to dcss network") },
	})

	return r, nil
}

// queryKind maps a bot's configured service name to the QueryKind its
// replies are delivered with.
func queryKind(name string) domain.QueryKind {
	switch name {
	case "monster":
		return domain.QueryMonster
	case "repo":
		return domain.QueryRepo
	default:
		return domain.QueryNormal
	}
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %w", shared.ErrConfigInvalid, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Run connects and services the knowledge-bot IRC connection until ctx is
// canceled.
func (r *Router) Run(ctx context.Context) {
	r.client.Run(ctx)
}

// Ready reports whether the router has completed connection/auth and may
// accept new queries.
func (r *Router) Ready() bool {
	return r.client.Ready()
}

func (r *Router) onAuthFailed(reason string) {
	slog.Error("queryrouter: SASL authentication failed", "reason", reason)
	if r.requestStop != nil {
		r.requestStop("dcss SASL authentication failed: " + reason)
	}
}

// Route dispatches a chat-recognized knowledge-bot query on behalf of
// requester, from source, to whichever configured bot's patterns match
// first in table order. Messages matching any bad pattern are ignored
// before the scan (spec §4.2 "Bot dispatch").
func (r *Router) Route(service string, source chatsource.Source, requester, text string) error {
	for _, bad := range r.badPatterns {
		if bad.MatchString(text) {
			return nil
		}
	}

	for _, b := range r.bots {
		if b.matches(service, text) {
			return r.sendQuery(b, source.SourceIdent(), requester, text, b.kind, "")
		}
	}
	return nil
}

// sendQuery allocates an id on b and sends text to it, attributing the
// reply to ident. The originating chatsource.Source is re-resolved through
// the registry (rather than threaded through directly) so bot-to-bot
// relayed queries, which only ever carry an ident, share this one path.
// correlationID, if non-empty, is carried over from the query this one
// relays from; a fresh one is minted otherwise, so every log line for one
// requester round trip (including any bot-to-bot hops) can be grepped by
// the same id regardless of how many times the public wire id is reused.
func (r *Router) sendQuery(b *bot, ident domain.SourceIdent, requester, text string, kind domain.QueryKind, correlationID string) error {
	now := time.Now()
	id, err := b.allocateID(now)
	if err != nil {
		slog.Warn("queryrouter: id allocation failed", "bot", b.nick, "error", err)
		return err
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	entry := &domain.QueryEntry{
		ID:            id,
		Requester:     requester,
		Source:        ident,
		SubmitTime:    now,
		Kind:          kind,
		CorrelationID: correlationID,
	}

	query := text
	if source, ok := r.registry.Resolve(ident); ok {
		query = substitute(text, source, requester)
	}

	var wire string
	if b.primary {
		b.queries[id] = entry
		wire = buildRelay(requester, id, query)
	} else {
		b.queries[id] = entry
		b.queue = append(b.queue, id)
		wire = query
	}

	slog.Info("queryrouter: sending query", "bot", b.nick, "id", id, "requester", requester, "correlation_id", correlationID)
	r.client.Privmsg(b.nick, wire)
	return nil
}

func (r *Router) onPrivmsg(from, target, message string) {
	b, ok := r.botsByNick[strings.ToLower(from)]
	if !ok {
		return
	}
	message = stripControlSequences(message)
	r.handleBotReply(b, message)
}
