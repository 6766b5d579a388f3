// Package orchestrator wires QueryRouter, webtiles.Manager, tv.Manager,
// and statusweb together, the way the teacher's cmd/server/main.go wires
// its container manager, terminal sessions, and optional agent gRPC
// client into one process (spec's EXPANDED COMPONENT SPEC,
// internal/orchestrator section).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crawlbeem/beem/internal/chatcmd"
	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/config"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/queryrouter"
	"github.com/crawlbeem/beem/internal/shared"
	"github.com/crawlbeem/beem/internal/statusweb"
	"github.com/crawlbeem/beem/internal/tv"
	"github.com/crawlbeem/beem/internal/userstore"
	"github.com/crawlbeem/beem/internal/webtiles"
)

// sourceRegistry composes the per-service registries into the single
// chatsource.Registry QueryRouter needs, avoiding the ownership cycle
// spec §9 notes between QueryRouter and the service managers: fields are
// populated after construction, once each manager exists.
type sourceRegistry struct {
	wt chatsource.Registry
	tv chatsource.Registry
}

func (r *sourceRegistry) Resolve(ident domain.SourceIdent) (chatsource.Source, bool) {
	if r.wt != nil {
		if src, ok := r.wt.Resolve(ident); ok {
			return src, true
		}
	}
	if r.tv != nil {
		if src, ok := r.tv.Resolve(ident); ok {
			return src, true
		}
	}
	return nil, false
}

// statusBox defers the webtiles status command's Status() source to
// after webtiles.Manager exists, since ChatCommandEngine and the manager
// it backs are mutually referential (the engine is a NewManager
// argument).
type statusBox struct{ mgr *webtiles.Manager }

func (b *statusBox) Status() string {
	if b.mgr == nil {
		return ""
	}
	return b.mgr.Status()
}

const defaultTVHelpText = "commands: !bothelp, !nick, !join, !part"

// Orchestrator owns every long-running component's lifecycle for one
// beem process.
type Orchestrator struct {
	cfg   *config.Config
	store *userstore.SQLiteStore

	router   *queryrouter.Router
	wt       *webtiles.Manager
	tvMgr    *tv.Manager
	statusSv *statusweb.Server

	fatalMu sync.Mutex
	fatal   chan string
}

// New builds every configured component. It does not start anything;
// call Run to start and block until ctx is canceled.
func New(cfg *config.Config) (*Orchestrator, error) {
	store, err := userstore.NewSQLite(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	if err := store.Load(context.Background()); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:   cfg,
		store: store,
		fatal: make(chan string, 1),
	}

	reg := &sourceRegistry{}
	router, err := queryrouter.New(cfg.DCSS, reg, o.requestShutdown)
	if err != nil {
		return nil, err
	}
	o.router = router

	var tvMgr *tv.Manager
	if cfg.TwitchEnabled {
		tvMgr = tv.NewManager(tvManagerConfig(cfg.Twitch), store, router)
		reg.tv = tvMgr
		o.tvMgr = tvMgr
	}

	var wtMgr *webtiles.Manager
	if cfg.WebtilesEnabled {
		var forwarder webtiles.TVForwarder
		if tvMgr != nil {
			forwarder = tvMgr
		}
		box := &statusBox{}
		cmds := chatcmd.New(chatcmd.Config{
			SingleUserMode: cfg.Webtiles.SingleUserMode(),
		}, chatcmd.Builtins(chatcmd.Deps{
			Store:    store,
			HelpText: cfg.Webtiles.HelpText,
			Channels: channelControl(tvMgr),
			Status:   box,
		}), chatcmd.RateLimit{Period: cfg.Webtiles.CommandPeriod, Limit: cfg.Webtiles.CommandLimit})

		wtMgr = webtiles.NewManager(wtManagerConfig(cfg.Webtiles), store, cmds, router, forwarder, o.requestShutdown)
		box.mgr = wtMgr
		reg.wt = wtMgr
		o.wt = wtMgr

		if tvMgr != nil {
			tvMgr.BindCommands(cmds)
		}
	} else if tvMgr != nil {
		cmds := chatcmd.New(chatcmd.Config{}, chatcmd.Builtins(chatcmd.Deps{
			Store:    store,
			HelpText: defaultTVHelpText,
			Channels: channelControl(tvMgr),
			Status:   tvStatusReporter(tvMgr),
		}), chatcmd.RateLimit{})
		tvMgr.BindCommands(cmds)
	}

	if cfg.WebtilesEnabled && cfg.Webtiles.StatusAddr != "" {
		o.statusSv = statusweb.New(cfg.Webtiles.StatusAddr, wtStatusReporter(wtMgr), tvStatusReporter(tvMgr))
	}

	return o, nil
}

// channelControl adapts a possibly-nil *tv.Manager to chatcmd.ChannelControl
// without leaking a non-nil interface holding a nil pointer.
func channelControl(m *tv.Manager) chatcmd.ChannelControl {
	if m == nil {
		return nil
	}
	return m
}

// wtStatusReporter/tvStatusReporter adapt a possibly-nil concrete manager
// pointer to an interface value, taking care to return a true nil
// interface (not a non-nil interface wrapping a nil pointer) when the
// manager was never constructed.
func wtStatusReporter(m *webtiles.Manager) statusweb.Reporter {
	if m == nil {
		return nil
	}
	return m
}

func tvStatusReporter(m *tv.Manager) statusweb.Reporter {
	if m == nil {
		return nil
	}
	return m
}

func wtManagerConfig(w config.Webtiles) webtiles.ManagerConfig {
	return webtiles.ManagerConfig{
		ServerURL:              w.ServerURL,
		ProtocolVersion:        w.ProtocolVersion,
		BotUsername:            w.Username,
		BotPassword:            w.Password,
		HelpText:               w.HelpText,
		GreetingText:           w.GreetingText,
		TwitchReminderText:     w.TwitchReminderText,
		TwitchReminderPeriod:   w.TwitchReminderPeriod,
		MaxWatchedSubscribers:  w.MaxWatchedSubscribers,
		MaxGameIdle:            w.MaxGameIdle,
		GameRewatchTimeout:     w.GameRewatchTimeout,
		AutowatchEnabled:       w.AutowatchEnabled,
		MinAutowatchSpectators: w.MinAutowatchSpectators,
		NeverWatch:             toSet(w.NeverWatch),
		Admins:                 toSet(w.Admins),
		WatchUsername:          w.WatchUsername,
	}
}

func tvManagerConfig(t config.Twitch) tv.ManagerConfig {
	return tv.ManagerConfig{
		Hostname:              t.Hostname,
		Port:                  t.Port,
		Nick:                  t.Nick,
		Password:              t.Password,
		MessageLimit:          t.MessageLimit,
		ModeratorMessageLimit: t.ModeratorMessageLimit,
		MessageTimeout:        t.MessageTimeout,
		MaxChatIdle:           t.MaxChatIdle,
		RequestExpireTime:     t.RequestExpireTime,
		MaxWatchedSubscribers: t.MaxWatchedSubscribers,
		MinIdle:               t.MinIdle,
		WatchUser:             t.WatchUser,
		NeverWatch:            toSet(t.NeverWatch),
		Admins:                toSet(t.Admins),
	}
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[strings.ToLower(v)] = struct{}{}
	}
	return out
}

func (o *Orchestrator) requestShutdown(reason string) {
	o.fatalMu.Lock()
	defer o.fatalMu.Unlock()
	select {
	case o.fatal <- reason:
	default:
	}
}

// Run starts every configured component and blocks until ctx is
// canceled or a component reports a fatal condition (e.g. knowledge-bot
// SASL auth failure, spec §7). Shutdown cancels one context shared by all
// children and then waits up to 10s for all of them together; no order is
// imposed among the children.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.router.Run(runCtx)
	}()

	if o.wt != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.wt.Run(runCtx)
		}()
	}
	if o.tvMgr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.tvMgr.Run(runCtx)
		}()
	}
	if o.statusSv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.statusSv.Run(runCtx); err != nil {
				slog.Error("orchestrator: status server failed", "error", err)
			}
		}()
	}

	var fatalReason string
	select {
	case <-ctx.Done():
	case fatalReason = <-o.fatal:
		slog.Error("orchestrator: fatal condition, shutting down", "reason", fatalReason)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("orchestrator: shutdown timed out waiting for components")
	}

	if closeErr := o.store.Close(); closeErr != nil {
		slog.Error("orchestrator: failed to close user store", "error", closeErr)
	}

	if fatalReason != "" {
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, fatalReason)
	}
	return nil
}
