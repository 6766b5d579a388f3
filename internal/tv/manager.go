// Package tv implements TVManager: the IRC client that joins per-streamer
// TV (streaming-platform) channels, enforces outbound message budgets,
// and owns the channel-join admission/eviction queue (spec §4.7).
package tv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crawlbeem/beem/internal/chatcmd"
	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/ircnet"
	"github.com/crawlbeem/beem/internal/shared"
	"github.com/crawlbeem/beem/internal/userstore"
)

// tickInterval drives admission/eviction sweeps; TV has no lobby feed to
// wait on, so this can run faster than webtiles' scheduler.
const tickInterval = time.Second

// Router mirrors webtiles.Router: the knowledge-bot query dispatch
// capability TV chat needs. Kept as its own narrow interface so tv never
// imports queryrouter directly.
type Router interface {
	Ready() bool
	Route(service string, source chatsource.Source, requester, text string) error
}

// ManagerConfig is the subset of config.Twitch TVManager consults.
type ManagerConfig struct {
	Hostname               string
	Port                   int
	Nick                   string
	Password               string
	MessageLimit           int
	ModeratorMessageLimit  int
	MessageTimeout         time.Duration
	MaxChatIdle            time.Duration
	RequestExpireTime      time.Duration
	MaxWatchedSubscribers  int
	MinIdle                time.Duration
	WatchUser              string // non-empty forces single-channel mode
	NeverWatch             map[string]struct{}
	Admins                 map[string]struct{}
}

func (c ManagerConfig) singleUserMode() bool { return c.WatchUser != "" }

// pendingJoin is one queued channel admission request, spec §4.7's
// per-streamer watch_queue entry.
type pendingJoin struct {
	streamer    string
	requestedAt time.Time
}

// Manager is TVManager.
type Manager struct {
	cfg    ManagerConfig
	client *ircnet.Client
	store  userstore.Store
	cmds   *chatcmd.Engine
	router Router
	budget *messageBudget

	mu       sync.Mutex
	channels map[string]*Channel // keyed by lowercased streamer
	queue    []pendingJoin

	registryMu sync.RWMutex
	registry   map[string]chatsource.Source
}

// NewManager builds a Manager. Call BindCommands once the
// ChatCommandEngine exists (it depends on this Manager as its
// ChannelControl, so the two can't be constructed in one pass), then
// Run to connect and start the admission loop.
func NewManager(cfg ManagerConfig, store userstore.Store, router Router) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		router:   router,
		budget:   newMessageBudget(cfg.MessageLimit, cfg.ModeratorMessageLimit, cfg.MessageTimeout),
		channels: make(map[string]*Channel),
		registry: make(map[string]chatsource.Source),
	}
	m.client = ircnet.New(ircnet.Config{
		Hostname:    cfg.Hostname,
		Port:        cfg.Port,
		Nick:        cfg.Nick,
		Password:    cfg.Password,
		RequestCaps: []string{"twitch.tv/membership"},
	}, ircnet.Handlers{OnPrivmsg: m.onPrivmsg})
	return m
}

// BindCommands wires the ChatCommandEngine that will dispatch inbound
// chat lines.
func (m *Manager) BindCommands(cmds *chatcmd.Engine) { m.cmds = cmds }

// Run connects and services the TV IRC connection and admission loop
// until ctx is canceled. It blocks; callers should run it in its own
// goroutine.
func (m *Manager) Run(ctx context.Context) {
	go m.client.Run(ctx)
	if m.cfg.singleUserMode() {
		_ = m.JoinChannel(m.cfg.WatchUser)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// Resolve implements chatsource.Registry for QueryRouter.
func (m *Manager) Resolve(ident domain.SourceIdent) (chatsource.Source, bool) {
	if ident.Service != "tv" {
		return nil, false
	}
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	src, ok := m.registry[ident.Key]
	return src, ok
}

// JoinChannel implements chatcmd.ChannelControl: enqueue a join request
// for streamer (spec §4.3 "join").
func (m *Manager) JoinChannel(streamer string) error {
	key := strings.ToLower(streamer)
	if _, blocked := m.cfg.NeverWatch[key]; blocked {
		return chatcmd.NewUserError("%s is not watchable", streamer)
	}
	if m.cfg.singleUserMode() && key != strings.ToLower(m.cfg.WatchUser) {
		return chatcmd.NewUserError("this bot only watches %s", m.cfg.WatchUser)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[key]; ok {
		return nil
	}
	for _, p := range m.queue {
		if strings.ToLower(p.streamer) == key {
			return nil
		}
	}
	m.queue = append(m.queue, pendingJoin{streamer: streamer, requestedAt: time.Now()})
	return nil
}

// PartChannel implements chatcmd.ChannelControl: leave streamer's channel
// immediately (spec §4.3 "part").
func (m *Manager) PartChannel(streamer string) error {
	key := strings.ToLower(streamer)
	m.mu.Lock()
	ch, ok := m.channels[key]
	m.mu.Unlock()
	if !ok {
		return chatcmd.NewUserError("not currently watching %s", streamer)
	}
	m.leave(ch)
	return nil
}

// SendToStreamer implements webtiles.TVForwarder: forward a line into the
// channel linked to a WT user's Twitch handle, spec §4.5 "dump".
func (m *Manager) SendToStreamer(handle, message string) error {
	key := strings.ToLower(handle)
	m.mu.Lock()
	ch, ok := m.channels[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: not watching %s", shared.ErrNotFound, handle)
	}
	ch.SendChat(message, chatsource.Normal)
	return nil
}

// Status implements statusweb.Reporter, reporting channel occupancy and
// the number of pending joins.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("channels: %d/%d, queued: %d", len(m.channels), m.cfg.MaxWatchedSubscribers, len(m.queue))
}

func (m *Manager) tick() {
	now := time.Now()
	m.admitQueued(now)
	m.evictExpired(now)
}

// admitQueued implements spec §4.7 "Admission": when a queued channel
// would exceed MaxWatchedSubscribers, evict the most idle existing
// channel whose idle time >= MinIdle; if none qualifies, admission fails
// silently and the entry stays queued for the next tick.
func (m *Manager) admitQueued(now time.Time) {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	next := m.queue[0]
	remaining := append([]pendingJoin{}, m.queue[1:]...)
	full := len(m.channels) >= m.cfg.MaxWatchedSubscribers
	m.mu.Unlock()

	if full {
		victim := m.mostIdleChannel(now)
		if victim == nil {
			return // stays queued; try again next tick
		}
		m.leave(victim)
	}

	m.mu.Lock()
	m.queue = remaining
	m.mu.Unlock()
	m.join(next.streamer, now)
}

func (m *Manager) mostIdleChannel(now time.Time) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	var victim *Channel
	var longest time.Duration
	for _, ch := range m.channels {
		idle := ch.idle(now)
		if idle < m.cfg.MinIdle {
			continue
		}
		if victim == nil || idle > longest {
			victim = ch
			longest = idle
		}
	}
	return victim
}

// evictExpired parts channels that have sat idle past MaxChatIdle.
func (m *Manager) evictExpired(now time.Time) {
	if m.cfg.MaxChatIdle <= 0 {
		return
	}
	m.mu.Lock()
	var stale []*Channel
	for _, ch := range m.channels {
		if ch.idle(now) >= m.cfg.MaxChatIdle {
			stale = append(stale, ch)
		}
	}
	m.mu.Unlock()
	for _, ch := range stale {
		m.leave(ch)
	}
}

func (m *Manager) join(streamer string, now time.Time) {
	key := strings.ToLower(streamer)
	ch := newChannel(m, streamer)
	ch.touch(now)

	m.mu.Lock()
	m.channels[key] = ch
	m.mu.Unlock()
	m.registerSource(ch)

	if !m.consumeBudget(false) {
		slog.Warn("tv: join dropped, message budget exhausted", "channel", streamer)
		return
	}
	m.client.Join("#" + key)
	slog.Info("tv: joined channel", "channel", streamer)
}

func (m *Manager) leave(ch *Channel) {
	key := strings.ToLower(ch.streamer)
	m.mu.Lock()
	delete(m.channels, key)
	m.mu.Unlock()
	m.unregisterSource(ch)

	if m.consumeBudget(false) {
		m.client.Part("#" + key)
	}
	slog.Info("tv: left channel", "channel", ch.streamer)
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()
	for _, ch := range channels {
		m.leave(ch)
	}
}

func (m *Manager) registerSource(ch *Channel) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	m.registry[ch.SourceIdent().Key] = ch
}

func (m *Manager) unregisterSource(ch *Channel) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	delete(m.registry, ch.SourceIdent().Key)
}

func (m *Manager) consumeBudget(moderator bool) bool {
	return m.budget.allow(moderator)
}

func (m *Manager) onPrivmsg(from, target, message string) {
	key := strings.TrimPrefix(strings.ToLower(target), "#")
	m.mu.Lock()
	ch, ok := m.channels[key]
	m.mu.Unlock()
	if !ok || m.cmds == nil {
		return
	}
	ch.touch(time.Now())

	ctx := context.Background()
	reply, isCommand := m.cmds.Handle(ctx, ch, from, message)
	if reply != "" {
		ch.SendChat(reply, chatsource.Normal)
	}
	if isCommand || m.router == nil || !m.router.Ready() {
		return
	}
	if err := m.router.Route("tv", ch, from, message); err != nil {
		slog.Warn("tv: query route failed", "user", from, "error", err)
	}
}
