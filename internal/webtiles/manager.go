package webtiles

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
	"github.com/crawlbeem/beem/internal/userstore"
)

// tickInterval is the scheduler cadence of spec §4.6: "on every scheduler
// tick (≤2 Hz)".
const tickInterval = 750 * time.Millisecond

// rewatchWait is spec §5's REWATCH_WAIT: the cooldown after a session
// ends before the same (username, game) pair may be re-opened.
const rewatchWait = 5 * time.Second

// ManagerConfig is the subset of config.Webtiles the scheduler consults.
type ManagerConfig struct {
	ServerURL              string
	ProtocolVersion        string
	BotUsername            string
	BotPassword            string
	HelpText               string
	GreetingText           string
	TwitchReminderText     string
	TwitchReminderPeriod   time.Duration
	MaxWatchedSubscribers  int
	MaxGameIdle            time.Duration
	GameRewatchTimeout     time.Duration
	AutowatchEnabled       bool
	MinAutowatchSpectators int
	NeverWatch             map[string]struct{}
	Admins                 map[string]struct{}
	WatchUsername          string // non-empty forces single-user mode
}

func (c ManagerConfig) singleUserMode() bool { return c.WatchUsername != "" }

func (c ManagerConfig) sessionConfig() SessionConfig {
	return SessionConfig{
		ServerURL:            c.ServerURL,
		ProtocolVersion:      c.ProtocolVersion,
		BotUsername:          c.BotUsername,
		BotPassword:          c.BotPassword,
		HelpText:             c.HelpText,
		GreetingText:         c.GreetingText,
		TwitchReminderText:   c.TwitchReminderText,
		TwitchReminderPeriod: c.TwitchReminderPeriod,
		Admins:               c.Admins,
	}
}

// watchedSession pairs a running GameSession with the cancellation handle
// for its Run goroutine.
type watchedSession struct {
	session *GameSession
	cancel  context.CancelFunc
}

// Manager is WTManager, the watch scheduler of spec §4.6: it reconciles
// the live lobby table against policy and drives creation/destruction of
// GameSessions.
type Manager struct {
	cfg    ManagerConfig
	lobby  *Lobby
	router Router
	store  userstore.Store
	cmds   *chatcmd.Engine
	tv     TVForwarder

	mu          sync.Mutex
	autowatch   *watchedSession
	connections map[string]*watchedSession // keyed by (username,gameID), len <= MaxWatchedSubscribers
	watchQueue  []domain.WatchQueueEntry

	registryMu sync.RWMutex
	registry   map[string]chatsource.Source // SourceIdent.Key -> live session, mirrors connections+autowatch
}

// NewManager builds a Manager. Call Run to start the lobby feed and the
// scheduler loop. requestStop is forwarded to the lobby connection and
// called once if its login fails (spec §4.4/§7).
func NewManager(cfg ManagerConfig, store userstore.Store, cmds *chatcmd.Engine, router Router, tv TVForwarder, requestStop ShutdownRequester) *Manager {
	return &Manager{
		cfg:         cfg,
		lobby:       NewLobby(cfg.ServerURL, cfg.ProtocolVersion, cfg.BotUsername, cfg.BotPassword, requestStop),
		router:      router,
		store:       store,
		cmds:        cmds,
		tv:          tv,
		connections: make(map[string]*watchedSession),
		registry:    make(map[string]chatsource.Source),
	}
}

// Run starts the lobby feed and ticks the scheduler until ctx is
// canceled. It blocks; callers should run it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	go m.lobby.Run(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Resolve implements chatsource.Registry for QueryRouter, looking up a
// live GameSession by the SourceIdent it was issued.
func (m *Manager) Resolve(ident domain.SourceIdent) (chatsource.Source, bool) {
	if ident.Service != "wt" {
		return nil, false
	}
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	src, ok := m.registry[ident.Key]
	return src, ok
}

// Status implements chatcmd's StatusReporter for the "status" admin
// command (spec §4.3).
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	autowatch := "none"
	if m.autowatch != nil {
		autowatch = m.autowatch.session.Describe()
	}
	return fmt.Sprintf("autowatch: %s, subscribers: %d/%d, queued: %d",
		autowatch, len(m.connections), m.cfg.MaxWatchedSubscribers, len(m.watchQueue))
}

func (m *Manager) tick(ctx context.Context) {
	if !m.lobby.Complete() {
		return
	}
	now := time.Now()
	entries := m.lobby.Entries()

	candidate := m.processLobby(ctx, now, entries)
	m.applyAutowatchCandidate(ctx, now, candidate)
	m.processWatchQueue(ctx, now, entries)
}

// eligibleEntry reports whether a LobbyEntry may be considered at all this
// tick (spec §4.6 step 1: ineligible user, unsupported version, or over
// the idle ceiling are all skipped up front).
func (m *Manager) eligibleEntry(now time.Time, e domain.LobbyEntry) bool {
	if !m.canWatchUser(e.Username) {
		return false
	}
	if !versionWatchable(e.GameID) {
		return false
	}
	if e.EffectiveIdle(now) >= m.cfg.MaxGameIdle {
		return false
	}
	return true
}

func (m *Manager) canWatchUser(username string) bool {
	lower := strings.ToLower(username)
	if _, blocked := m.cfg.NeverWatch[lower]; blocked {
		return false
	}
	if m.cfg.singleUserMode() {
		return strings.EqualFold(username, m.cfg.WatchUsername)
	}
	u, ok := userstore.GetWTUser(m.store, username)
	if !ok {
		return true
	}
	return u.CanWatch()
}

type autowatchCandidate struct {
	username, gameID string
	spectators       int
}

func (c autowatchCandidate) key() string { return c.username + "\x00" + c.gameID }

// processLobby walks every LobbyEntry once (spec §4.6 step 1), appending
// new WatchQueueEntries for newly-subscribed users and returning the
// winning autowatch candidate, if any.
func (m *Manager) processLobby(ctx context.Context, now time.Time, entries []domain.LobbyEntry) *autowatchCandidate {
	m.mu.Lock()
	subscriberSlotsFull := len(m.connections) >= m.cfg.MaxWatchedSubscribers
	incumbentKey := ""
	if m.autowatch != nil {
		incumbentKey = m.autowatch.session.Key()
	}
	m.mu.Unlock()

	var best *autowatchCandidate
	for _, e := range entries {
		if !m.eligibleEntry(now, e) {
			continue
		}

		user, _ := userstore.GetWTUser(m.store, e.Username)
		if user.Subscription == domain.SubscriptionSubscribed {
			m.ensureQueued(e.Username, e.GameID)
		}

		if !m.cfg.AutowatchEnabled || !m.router.Ready() {
			continue
		}
		if e.SpectatorCount < m.cfg.MinAutowatchSpectators {
			continue
		}
		if user.Subscription == domain.SubscriptionSubscribed && !subscriberSlotsFull {
			continue
		}

		cand := autowatchCandidate{username: e.Username, gameID: e.GameID, spectators: e.SpectatorCount}
		switch {
		case best == nil:
			best = &cand
		case cand.key() == incumbentKey:
			if cand.spectators >= best.spectators {
				best = &cand
			}
		case cand.spectators > best.spectators:
			best = &cand
		}
	}
	return best
}

func (m *Manager) ensureQueued(username, gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := username + "\x00" + gameID
	for _, q := range m.watchQueue {
		if q.Key() == key {
			return
		}
	}
	m.watchQueue = append(m.watchQueue, domain.WatchQueueEntry{Username: username, GameID: gameID})
}

// applyAutowatchCandidate implements spec §4.6 step 2.
func (m *Manager) applyAutowatchCandidate(ctx context.Context, now time.Time, candidate *autowatchCandidate) {
	m.mu.Lock()
	current := m.autowatch
	m.mu.Unlock()

	if candidate == nil {
		if current == nil {
			return
		}
		idle := current.session.EffectiveIdle(now)
		for _, e := range m.lobby.Entries() {
			if e.Username+"\x00"+e.GameID == current.session.Key() {
				idle = e.EffectiveIdle(now)
				break
			}
		}
		if !m.router.Ready() || !m.canWatchUser(current.session.Username()) || idle >= m.cfg.MaxGameIdle {
			m.stopAutowatch()
		}
		return
	}

	if current != nil && current.session.Key() == candidate.key() {
		return
	}
	if current != nil {
		slog.Info("webtiles: autowatch retargeting", "from", current.session.Describe(), "to_user", candidate.username, "to_game", candidate.gameID)
		current.session.Rewatch(candidate.username, candidate.gameID)
		m.registryMu.Lock()
		delete(m.registry, current.session.Key())
		m.registry[candidate.key()] = current.session
		m.registryMu.Unlock()
		return
	}

	m.startAutowatch(ctx, candidate.username, candidate.gameID)
}

func (m *Manager) startAutowatch(ctx context.Context, username, gameID string) {
	sessCtx, cancel := context.WithCancel(ctx)
	ws := &watchedSession{cancel: cancel}
	ws.session = NewGameSession(username, gameID, m.cfg.sessionConfig(), m.sessionDeps(), func(s *GameSession, watched domain.WatchQueueEntry) {
		m.onSessionStop(s, watched, false)
	})

	m.mu.Lock()
	m.autowatch = ws
	m.mu.Unlock()
	m.registerSource(ws.session)

	slog.Info("webtiles: autowatch starting", "user", username, "game", gameID)
	go ws.session.Run(sessCtx)
}

func (m *Manager) stopAutowatch() {
	m.mu.Lock()
	ws := m.autowatch
	m.mu.Unlock()
	if ws != nil {
		ws.cancel()
	}
}

// processWatchQueue implements spec §4.6 step 3.
func (m *Manager) processWatchQueue(ctx context.Context, now time.Time, entries []domain.LobbyEntry) {
	lobbyByKey := make(map[string]domain.LobbyEntry, len(entries))
	for _, e := range entries {
		lobbyByKey[e.Username+"\x00"+e.GameID] = e
	}

	m.mu.Lock()
	queue := make([]domain.WatchQueueEntry, len(m.watchQueue))
	copy(queue, m.watchQueue)
	m.mu.Unlock()

	kept := make([]domain.WatchQueueEntry, 0, len(queue))
	for _, q := range queue {
		entry, hasLobby := lobbyByKey[q.Key()]

		m.mu.Lock()
		existing := m.connections[q.Key()]
		m.mu.Unlock()

		if existing != nil {
			if !m.canWatchUser(q.Username) || (hasLobby && entry.EffectiveIdle(now) >= m.cfg.MaxGameIdle) {
				existing.cancel()
			} else {
				kept = append(kept, q)
			}
			continue
		}

		if !m.canWatchUser(q.Username) {
			continue // drop: no longer allowed
		}
		if hasLobby && entry.EffectiveIdle(now) >= m.cfg.MaxGameIdle {
			continue // drop: idle
		}
		if !hasLobby {
			if !q.CooldownElapsed(now, m.cfg.GameRewatchTimeout) {
				kept = append(kept, q)
			}
			continue // drop: game ended and cooldown exceeded, or keep waiting
		}
		if !q.CooldownElapsed(now, rewatchWait) {
			kept = append(kept, q)
			continue
		}
		if !m.router.Ready() {
			kept = append(kept, q)
			continue
		}

		m.mu.Lock()
		full := len(m.connections) >= m.cfg.MaxWatchedSubscribers
		m.mu.Unlock()
		if full {
			kept = append(kept, q) // retry next tick
			continue
		}

		m.startSubscriber(ctx, q.Username, q.GameID)
		kept = append(kept, q)
	}

	m.mu.Lock()
	m.watchQueue = kept
	m.mu.Unlock()
}

func (m *Manager) startSubscriber(ctx context.Context, username, gameID string) {
	sessCtx, cancel := context.WithCancel(ctx)
	ws := &watchedSession{cancel: cancel}
	ws.session = NewGameSession(username, gameID, m.cfg.sessionConfig(), m.sessionDeps(), func(s *GameSession, watched domain.WatchQueueEntry) {
		m.onSessionStop(s, watched, true)
	})

	key := username + "\x00" + gameID
	m.mu.Lock()
	m.connections[key] = ws
	m.mu.Unlock()
	m.registerSource(ws.session)

	slog.Info("webtiles: subscriber session starting", "user", username, "game", gameID)
	go ws.session.Run(sessCtx)
}

// onSessionStop is the teardown recovery of spec §4.6 step 4: it
// unregisters the session and, if it was backing a watch-queue entry,
// stamps TimeEnd to start the rewatch cooldown.
func (m *Manager) onSessionStop(s *GameSession, watched domain.WatchQueueEntry, subscriber bool) {
	m.registryMu.Lock()
	delete(m.registry, s.Key())
	m.registryMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if subscriber {
		key := watched.Username + "\x00" + watched.GameID
		delete(m.connections, key)
		for i := range m.watchQueue {
			if m.watchQueue[i].Key() == key {
				now := time.Now()
				m.watchQueue[i].TimeEnd = &now
			}
		}
	} else if m.autowatch != nil && m.autowatch.session == s {
		m.autowatch = nil
	}
	slog.Info("webtiles: session stopped", "user", watched.Username, "game", watched.GameID, "subscriber", subscriber)
}

func (m *Manager) registerSource(s *GameSession) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	m.registry[s.Key()] = s
}

func (m *Manager) sessionDeps() SessionDeps {
	return SessionDeps{Store: m.store, Commands: m.cmds, Router: m.router, TV: m.tv}
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.autowatch != nil {
		m.autowatch.cancel()
	}
	for _, ws := range m.connections {
		ws.cancel()
	}
}
