package webtiles

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/crawlbeem/beem/internal/domain"
)

// loginTimeout bounds how long a freshly dialed connection may take to
// reach login_success before it is torn down as failed, spec §4.4.
const loginTimeout = 15 * time.Second

// reconnectDelay is the pause before a dropped lobby connection redials,
// mirroring ircnet's ReconnectTimeout for the same reason: avoid hot
// reconnect loops against a server that is down.
const reconnectDelay = 5 * time.Second

// ShutdownRequester is invoked when the lobby's login fails, which spec
// §4.4/§7 treats as fatal (the bot's own WT credentials are rejected).
type ShutdownRequester func(reason string)

// Lobby is WTLobby: the always-on connection that streams the set of
// currently running, spectatable games.
type Lobby struct {
	serverURL       string
	protocolVersion string
	username        string
	password        string
	requestStop     ShutdownRequester

	mu       sync.RWMutex
	entries  map[string]domain.LobbyEntry // keyed by LobbyID
	complete bool
	ready    bool
}

// NewLobby builds a Lobby. Call Run to connect and service it until ctx is
// canceled. requestStop, if non-nil, is called once on a fatal
// login_fail.
func NewLobby(serverURL, protocolVersion, username, password string, requestStop ShutdownRequester) *Lobby {
	return &Lobby{
		serverURL:       serverURL,
		protocolVersion: protocolVersion,
		username:        username,
		password:        password,
		requestStop:     requestStop,
		entries:         make(map[string]domain.LobbyEntry),
	}
}

// Run connects and reconnects until ctx is canceled. A login_fail is
// fatal: it is reported once via requestStop and Run returns without
// retrying, since the owning orchestrator is expected to shut the
// process down.
func (l *Lobby) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := l.runOnce(ctx)
		l.setReady(false)
		if errors.Is(err, errLoginFailed) {
			slog.Error("webtiles: lobby login failed", "error", err)
			if l.requestStop != nil {
				l.requestStop("webtiles lobby login_fail")
			}
			return
		}
		if err != nil {
			slog.Warn("webtiles: lobby connection ended", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Lobby) runOnce(ctx context.Context) error {
	conn, err := dial(ctx, l.serverURL)
	if err != nil {
		return err
	}
	defer conn.close()

	if err := conn.writeMessage(ctx, loginRequest{Msg: "login", Username: l.username, Password: l.password}); err != nil {
		return err
	}

	loginCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	for {
		msg, err := conn.readMessage(ctx)
		if err != nil {
			return err
		}
		switch fieldString(msg, "msg") {
		case msgLoginSuccess:
			l.setReady(true)
			cancel()
		case msgLoginFail:
			return errLoginFailed
		case msgPing:
			if err := conn.writeMessage(ctx, pongMessage{Msg: "pong"}); err != nil {
				return err
			}
		case msgLobbyEntry:
			l.applyEntry(msg)
		case msgLobbyRemove:
			l.removeEntry(fieldString(msg, "id"))
		case msgLobbyClear:
			l.clear()
		case msgLobbyComplete:
			l.setComplete(true)
		}
		if loginCtx.Err() != nil && !l.Ready() {
			return errLoginTimeout
		}
	}
}

func (l *Lobby) applyEntry(msg map[string]any) {
	id := fieldString(msg, "id")
	entry := domain.LobbyEntry{
		LobbyID:        id,
		Username:       fieldString(msg, "username"),
		GameID:         fieldString(msg, "game_id"),
		SpectatorCount: fieldInt(msg, "spectator_count"),
		IdleTime:       time.Duration(fieldInt(msg, "idle_time")) * time.Second,
		TimeLastUpdate: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = entry
}

func (l *Lobby) removeEntry(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

func (l *Lobby) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]domain.LobbyEntry)
	l.complete = false
}

func (l *Lobby) setComplete(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.complete = v
}

func (l *Lobby) setReady(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = v
}

// Ready reports whether the lobby connection is logged in.
func (l *Lobby) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Complete reports whether the server has finished sending the initial
// lobby snapshot.
func (l *Lobby) Complete() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.complete
}

// Entries returns a snapshot of the current lobby entries.
func (l *Lobby) Entries() []domain.LobbyEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LobbyEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}
