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
	"github.com/crawlbeem/beem/internal/shared"
	"github.com/crawlbeem/beem/internal/userstore"
)

// requestTimeout bounds the login/watch handshake, spec §5's REQUEST_TIMEOUT.
const requestTimeout = 10 * time.Second

// sessionState is the per-session state machine of spec §4.6: Connecting
// -> Authenticating -> WatchRequested -> Watching -> Stopping -> Gone.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateWatchRequested
	stateWatching
	stateStopping
	stateGone
)

// Router is the subset of queryrouter.Router a GameSession needs to send a
// recognized knowledge-bot query. Kept as a narrow interface here so
// webtiles never imports queryrouter (it is the other way around, through
// chatsource.Registry), matching chatcmd's ChannelControl/StatusReporter
// pattern.
type Router interface {
	Ready() bool
	Route(service string, source chatsource.Source, requester, text string) error
}

// TVForwarder is the one TVManager capability a GameSession needs: forward
// a dump-link line into a linked streamer's channel, spec §4.5 "dump".
type TVForwarder interface {
	SendToStreamer(handle, message string) error
}

// SessionConfig carries fields from config.Webtiles a GameSession needs
// that don't change once the scheduler creates it.
type SessionConfig struct {
	ServerURL            string
	ProtocolVersion      string
	BotUsername          string
	BotPassword          string
	HelpText             string
	GreetingText         string
	TwitchReminderText   string
	TwitchReminderPeriod time.Duration
	Admins               map[string]struct{}
}

// SessionDeps are the collaborators a GameSession dispatches chat through.
type SessionDeps struct {
	Store    userstore.Store
	Commands *chatcmd.Engine
	Router   Router
	TV       TVForwarder // nil if the TV service isn't enabled
}

// onStop is invoked exactly once, from the session's own goroutine, when
// Run returns for any reason (ended, disallowed, disconnected). watched is
// the (username, game_id) the session was watching at the time, used by
// the scheduler to stamp a WatchQueueEntry's TimeEnd (spec §4.6 step 4).
type onStop func(s *GameSession, watched domain.WatchQueueEntry)

// GameSession is one watched WT game: its own WebSocket, login/watch
// handshake, and chat bridge into ChatCommandEngine (spec §4.5).
type GameSession struct {
	cfg  SessionConfig
	deps SessionDeps
	stop onStop

	mu               sync.Mutex
	username         string // the watched player
	gameID           string
	state            sessionState
	timeSinceRequest time.Time
	needGreeting     bool
	lastReminderTime time.Time
	lastIdleReminder time.Time
	spectators       int
	chatters         map[string]time.Time
	conn             *wsConn
	rewatchTo        *domain.WatchQueueEntry // set by Rewatch, consumed by the run loop
	playerOnly       bool
}

// NewGameSession builds a session that will watch (username, gameID) once
// Run is called. onStopFn is invoked once Run returns.
func NewGameSession(username, gameID string, cfg SessionConfig, deps SessionDeps, onStopFn onStop) *GameSession {
	return &GameSession{
		cfg:      cfg,
		deps:     deps,
		stop:     onStopFn,
		username: username,
		gameID:   gameID,
		chatters: make(map[string]time.Time),
	}
}

// Key identifies the (username, game) pair this session is currently
// watching.
func (s *GameSession) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username + "\x00" + s.gameID
}

// Username returns the watched player's name.
func (s *GameSession) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// GameID returns the watched game id.
func (s *GameSession) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// Rewatch retargets an already-running session to a different
// (username, game) pair without tearing down the WebSocket, since a
// WT connection may issue a fresh "watch" request for any player at any
// time. Used for autowatch candidate changes (spec §4.6 step 2).
func (s *GameSession) Rewatch(username, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewatchTo = &domain.WatchQueueEntry{Username: username, GameID: gameID}
}

// EffectiveIdle reports how long the session has sat without observed
// chat/spectator activity, approximated here by time since the last
// lobby-driven idle reminder check; the scheduler uses the LobbyEntry's
// own EffectiveIdle for eviction, this is only consulted for the
// autowatch incumbent when no fresh LobbyEntry exists. Nothing in this
// package sets lastIdleReminder, so this returns 0.
func (s *GameSession) EffectiveIdle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastIdleReminder.IsZero() {
		return 0
	}
	return now.Sub(s.lastIdleReminder)
}

// Run connects, logs in, issues the initial watch request, and services
// the connection until ctx is canceled or the game session ends. It is
// not auto-reconnecting: a dropped connection is treated as the session
// ending, and the scheduler decides whether to open a new one.
func (s *GameSession) Run(ctx context.Context) {
	defer s.finish()

	s.setState(stateConnecting)
	conn, err := dial(ctx, s.cfg.ServerURL)
	if err != nil {
		slog.Warn("webtiles: session dial failed", "user", s.Username(), "error", err)
		return
	}
	defer conn.close()
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := conn.writeMessage(ctx, loginRequest{Msg: "login", Username: s.cfg.BotUsername, Password: s.cfg.BotPassword}); err != nil {
		slog.Warn("webtiles: session login send failed", "error", err)
		return
	}
	s.setState(stateAuthenticating)
	s.touchRequest()

	if err := s.loop(ctx, conn); err != nil {
		slog.Debug("webtiles: session ended", "user", s.Username(), "game", s.GameID(), "error", err)
		if ctx.Err() != nil && s.isWatching() {
			// Voluntary teardown (scheduler eviction, shutdown) while still
			// watching: tell the server we're leaving before the connection
			// drops, rather than just vanishing mid-game.
			if err := conn.writeMessage(context.Background(), goLobbyMessage{Msg: msgGoLobby}); err != nil {
				slog.Debug("webtiles: go_lobby send failed", "user", s.Username(), "error", err)
			}
		}
	}
}

func (s *GameSession) loop(ctx context.Context, conn *wsConn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.checkRewatch(ctx, conn) {
			continue
		}
		if s.requestTimedOut() {
			return fmt.Errorf("%w: login/watch handshake exceeded %s", shared.ErrConnectFailed, requestTimeout)
		}

		msg, err := conn.readMessage(ctx)
		if err != nil {
			return err
		}
		if done := s.handleMessage(ctx, conn, msg); done {
			return nil
		}
	}
}

func (s *GameSession) checkRewatch(ctx context.Context, conn *wsConn) bool {
	s.mu.Lock()
	target := s.rewatchTo
	s.rewatchTo = nil
	s.mu.Unlock()
	if target == nil {
		return false
	}
	s.mu.Lock()
	s.username = target.Username
	s.gameID = target.GameID
	s.state = stateWatchRequested
	s.mu.Unlock()
	s.touchRequest()
	if err := conn.writeMessage(ctx, watchRequest{Msg: "watch", Username: target.Username}); err != nil {
		slog.Warn("webtiles: rewatch send failed", "user", target.Username, "error", err)
	}
	return true
}

func (s *GameSession) requestTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateWatching {
		return false
	}
	return !s.timeSinceRequest.IsZero() && time.Since(s.timeSinceRequest) > requestTimeout
}

func (s *GameSession) touchRequest() {
	s.mu.Lock()
	s.timeSinceRequest = time.Now()
	s.mu.Unlock()
}

func (s *GameSession) clearRequest() {
	s.mu.Lock()
	s.timeSinceRequest = time.Time{}
	s.mu.Unlock()
}

// handleMessage processes one inbound WT frame, returning true if the
// session should terminate.
func (s *GameSession) handleMessage(ctx context.Context, conn *wsConn, msg map[string]any) bool {
	switch fieldString(msg, "msg") {
	case msgLoginSuccess:
		s.setState(stateWatchRequested)
		if err := conn.writeMessage(ctx, watchRequest{Msg: "watch", Username: s.Username()}); err != nil {
			slog.Warn("webtiles: watch request send failed", "error", err)
			return true
		}
		u, _ := userstore.GetWTUser(s.deps.Store, s.Username())
		s.mu.Lock()
		s.needGreeting = u.Subscription != domain.SubscriptionSubscribed && s.cfg.GreetingText != ""
		s.playerOnly = u.PlayerOnly
		s.mu.Unlock()
	case msgLoginFail:
		slog.Error("webtiles: session login_fail", "user", s.Username())
		return true
	case msgPing:
		_ = conn.writeMessage(ctx, pongMessage{Msg: "pong"})
	case msgWatchingStarted:
		s.clearRequest()
		s.setState(stateWatching)
		slog.Info("webtiles: watching started", "user", s.Username(), "game", s.GameID())
		s.maybeGreet()
	case msgUpdateSpectators:
		s.mu.Lock()
		s.spectators = fieldInt(msg, "spectator_count")
		s.mu.Unlock()
	case msgGameEnded:
		if s.isWatching() {
			return true
		}
	case msgGoLobby, msgGo:
		if s.isWatching() && (fieldString(msg, "msg") == msgGoLobby || fieldString(msg, "path") == "/") {
			return true
		}
	case msgChat:
		s.handleChat(fieldString(msg, "content"))
	case msgDump:
		s.handleDump(fieldString(msg, "url"))
	}
	return false
}

func (s *GameSession) isWatching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateWatching
}

func (s *GameSession) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *GameSession) maybeGreet() {
	s.mu.Lock()
	needGreeting := s.needGreeting
	s.needGreeting = false
	text := s.cfg.GreetingText
	s.mu.Unlock()
	if needGreeting && text != "" {
		s.SendChat(strings.ReplaceAll(text, "%n", s.Username()), chatsource.Normal)
	}
	s.maybeTwitchReminder()
}

// maybeTwitchReminder sends the configured Twitch-link reminder at most
// once per TwitchReminderPeriod, per SPEC_FULL.md's supplemented
// twitch-reminder throttling (ground: original_source/beem/webtiles.py).
func (s *GameSession) maybeTwitchReminder() {
	u, ok := userstore.GetWTUser(s.deps.Store, s.Username())
	if !ok || !u.TwitchReminder || u.TwitchUsername != "" || s.cfg.TwitchReminderText == "" {
		return
	}
	s.mu.Lock()
	due := time.Since(s.lastReminderTime) >= s.cfg.TwitchReminderPeriod
	if due {
		s.lastReminderTime = time.Now()
	}
	s.mu.Unlock()
	if due {
		s.SendChat(s.cfg.TwitchReminderText, chatsource.Normal)
	}
}

// handleChat parses one WT chat frame's HTML payload and dispatches it to
// ChatCommandEngine, falling through to knowledge-bot query recognition
// for anything that isn't a recognized command (spec §4.5 "chat").
func (s *GameSession) handleChat(html string) {
	user, message, ok := parseChatLine(html)
	if !ok || user == "" {
		return
	}
	s.mu.Lock()
	s.chatters[strings.ToLower(user)] = time.Now()
	s.mu.Unlock()

	ctx := context.Background()
	reply, isCommand := s.deps.Commands.Handle(ctx, s, user, message)
	if reply != "" {
		s.SendChat(reply, chatsource.Normal)
	}
	if isCommand {
		return
	}
	if s.deps.Router == nil || !s.deps.Router.Ready() {
		return
	}
	if s.playerOnlyBlocks(user) {
		return
	}
	if err := s.deps.Router.Route("wt", s, user, message); err != nil {
		slog.Warn("webtiles: query route failed", "user", user, "error", err)
	}
}

// playerOnlyBlocks implements the supplemented player-only restriction:
// when the watched player has set player_only=1, only that player's own
// lines may trigger a knowledge-bot query (ground: original_source
// beem/chat.py).
func (s *GameSession) playerOnlyBlocks(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playerOnly {
		return false
	}
	return !strings.EqualFold(sender, s.username)
}

// handleDump forwards a morgue/dump URL into the watched player's linked
// TV channel, if any (spec §4.5 "dump"; SPEC_FULL.md supplemented
// feature).
func (s *GameSession) handleDump(url string) {
	if url == "" || s.deps.TV == nil {
		return
	}
	u, ok := userstore.GetWTUser(s.deps.Store, s.Username())
	if !ok || u.TwitchUsername == "" {
		return
	}
	if err := s.deps.TV.SendToStreamer(u.TwitchUsername, "dump: "+url); err != nil {
		slog.Debug("webtiles: dump forward failed", "handle", u.TwitchUsername, "error", err)
	}
}

func (s *GameSession) finish() {
	s.setState(stateGone)
	if s.stop != nil {
		s.stop(s, domain.WatchQueueEntry{Username: s.Username(), GameID: s.GameID()})
	}
}

// --- chatsource.Source ---

var _ chatsource.Source = (*GameSession)(nil)

// SendChat implements spec §4.5 "Outbound chat": action lines are
// prefixed "*<login>* "; a leading "!" is escaped with "]" so other bots
// don't re-parse the line as a command of their own (spec §8's
// send_chat invariant).
func (s *GameSession) SendChat(message string, kind chatsource.Kind) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	text := message
	switch {
	case kind == chatsource.Action:
		text = fmt.Sprintf("*%s* %s", s.cfg.BotUsername, message)
	case strings.HasPrefix(message, "!"):
		text = "]" + message
	}

	if err := conn.writeMessage(context.Background(), chatMessage{Msg: "chat_msg", Text: text}); err != nil {
		slog.Warn("webtiles: send_chat failed", "user", s.Username(), "error", err)
	}
}

// Describe returns a short identifier for logging.
func (s *GameSession) Describe() string {
	return fmt.Sprintf("wt:%s/%s", s.Username(), s.GameID())
}

// SourceIdent returns the opaque handle QueryRouter round-trips back to
// resolve this session later.
func (s *GameSession) SourceIdent() domain.SourceIdent {
	return domain.SourceIdent{Service: "wt", Key: s.Key()}
}

// DCSSNick resolves user to a DCSS nick. WT chat usernames already are
// DCSS account names, so the identity mapping is the nick itself unless
// the user has set an explicit override via the "nick" command.
func (s *GameSession) DCSSNick(user string) string {
	u, ok := userstore.GetWTUser(s.deps.Store, user)
	if !ok || u.Nick == "" {
		return user
	}
	return u.Nick
}

// ChatDCSSNicks returns the set of DCSS nicks recently observed chatting
// in this session, used to resolve the $chat substitution.
func (s *GameSession) ChatDCSSNicks(requester string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{strings.ToLower(requester): {}}
	out := []string{s.DCSSNick(requester)}
	for user := range s.chatters {
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}
		out = append(out, s.DCSSNick(user))
	}
	return out
}

// WatchedPlayer returns the DCSS username this session is centered on.
func (s *GameSession) WatchedPlayer() string {
	return s.Username()
}

// BotLogin returns the bot's own WT login name.
func (s *GameSession) BotLogin() string {
	return s.cfg.BotUsername
}

// IsDisallowedUser reports whether name is excluded from this session's
// chat. WT carries no per-session ignore list beyond the bot's own login,
// already filtered in ChatCommandEngine.Handle.
func (s *GameSession) IsDisallowedUser(name string) bool {
	return false
}

// IsAdmin reports whether name is a configured WT admin.
func (s *GameSession) IsAdmin(name string) bool {
	_, ok := s.cfg.Admins[strings.ToLower(name)]
	return ok
}
