package domain

import "time"

// LobbyEntry mirrors one running game as reported by the WT lobby feed.
// Keyed by (Username, GameID).
type LobbyEntry struct {
	LobbyID         string // lobby-assigned id, used for lobby_remove
	Username        string
	GameID          string
	SpectatorCount  int
	IdleTime        time.Duration
	TimeLastUpdate  time.Time // monotonic-ish wall clock, set on every update
}

// EffectiveIdle is the idle time projected forward from the last update,
// per spec §4.6 step 1: idle_time + now - time_last_update.
func (e LobbyEntry) EffectiveIdle(now time.Time) time.Duration {
	return e.IdleTime + now.Sub(e.TimeLastUpdate)
}

// WatchQueueEntry is a subscriber's claim on a (username, game) pair,
// pending or active. TimeEnd is set once the session backing this entry
// stops, starting the rewatch cooldown.
type WatchQueueEntry struct {
	Username string
	GameID   string
	TimeEnd  *time.Time
}

// Key identifies the (username, game) pair a watch-queue entry targets.
func (e WatchQueueEntry) Key() string {
	return e.Username + "\x00" + e.GameID
}

// CooldownElapsed reports whether the rewatch cooldown since TimeEnd has
// passed. An entry with no TimeEnd (never ended, or currently active) has
// no cooldown to wait out.
func (e WatchQueueEntry) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if e.TimeEnd == nil {
		return true
	}
	return now.Sub(*e.TimeEnd) >= cooldown
}
