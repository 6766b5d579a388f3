package domain

import (
	"testing"
	"time"
)

func TestLobbyEntryEffectiveIdle(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := LobbyEntry{IdleTime: 5 * time.Second, TimeLastUpdate: last}
	now := last.Add(10 * time.Second)
	if got := e.EffectiveIdle(now); got != 15*time.Second {
		t.Errorf("EffectiveIdle = %v, want 15s", got)
	}
}

func TestWatchQueueEntryKey(t *testing.T) {
	a := WatchQueueEntry{Username: "minmay", GameID: "crawl-0.32"}
	b := WatchQueueEntry{Username: "minmay", GameID: "crawl-0.32"}
	c := WatchQueueEntry{Username: "minmay", GameID: "crawl-0.31"}
	if a.Key() != b.Key() {
		t.Errorf("identical entries produced different keys")
	}
	if a.Key() == c.Key() {
		t.Errorf("different game ids produced the same key")
	}
}

func TestWatchQueueEntryCooldownElapsed(t *testing.T) {
	e := WatchQueueEntry{}
	now := time.Now()
	if !e.CooldownElapsed(now, 5*time.Second) {
		t.Errorf("entry with nil TimeEnd should have no cooldown")
	}

	ended := now.Add(-3 * time.Second)
	e.TimeEnd = &ended
	if e.CooldownElapsed(now, 5*time.Second) {
		t.Errorf("cooldown should not have elapsed yet")
	}

	ended = now.Add(-6 * time.Second)
	e.TimeEnd = &ended
	if !e.CooldownElapsed(now, 5*time.Second) {
		t.Errorf("cooldown should have elapsed")
	}
}
