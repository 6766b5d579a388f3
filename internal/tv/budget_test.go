package tv

import (
	"testing"
	"time"
)

func TestMessageBudgetNormal(t *testing.T) {
	b := newMessageBudget(2, 5, time.Minute)
	if !b.allow(false) {
		t.Fatalf("first message should be allowed")
	}
	if !b.allow(false) {
		t.Fatalf("second message should be allowed")
	}
	if b.allow(false) {
		t.Fatalf("third message should exceed normal limit")
	}
}

func TestMessageBudgetModeratorDowngradesAfterNormal(t *testing.T) {
	b := newMessageBudget(1, 5, time.Minute)
	if !b.allow(false) {
		t.Fatalf("normal message should be allowed")
	}
	// A normal message has already been sent this window, so the
	// moderator headroom no longer applies: the normal limit (1) is
	// already exhausted.
	if b.allow(true) {
		t.Fatalf("moderator message should be capped by the exhausted normal limit")
	}
}

func TestMessageBudgetModeratorHeadroomBeforeAnyNormal(t *testing.T) {
	b := newMessageBudget(1, 3, time.Minute)
	for i := 0; i < 3; i++ {
		if !b.allow(true) {
			t.Fatalf("moderator message %d should fit under the moderator limit", i)
		}
	}
	if b.allow(true) {
		t.Fatalf("moderator message should exceed the moderator limit")
	}
}

func TestMessageBudgetResetsAfterTimeout(t *testing.T) {
	b := newMessageBudget(1, 5, 10*time.Millisecond)
	if !b.allow(false) {
		t.Fatalf("first message should be allowed")
	}
	if b.allow(false) {
		t.Fatalf("second message should be blocked before the window resets")
	}
	time.Sleep(20 * time.Millisecond)
	if !b.allow(false) {
		t.Fatalf("message after window reset should be allowed")
	}
}
