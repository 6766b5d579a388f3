package queryrouter

import (
	"regexp"
	"testing"
	"time"

	"github.com/crawlbeem/beem/internal/domain"
)

func TestAllocateIDReusesStaleSlot(t *testing.T) {
	b := newBot("cbro", true, domain.QueryNormal, nil, nil)
	now := time.Now()

	id, err := b.allocateID(now)
	if err != nil {
		t.Fatalf("allocateID: %v", err)
	}
	if id != "A" {
		t.Fatalf("first id = %q, want %q", id, "A")
	}
	b.queries[id] = &domain.QueryEntry{ID: id, SubmitTime: now}

	// Still fresh: the next allocation must skip slot A.
	second, err := b.allocateID(now)
	if err != nil {
		t.Fatalf("allocateID: %v", err)
	}
	if second == "A" {
		t.Fatalf("allocateID reused a fresh slot")
	}

	// Once stale, slot A becomes free again.
	later := now.Add(maxRequestTimePrimary + time.Second)
	reused, err := b.allocateID(later)
	if err != nil {
		t.Fatalf("allocateID: %v", err)
	}
	if reused != "A" {
		t.Fatalf("allocateID did not reclaim stale slot A, got %q", reused)
	}
}

func TestAllocateIDExhaustionSecondary(t *testing.T) {
	b := newBot("sequell", false, domain.QueryNormal, nil, nil)
	now := time.Now()

	for i := 0; i < 100; i++ {
		id, err := b.allocateID(now)
		if err != nil {
			t.Fatalf("allocateID[%d]: %v", i, err)
		}
		b.queries[id] = &domain.QueryEntry{ID: id, SubmitTime: now}
	}

	if _, err := b.allocateID(now); err == nil {
		t.Fatal("expected allocateID to fail once all 100 slots are in use")
	}
}

func TestMatchesUsesServicePatterns(t *testing.T) {
	wt := []*regexp.Regexp{regexp.MustCompile(`^!learn`)}
	tv := []*regexp.Regexp{regexp.MustCompile(`^!tv`)}
	b := newBot("cbro", true, domain.QueryNormal, wt, tv)

	if !b.matches("wt", "!learn monster orb guardian") {
		t.Fatal("expected wt pattern to match")
	}
	if b.matches("tv", "!learn monster orb guardian") {
		t.Fatal("wt-only pattern matched a tv lookup")
	}
	if !b.matches("tv", "!tv stats") {
		t.Fatal("expected tv pattern to match")
	}
}
