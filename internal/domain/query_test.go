package domain

import (
	"testing"
	"time"
)

func TestQueryEntryStale(t *testing.T) {
	now := time.Now()
	fresh := QueryEntry{SubmitTime: now.Add(-10 * time.Second)}
	if fresh.Stale(now, 100*time.Second) {
		t.Errorf("fresh entry reported stale")
	}

	old := QueryEntry{SubmitTime: now.Add(-101 * time.Second)}
	if !old.Stale(now, 100*time.Second) {
		t.Errorf("old entry not reported stale")
	}

	boundary := QueryEntry{SubmitTime: now.Add(-100 * time.Second)}
	if !boundary.Stale(now, 100*time.Second) {
		t.Errorf("entry exactly at MAX_REQUEST_TIME should be stale")
	}
}
