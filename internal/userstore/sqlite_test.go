package userstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crawlbeem/beem/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "beem.db")
	s, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestAddRowThenGetRowRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddRow(ctx, TableWTUsers, wtUserToRow(domain.WTUser{Name: "Alice", Subscription: domain.SubscriptionSubscribed})); err != nil {
		t.Fatalf("AddRow: %v", err)
	}

	u, ok := GetWTUser(s, "ALICE")
	if !ok {
		t.Fatal("expected case-insensitive hit for ALICE")
	}
	if u.Name != "Alice" || u.Subscription != domain.SubscriptionSubscribed {
		t.Errorf("got %+v", u)
	}
}

func TestAddRowDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := wtUserToRow(domain.WTUser{Name: "bob"})
	if err := s.AddRow(ctx, TableWTUsers, row); err != nil {
		t.Fatalf("first AddRow: %v", err)
	}
	if err := s.AddRow(ctx, TableWTUsers, wtUserToRow(domain.WTUser{Name: "BOB"})); err == nil {
		t.Fatal("expected duplicate error on second AddRow with same case-folded key")
	}
}

func TestSetRowFieldIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := EnsureWTUser(ctx, s, "carol"); err != nil {
		t.Fatalf("EnsureWTUser: %v", err)
	}
	if err := SetWTSubscription(ctx, s, "carol", domain.SubscriptionSubscribed); err != nil {
		t.Fatalf("SetWTSubscription: %v", err)
	}
	if err := SetWTSubscription(ctx, s, "carol", domain.SubscriptionSubscribed); err != nil {
		t.Fatalf("SetWTSubscription (again): %v", err)
	}

	u, ok := GetWTUser(s, "carol")
	if !ok || u.Subscription != domain.SubscriptionSubscribed {
		t.Errorf("got %+v, ok=%v", u, ok)
	}
}

func TestGetRowMissIsNotError(t *testing.T) {
	s := newTestStore(t)
	if _, ok := GetWTUser(s, "nobody"); ok {
		t.Fatal("expected miss for unknown user")
	}
}

func TestReloadPicksUpPersistedRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "beem.db")
	ctx := context.Background()

	s1, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s1.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := SetWTNick(ctx, s1, "dave", "DaveTheBold"); err != nil {
		t.Fatalf("SetWTNick: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite (reopen): %v", err)
	}
	defer func() { _ = s2.Close() }()
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load (reopen): %v", err)
	}

	u, ok := GetWTUser(s2, "dave")
	if !ok || u.Nick != "DaveTheBold" {
		t.Errorf("got %+v, ok=%v", u, ok)
	}
}
