package chatcmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/userstore"
)

func newTestStore(t *testing.T) *userstore.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "beem.db")
	s, err := userstore.NewSQLite(dbPath)
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

func findBuiltin(t *testing.T, deps Deps, name string) Command {
	t.Helper()
	for _, c := range Builtins(deps) {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no builtin command named %q", name)
	return Command{}
}

func TestSubscribeSetsSubscribedAndReportsSuccess(t *testing.T) {
	store := newTestStore(t)
	cmd := findBuiltin(t, Deps{Store: store}, "subscribe")

	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	if err := cmd.Run(context.Background(), src, "alice", false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	u, ok := userstore.GetWTUser(store, "alice")
	if !ok || u.Subscription != domain.SubscriptionSubscribed {
		t.Fatalf("got user=%+v ok=%v, want Subscription=SubscriptionSubscribed", u, ok)
	}
	if len(src.sent) != 1 || src.sent[0] != "Subscribed. beem will now watch all games of user alice" {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestSubscribeAlreadySubscribedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := userstore.SetWTSubscription(context.Background(), store, "alice", domain.SubscriptionSubscribed); err != nil {
		t.Fatalf("SetWTSubscription: %v", err)
	}
	cmd := findBuiltin(t, Deps{Store: store}, "subscribe")

	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	if err := cmd.Run(context.Background(), src, "alice", false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.sent) != 1 || src.sent[0] != "User alice is already subscribed" {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestUnsubscribeBlocksWatching(t *testing.T) {
	store := newTestStore(t)
	cmd := findBuiltin(t, Deps{Store: store}, "unsubscribe")

	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	if err := cmd.Run(context.Background(), src, "alice", false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	u, ok := userstore.GetWTUser(store, "alice")
	if !ok || u.Subscription != domain.SubscriptionBlocked {
		t.Fatalf("got user=%+v ok=%v, want Subscription=SubscriptionBlocked", u, ok)
	}
	if u.CanWatch() {
		t.Fatal("expected unsubscribe to leave the user unwatchable")
	}
	if len(src.sent) != 1 || src.sent[0] != "Unsubscribed. beem will no longer watch games of user alice." {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestUnsubscribeAppendsByeWhenWatchedPlayerIsTarget(t *testing.T) {
	store := newTestStore(t)
	cmd := findBuiltin(t, Deps{Store: store}, "unsubscribe")

	src := &testSource{ident: domain.SourceIdent{Service: "wt"}, watched: "alice"}
	if err := cmd.Run(context.Background(), src, "alice", false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.sent) != 1 || src.sent[0] != "Unsubscribed. beem will no longer watch games of user alice. Bye!" {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestUnsubscribeAlreadyUnsubscribedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := userstore.SetWTSubscription(context.Background(), store, "alice", domain.SubscriptionBlocked); err != nil {
		t.Fatalf("SetWTSubscription: %v", err)
	}
	cmd := findBuiltin(t, Deps{Store: store}, "unsubscribe")

	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	if err := cmd.Run(context.Background(), src, "alice", false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.sent) != 1 || src.sent[0] != "User alice is already unsubscribed" {
		t.Fatalf("sent = %v", src.sent)
	}
}

var _ chatsource.Source = (*testSource)(nil)
