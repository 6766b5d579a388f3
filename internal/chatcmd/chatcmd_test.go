package chatcmd

import (
	"context"
	"testing"
	"time"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
)

type testSource struct {
	ident   domain.SourceIdent
	admins  map[string]bool
	sent    []string
	watched string
}

func (s *testSource) SendChat(message string, kind chatsource.Kind) { s.sent = append(s.sent, message) }
func (s *testSource) Describe() string                              { return "test" }
func (s *testSource) SourceIdent() domain.SourceIdent                { return s.ident }
func (s *testSource) DCSSNick(user string) string                    { return user }
func (s *testSource) ChatDCSSNicks(requester string) []string        { return []string{requester} }
func (s *testSource) WatchedPlayer() string                          { return s.watched }
func (s *testSource) BotLogin() string                               { return "beem" }
func (s *testSource) IsDisallowedUser(name string) bool              { return name == "spammer" }
func (s *testSource) IsAdmin(name string) bool                       { return s.admins[name] }

func newEngine(t *testing.T, limit RateLimit) *Engine {
	t.Helper()
	calls := 0
	cmd := Command{
		Name: "ping",
		Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
			calls++
			source.SendChat("pong", chatsource.Normal)
			return nil
		},
	}
	adminCmd := Command{
		Name:     "status",
		Restrict: RequireAdmin,
		Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
			source.SendChat("status: ok", chatsource.Normal)
			return nil
		},
	}
	return New(Config{}, []Command{cmd, adminCmd}, limit)
}

func TestHandleIgnoresOwnLogin(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	reply, isCmd := e.Handle(context.Background(), src, "beem", "!ping")
	if isCmd || reply != "" {
		t.Fatalf("expected own login to be ignored, got reply=%q isCmd=%v", reply, isCmd)
	}
}

func TestHandleIgnoresDisallowedUser(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	_, isCmd := e.Handle(context.Background(), src, "spammer", "!ping")
	if isCmd {
		t.Fatal("expected disallowed user's message to be ignored")
	}
}

func TestHandleDispatchesKnownCommand(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	_, isCmd := e.Handle(context.Background(), src, "greensnark", "!ping")
	if !isCmd {
		t.Fatal("expected !ping to be recognized as a command")
	}
	if len(src.sent) != 1 || src.sent[0] != "pong" {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestHandleUnknownCommandIsNotRecognized(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	_, isCmd := e.Handle(context.Background(), src, "greensnark", "!nosuchcommand")
	if isCmd {
		t.Fatal("expected unknown command to be unrecognized")
	}
}

func TestHandleRequireAdminRejectsNonAdmin(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}, admins: map[string]bool{}}
	reply, isCmd := e.Handle(context.Background(), src, "greensnark", "!status")
	if !isCmd || reply == "" {
		t.Fatalf("expected a restriction error, got reply=%q isCmd=%v", reply, isCmd)
	}
}

func TestHandleRequireAdminAllowsAdmin(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}, admins: map[string]bool{"greensnark": true}}
	_, isCmd := e.Handle(context.Background(), src, "greensnark", "!status")
	if !isCmd {
		t.Fatal("expected !status to dispatch for an admin")
	}
	if len(src.sent) != 1 || src.sent[0] != "status: ok" {
		t.Fatalf("sent = %v", src.sent)
	}
}

func TestHandleAdminTargetRedirectRejectedForNonAdmin(t *testing.T) {
	e := newEngine(t, RateLimit{})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}
	reply, isCmd := e.Handle(context.Background(), src, "greensnark", "!ping ^bobbens")
	if !isCmd || reply == "" {
		t.Fatalf("expected redirect to be rejected for a non-admin, got %q", reply)
	}
}

func TestHandleRateLimitSilentlyDropsExcess(t *testing.T) {
	e := newEngine(t, RateLimit{Period: time.Minute, Limit: 1})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}}

	_, _ = e.Handle(context.Background(), src, "greensnark", "!ping")
	_, isCmd := e.Handle(context.Background(), src, "greensnark", "!ping")

	if !isCmd {
		t.Fatal("a rate-limited line is still a command attempt (isCommand=true), just silently dropped")
	}
	if len(src.sent) != 1 {
		t.Fatalf("expected exactly one reply before the limit kicked in, got %v", src.sent)
	}
}

func TestHandleRateLimitExemptsAdmins(t *testing.T) {
	e := newEngine(t, RateLimit{Period: time.Minute, Limit: 1})
	src := &testSource{ident: domain.SourceIdent{Service: "wt"}, admins: map[string]bool{"greensnark": true}}

	_, _ = e.Handle(context.Background(), src, "greensnark", "!ping")
	_, _ = e.Handle(context.Background(), src, "greensnark", "!ping")

	if len(src.sent) != 2 {
		t.Fatalf("expected an admin to bypass the rate limit, sent = %v", src.sent)
	}
}
