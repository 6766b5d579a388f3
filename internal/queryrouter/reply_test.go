package queryrouter

import (
	"regexp"
	"testing"
	"time"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/ircnet"
)

type recordingSource struct {
	fakeSource
	sent []string
	kind chatsource.Kind
}

func (r *recordingSource) SendChat(message string, kind chatsource.Kind) {
	r.sent = append(r.sent, message)
	r.kind = kind
}

type fakeRegistry struct {
	source *recordingSource
}

func (f fakeRegistry) Resolve(domain.SourceIdent) (chatsource.Source, bool) {
	if f.source == nil {
		return nil, false
	}
	return f.source, true
}

func newTestRouter(t *testing.T, registry chatsource.Registry) *Router {
	t.Helper()
	return &Router{
		botsByNick: make(map[string]*bot),
		registry:   registry,
		client:     ircnet.New(ircnet.Config{Hostname: "irc.example.test", Nick: "beem"}, ircnet.Handlers{}),
	}
}

func TestHandleBotReplyDeliversToSource(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	b := newBot("cbro", true, domain.QueryNormal, nil, nil)
	r.bots = []*bot{b}
	r.botsByNick["cbro"] = b

	entry := &domain.QueryEntry{ID: "A", Requester: "greensnark", Source: src.SourceIdent(), SubmitTime: time.Now()}
	b.queries["A"] = entry

	r.handleBotReply(b, "A: bobbens the Gladiator, XL9 Sp")

	if len(src.sent) != 1 || src.sent[0] != "bobbens the Gladiator, XL9 Sp" {
		t.Fatalf("delivered messages = %v", src.sent)
	}
	if _, stillQueued := b.queries["A"]; stillQueued {
		t.Fatal("query entry was not cleared after reply")
	}
}

func TestHandleBotReplyDropsStale(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	b := newBot("cbro", true, domain.QueryNormal, nil, nil)
	r.bots = []*bot{b}
	r.botsByNick["cbro"] = b

	old := time.Now().Add(-(maxRequestTimePrimary + time.Second))
	b.queries["A"] = &domain.QueryEntry{ID: "A", SubmitTime: old, Source: src.SourceIdent()}

	r.handleBotReply(b, "A: too late")

	if len(src.sent) != 0 {
		t.Fatalf("expected stale reply to be dropped, got %v", src.sent)
	}
}

func TestHandleBotReplyActionKind(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	b := newBot("cbro", true, domain.QueryNormal, nil, nil)
	r.bots = []*bot{b}
	r.botsByNick["cbro"] = b
	b.queries["A"] = &domain.QueryEntry{ID: "A", SubmitTime: time.Now(), Source: src.SourceIdent()}

	r.handleBotReply(b, "A: /me nods sagely")

	if len(src.sent) != 1 || src.sent[0] != "nods sagely" {
		t.Fatalf("delivered messages = %v", src.sent)
	}
	if src.kind != chatsource.Action {
		t.Fatalf("kind = %v, want Action", src.kind)
	}
}

func TestHandleBotReplyRoutesStrayLineToLastAnswered(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	b := newBot("sequell", false, domain.QueryNormal, nil, nil)
	r.bots = []*bot{b}
	r.botsByNick["sequell"] = b

	b.queue = append(b.queue, "00")
	b.queries["00"] = &domain.QueryEntry{ID: "00", Requester: "greensnark", SubmitTime: time.Now(), Source: src.SourceIdent()}
	r.handleBotReply(b, "bobbens the Gladiator, XL9 Sp, T:1234")

	r.handleBotReply(b, "(continued) wielding a +0 long sword")

	if len(src.sent) != 2 || src.sent[1] != "(continued) wielding a +0 long sword" {
		t.Fatalf("delivered messages = %v", src.sent)
	}
}

func TestHandleBotReplyDropsStrayLineWithNoLastAnswered(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	b := newBot("sequell", false, domain.QueryNormal, nil, nil)
	r.bots = []*bot{b}
	r.botsByNick["sequell"] = b

	r.handleBotReply(b, "nobody asked for this")

	if len(src.sent) != 0 {
		t.Fatalf("expected stray line with no last_answered to be dropped, got %v", src.sent)
	}
}

func TestHandleBotReplyRelaysBotToBot(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	primary := newBot("cbro", true, domain.QueryNormal, nil, nil)
	secondary := newBot("sequell", false, domain.QueryNormal, []*regexp.Regexp{regexp.MustCompile(`^@bobbens`)}, nil)
	r.bots = []*bot{primary, secondary}
	r.botsByNick["cbro"] = primary
	r.botsByNick["sequell"] = secondary

	ident := src.SourceIdent()
	primary.queries["A"] = &domain.QueryEntry{ID: "A", Requester: "greensnark", SubmitTime: time.Now(), Source: ident}

	r.handleBotReply(primary, "A: @bobbens won!")

	if len(src.sent) != 0 {
		t.Fatalf("expected relay, not direct delivery; got %v", src.sent)
	}
	if len(secondary.queue) != 1 {
		t.Fatalf("expected the relayed query to be queued on sequell, queue = %v", secondary.queue)
	}
}

func TestHandleBotReplyRelayDeliversConfiguredKind(t *testing.T) {
	src := &recordingSource{}
	r := newTestRouter(t, fakeRegistry{source: src})

	primary := newBot("cbro", true, domain.QueryNormal, nil, nil)
	secondary := newBot("gretell", false, domain.QueryMonster, []*regexp.Regexp{regexp.MustCompile(`^%%orb`)}, nil)
	r.bots = []*bot{primary, secondary}
	r.botsByNick["cbro"] = primary
	r.botsByNick["gretell"] = secondary

	ident := src.SourceIdent()
	primary.queries["A"] = &domain.QueryEntry{ID: "A", Requester: "greensnark", SubmitTime: time.Now(), Source: ident}

	r.handleBotReply(primary, "A: %%orb of zot")
	if len(secondary.queue) != 1 {
		t.Fatalf("expected the relayed query to be queued on gretell, queue = %v", secondary.queue)
	}

	r.handleBotReply(secondary, "Orb of Zot | dam: 0 | ...")

	if len(src.sent) != 1 || src.sent[0] != "Orb of Zot | dam: 0 | ..." {
		t.Fatalf("delivered messages = %v", src.sent)
	}
	if src.kind != chatsource.Monster {
		t.Fatalf("kind = %v, want Monster", src.kind)
	}
}
