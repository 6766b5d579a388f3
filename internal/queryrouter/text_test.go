package queryrouter

import (
	"testing"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
)

func TestStripControlSequences(t *testing.T) {
	in := "\x1b[1,7mmonk\x1b[0m has 20/20 hp\x0e\x0f"
	want := "monk has 20/20 hp"
	if got := stripControlSequences(in); got != want {
		t.Fatalf("stripControlSequences() = %q, want %q", got, want)
	}
}

func TestBuildRelay(t *testing.T) {
	got := buildRelay("greensnark", "A", "monk")
	want := "!RELAY -nick greensnark -prefix A -n 1 monk"
	if got != want {
		t.Fatalf("buildRelay() = %q, want %q", got, want)
	}
}

type fakeSource struct {
	watched string
	nicks   map[string]string
	present []string
}

func (f fakeSource) SendChat(string, chatsource.Kind) {}
func (f fakeSource) Describe() string                { return "fake" }
func (f fakeSource) SourceIdent() domain.SourceIdent  { return domain.SourceIdent{Service: "wt", Key: "k"} }
func (f fakeSource) DCSSNick(user string) string      { return f.nicks[user] }
func (f fakeSource) WatchedPlayer() string            { return f.watched }
func (f fakeSource) ChatDCSSNicks(requester string) []string {
	return f.present
}
func (f fakeSource) BotLogin() string                 { return "beem" }
func (f fakeSource) IsDisallowedUser(string) bool      { return false }
func (f fakeSource) IsAdmin(string) bool               { return false }

var _ chatsource.Source = fakeSource{}

func TestSubstitutePlaceholders(t *testing.T) {
	src := fakeSource{
		watched: "bobbens",
		nicks:   map[string]string{"bobbens": "bobbens"},
		present: []string{"bobbens", "greensnark"},
	}
	got := substitute("!lg $p won", src, "greensnark")
	want := "!lg bobbens won"
	if got != want {
		t.Fatalf("substitute() = %q, want %q", got, want)
	}

	got = substitute("!tell $chat hello", src, "greensnark")
	want = "!tell @bobbens|@greensnark hello"
	if got != want {
		t.Fatalf("substitute() = %q, want %q", got, want)
	}
}
