package webtiles

import "testing"

func TestUnescapeHTML(t *testing.T) {
	cases := map[string]string{
		"Tom &amp; Jerry":     "Tom & Jerry",
		"100&percnt; sure":    "100% sure",
		"&lt;b&gt;hi&lt;/b&gt;": "<b>hi</b>",
		"it&apos;s&nbsp;fine": "it's fine",
		"&quot;quoted&quot;":  `"quoted"`,
		"no entities here":    "no entities here",
	}
	for in, want := range cases {
		if got := unescapeHTML(in); got != want {
			t.Errorf("unescapeHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseChatLine(t *testing.T) {
	html := `<span class="chat_sender">minmay</span>: <span class="chat_msg">hello &amp; welcome</span>`
	user, msg, ok := parseChatLine(html)
	if !ok {
		t.Fatalf("parseChatLine did not match")
	}
	if user != "minmay" {
		t.Errorf("user = %q, want minmay", user)
	}
	if msg != "hello & welcome" {
		t.Errorf("message = %q, want %q", msg, "hello & welcome")
	}
}

func TestParseChatLineNoMatch(t *testing.T) {
	if _, _, ok := parseChatLine("<div>not a chat line</div>"); ok {
		t.Errorf("expected no match")
	}
}
