package webtiles

import "testing"

func TestVersionWatchable(t *testing.T) {
	cases := map[string]bool{
		"crawl-0.09":        false,
		"crawl-0.09.1":      false,
		"crawl-0.10":        true,
		"crawl-0.10-trunk":  true,
		"crawl-0.32-trunk":  true,
		"crawl-1.0":         true,
		"crawl-trunk":       true, // unparseable, default watchable
		"seeded-0.29.1-abc": true,
	}
	for gameID, want := range cases {
		if got := versionWatchable(gameID); got != want {
			t.Errorf("versionWatchable(%q) = %v, want %v", gameID, got, want)
		}
	}
}

func TestParseGameVersion(t *testing.T) {
	major, minor, ok := parseGameVersion("crawl-0.29.1")
	if !ok || major != 0 || minor != 29 {
		t.Errorf("got (%d, %d, %v), want (0, 29, true)", major, minor, ok)
	}

	if _, _, ok := parseGameVersion("crawl-trunk"); ok {
		t.Errorf("expected no parseable version")
	}
}
