package webtiles

import (
	"regexp"
	"strings"
)

// htmlEntities is the fixed entity set spec §4.5 names; WT only ever emits
// these, so a general HTML parser/unescaper is unneeded.
var htmlEntities = map[string]string{
	"&amp;":   "&",
	"&AMP;":   "&",
	"&percnt;": "%",
	"&gt;":    ">",
	"&lt;":    "<",
	"&quot;":  `"`,
	"&apos;":  "'",
	"&#39;":   "'",
	"&nbsp;":  " ",
}

// unescapeHTML performs a single pass substituting htmlEntities; it is not
// a general entity decoder by design (spec §4.5).
func unescapeHTML(s string) string {
	pairs := make([]string, 0, 2*len(htmlEntities))
	for entity, repl := range htmlEntities {
		pairs = append(pairs, entity, repl)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

var chatLinePattern = regexp.MustCompile(`(?s)<span[^>]*>([^<]*)</span>:?\s*<span[^>]*>(.*)</span>`)

// parseChatLine extracts (user, message) from WT's chat line markup, per
// spec §4.5: "<span>user</span>: <span>msg</span>", HTML-unescaped.
func parseChatLine(html string) (user, message string, ok bool) {
	m := chatLinePattern.FindStringSubmatch(html)
	if m == nil {
		return "", "", false
	}
	return unescapeHTML(strings.TrimSpace(m[1])), unescapeHTML(strings.TrimSpace(m[2])), true
}
