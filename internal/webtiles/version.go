package webtiles

import (
	"strconv"
	"strings"
)

// minWatchableMinor is spec §4.6 step 1's version floor: game_id values
// that parse to a version below 0.10 are skipped ("crawl-0.09" not
// watched, "crawl-0.10" watched, per spec §8).
const minWatchableMinor = 10

// parseGameVersion extracts the (major, minor) version embedded in a
// game_id like "crawl-0.32-trunk" or "crawl-0.29.1". ok is false if no
// dotted version number could be found, in which case the caller should
// treat the game as watchable (version gating only excludes known-old
// releases, not unrecognized formats).
func parseGameVersion(gameID string) (major, minor int, ok bool) {
	fields := strings.FieldsFunc(gameID, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for _, f := range fields {
		parts := strings.SplitN(f, ".", 3)
		if len(parts) < 2 {
			continue
		}
		maj, err1 := strconv.Atoi(parts[0])
		min, err2 := strconv.Atoi(parts[1])
		if err1 == nil && err2 == nil {
			return maj, min, true
		}
	}
	return 0, 0, false
}

// versionWatchable reports whether gameID's embedded version meets the
// minWatchableMinor floor. Unparseable game_ids are watchable.
func versionWatchable(gameID string) bool {
	major, minor, ok := parseGameVersion(gameID)
	if !ok {
		return true
	}
	if major > 0 {
		return true
	}
	return minor >= minWatchableMinor
}
