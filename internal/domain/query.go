package domain

import "time"

// QueryKind records which knowledge-bot service a QueryEntry targets, so a
// relayed reply can be dispatched to the originating chat source with the
// right chat "kind".
type QueryKind int

const (
	// QueryNormal is a plain stats-lookup style query.
	QueryNormal QueryKind = iota
	// QueryMonster is a monster-lookup query (kind=monster on reply).
	QueryMonster
	// QueryRepo is a source-repo query (kind=repo on reply).
	QueryRepo
)

// SourceIdent is an opaque handle a ChatSource manager can re-resolve back
// to the originating chat source. QueryRouter never interprets it; it is
// round-tripped through whoever issued it.
type SourceIdent struct {
	Service string // "wt" or "tv"
	Key     string // e.g. "username\x00gameID" for WT, channel name for TV
}

// QueryEntry is a single in-flight knowledge-bot query, held by
// QueryRouter's per-bot BotState until answered or reclaimed.
type QueryEntry struct {
	ID         string
	Requester  string // chat nick that issued the query
	Source     SourceIdent
	SubmitTime time.Time
	Kind       QueryKind
	// CorrelationID is an opaque internal id (not the wire ID, which is
	// reused across queries) attached to every log line for this query's
	// round trip, so a relayed bot-to-bot chain can be grepped end to end.
	CorrelationID string
}

// Stale reports whether the entry's id is old enough to be dropped/reused,
// per spec §4.2: "an ID is reusable if its QueryEntry's submit_time is
// older than MAX_REQUEST_TIME".
func (q QueryEntry) Stale(now time.Time, maxRequestTime time.Duration) bool {
	return now.Sub(q.SubmitTime) >= maxRequestTime
}
