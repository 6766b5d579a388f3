// Package domain contains core domain types shared across beem's
// components: users, lobby state, the watch queue, and in-flight queries.
package domain

import "strings"

// Subscription is a WT user's watch-priority tier.
type Subscription int

const (
	// SubscriptionBlocked marks a user as globally ineligible to watch.
	SubscriptionBlocked Subscription = -1
	// SubscriptionNone is the default tier.
	SubscriptionNone Subscription = 0
	// SubscriptionSubscribed marks a user as eligible for a reserved slot.
	SubscriptionSubscribed Subscription = 1
)

// WTUser is a user record in the webtiles service table.
type WTUser struct {
	Name            string // stored case, primary key is strings.ToLower(Name)
	Nick            string
	Subscription    Subscription
	TwitchUsername  string
	TwitchReminder  bool
	PlayerOnly      bool
}

// Key returns the case-folded primary key used for lookups.
func (u WTUser) Key() string {
	return strings.ToLower(u.Name)
}

// CanWatch reports whether the user is not globally blocked.
func (u WTUser) CanWatch() bool {
	return u.Subscription != SubscriptionBlocked
}

// TVUser is a user record in the TV service table.
type TVUser struct {
	Name string
	Nick string
}

// Key returns the case-folded primary key used for lookups.
func (u TVUser) Key() string {
	return strings.ToLower(u.Name)
}
