package userstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/crawlbeem/beem/internal/domain"
)

// GetWTUser returns a WT user row, if present.
func GetWTUser(s Store, name string) (domain.WTUser, bool) {
	row, ok := s.GetRow(TableWTUsers, []string{name})
	if !ok {
		return domain.WTUser{}, false
	}
	return rowToWTUser(row), true
}

// EnsureWTUser inserts a default row for name if one doesn't already
// exist, returning the (possibly pre-existing) user.
func EnsureWTUser(ctx context.Context, s Store, name string) (domain.WTUser, error) {
	if u, ok := GetWTUser(s, name); ok {
		return u, nil
	}
	u := domain.WTUser{Name: name}
	if err := s.AddRow(ctx, TableWTUsers, wtUserToRow(u)); err != nil {
		return domain.WTUser{}, fmt.Errorf("ensure wt user %s: %w", name, err)
	}
	return u, nil
}

// SetWTSubscription sets a user's subscription tier, creating the row if
// absent.
func SetWTSubscription(ctx context.Context, s Store, name string, sub domain.Subscription) error {
	if _, err := EnsureWTUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableWTUsers, []string{name}, "subscription", int(sub))
}

// SetWTNick sets a user's DCSS nick.
func SetWTNick(ctx context.Context, s Store, name, nick string) error {
	if _, err := EnsureWTUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableWTUsers, []string{name}, "nick", nick)
}

// SetWTTwitchUsername links a WT user to a TV handle.
func SetWTTwitchUsername(ctx context.Context, s Store, name, handle string) error {
	if _, err := EnsureWTUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableWTUsers, []string{name}, "twitch_username", handle)
}

// SetWTTwitchReminder toggles the Twitch reminder flag.
func SetWTTwitchReminder(ctx context.Context, s Store, name string, enabled bool) error {
	if _, err := EnsureWTUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableWTUsers, []string{name}, "twitch_reminder", boolToInt(enabled))
}

// SetWTPlayerOnly toggles the player-only knowledge-bot query restriction.
func SetWTPlayerOnly(ctx context.Context, s Store, name string, enabled bool) error {
	if _, err := EnsureWTUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableWTUsers, []string{name}, "player_only", boolToInt(enabled))
}

// FindWTUserByTwitchUsername scans the WT user table for the user linked
// to the given Twitch handle, used to resolve a TV channel back to the WT
// player it was opened for (spec §4.5 "dump", §4.3 "twitch-user").
func FindWTUserByTwitchUsername(s Store, handle string) (domain.WTUser, bool) {
	for _, row := range s.Rows(TableWTUsers) {
		u := rowToWTUser(row)
		if strings.EqualFold(u.TwitchUsername, handle) {
			return u, true
		}
	}
	return domain.WTUser{}, false
}

// GetTVUser returns a TV user row, if present.
func GetTVUser(s Store, name string) (domain.TVUser, bool) {
	row, ok := s.GetRow(TableTVUsers, []string{name})
	if !ok {
		return domain.TVUser{}, false
	}
	return rowToTVUser(row), true
}

// EnsureTVUser inserts a default row for name if absent.
func EnsureTVUser(ctx context.Context, s Store, name string) (domain.TVUser, error) {
	if u, ok := GetTVUser(s, name); ok {
		return u, nil
	}
	u := domain.TVUser{Name: name}
	if err := s.AddRow(ctx, TableTVUsers, tvUserToRow(u)); err != nil {
		return domain.TVUser{}, fmt.Errorf("ensure tv user %s: %w", name, err)
	}
	return u, nil
}

// SetTVNick sets a TV user's DCSS nick.
func SetTVNick(ctx context.Context, s Store, name, nick string) error {
	if _, err := EnsureTVUser(ctx, s, name); err != nil {
		return err
	}
	return s.SetRowField(ctx, TableTVUsers, []string{name}, "nick", nick)
}

func rowToWTUser(row Row) domain.WTUser {
	return domain.WTUser{
		Name:           asString(row["name"]),
		Nick:           asString(row["nick"]),
		Subscription:   domain.Subscription(asInt64(row["subscription"])),
		TwitchUsername: asString(row["twitch_username"]),
		TwitchReminder: asInt64(row["twitch_reminder"]) != 0,
		PlayerOnly:     asInt64(row["player_only"]) != 0,
	}
}

func wtUserToRow(u domain.WTUser) Row {
	return Row{
		"name_lower":      u.Key(),
		"name":            u.Name,
		"nick":            u.Nick,
		"subscription":    int(u.Subscription),
		"twitch_username": u.TwitchUsername,
		"twitch_reminder": boolToInt(u.TwitchReminder),
		"player_only":     boolToInt(u.PlayerOnly),
	}
}

func rowToTVUser(row Row) domain.TVUser {
	return domain.TVUser{
		Name: asString(row["name"]),
		Nick: asString(row["nick"]),
	}
}

func tvUserToRow(u domain.TVUser) Row {
	return Row{
		"name_lower": u.Key(),
		"name":       u.Name,
		"nick":       u.Nick,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
