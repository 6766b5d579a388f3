package chatcmd

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/crawlbeem/beem/internal/chatsource"
	"github.com/crawlbeem/beem/internal/domain"
	"github.com/crawlbeem/beem/internal/userstore"
)

var nickPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,20}$`)
var onOffPattern = regexp.MustCompile(`^(?i:on|off)$`)

// ChannelControl lets the "join"/"part" commands reach TVManager without
// chatcmd importing it directly.
type ChannelControl interface {
	JoinChannel(channel string) error
	PartChannel(channel string) error
}

// StatusReporter backs the admin "status" command.
type StatusReporter interface {
	Status() string
}

// Deps are the collaborators the built-in commands need.
type Deps struct {
	Store    userstore.Store
	HelpText string
	Channels ChannelControl
	Status   StatusReporter
}

// Builtins returns spec §4.3's built-in command table bound to deps.
func Builtins(deps Deps) []Command {
	return []Command{
		{
			Name: "bothelp",
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				text := strings.ReplaceAll(deps.HelpText, "%n", source.BotLogin())
				source.SendChat(text, chatsource.Normal)
				return nil
			},
		},
		{
			Name: "nick",
			Args: []ArgSpec{{Description: "nick", Required: false, Pattern: nickPattern}},
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				service := source.SourceIdent().Service
				if len(args) == 0 {
					nick := currentNick(deps.Store, service, targetUser)
					if nick == "" {
						source.SendChat(fmt.Sprintf("%s has no nick set", targetUser), chatsource.Normal)
					} else {
						source.SendChat(fmt.Sprintf("%s's nick is %s", targetUser, nick), chatsource.Normal)
					}
					return nil
				}
				if err := setNick(ctx, deps.Store, service, targetUser, args[0]); err != nil {
					return fmt.Errorf("set nick: %w", err)
				}
				source.SendChat(fmt.Sprintf("%s's nick is now %s", targetUser, args[0]), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "subscribe",
			Restrict: RequireUserSource | DisallowSingleUserMode,
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				u, _ := userstore.GetWTUser(deps.Store, targetUser)
				if u.Subscription == domain.SubscriptionSubscribed {
					source.SendChat(fmt.Sprintf("User %s is already subscribed", targetUser), chatsource.Normal)
					return nil
				}
				if err := userstore.SetWTSubscription(ctx, deps.Store, targetUser, domain.SubscriptionSubscribed); err != nil {
					return fmt.Errorf("subscribe: %w", err)
				}
				source.SendChat(fmt.Sprintf("Subscribed. %s will now watch all games of user %s", source.BotLogin(), targetUser), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "unsubscribe",
			Restrict: RequireUserSource | DisallowSingleUserMode,
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				u, _ := userstore.GetWTUser(deps.Store, targetUser)
				if u.Subscription == domain.SubscriptionBlocked {
					source.SendChat(fmt.Sprintf("User %s is already unsubscribed", targetUser), chatsource.Normal)
					return nil
				}
				if err := userstore.SetWTSubscription(ctx, deps.Store, targetUser, domain.SubscriptionBlocked); err != nil {
					return fmt.Errorf("unsubscribe: %w", err)
				}
				msg := fmt.Sprintf("Unsubscribed. %s will no longer watch games of user %s.", source.BotLogin(), targetUser)
				if strings.EqualFold(source.WatchedPlayer(), targetUser) {
					msg += " Bye!"
				}
				source.SendChat(msg, chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "twitch-user",
			Restrict: RequireUserSource,
			Args:     []ArgSpec{{Description: "handle", Required: false}},
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if len(args) == 0 {
					u, ok := userstore.GetWTUser(deps.Store, targetUser)
					if !ok || u.TwitchUsername == "" {
						source.SendChat(fmt.Sprintf("%s has no linked twitch handle", targetUser), chatsource.Normal)
						return nil
					}
					source.SendChat(fmt.Sprintf("%s is linked to twitch user %s", targetUser, u.TwitchUsername), chatsource.Normal)
					return nil
				}
				if !senderIsAdmin {
					return NewUserError("only admins may set a linked twitch user")
				}
				if err := userstore.SetWTTwitchUsername(ctx, deps.Store, targetUser, args[0]); err != nil {
					return fmt.Errorf("twitch-user: %w", err)
				}
				source.SendChat(fmt.Sprintf("%s is now linked to twitch user %s", targetUser, args[0]), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "twitch-reminder",
			Restrict: RequireUserSource,
			Args:     []ArgSpec{{Description: "on|off", Required: false, Pattern: onOffPattern}},
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if len(args) == 0 {
					u, _ := userstore.GetWTUser(deps.Store, targetUser)
					state := "off"
					if u.TwitchReminder {
						state = "on"
					}
					source.SendChat(fmt.Sprintf("twitch reminder is %s for %s", state, targetUser), chatsource.Normal)
					return nil
				}
				enabled := strings.EqualFold(args[0], "on")
				if err := userstore.SetWTTwitchReminder(ctx, deps.Store, targetUser, enabled); err != nil {
					return fmt.Errorf("twitch-reminder: %w", err)
				}
				source.SendChat(fmt.Sprintf("twitch reminder is now %s for %s", args[0], targetUser), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "player-only",
			Restrict: RequireUserSource,
			Args:     []ArgSpec{{Description: "on|off", Required: false, Pattern: onOffPattern}},
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if len(args) == 0 {
					u, _ := userstore.GetWTUser(deps.Store, targetUser)
					state := "off"
					if u.PlayerOnly {
						state = "on"
					}
					source.SendChat(fmt.Sprintf("player-only is %s for %s", state, targetUser), chatsource.Normal)
					return nil
				}
				enabled := strings.EqualFold(args[0], "on")
				if err := userstore.SetWTPlayerOnly(ctx, deps.Store, targetUser, enabled); err != nil {
					return fmt.Errorf("player-only: %w", err)
				}
				source.SendChat(fmt.Sprintf("player-only is now %s for %s", args[0], targetUser), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "join",
			Restrict: RequireBotSource,
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if deps.Channels == nil {
					return NewUserError("channel joins are unavailable right now")
				}
				if err := deps.Channels.JoinChannel(targetUser); err != nil {
					return fmt.Errorf("join: %w", err)
				}
				source.SendChat(fmt.Sprintf("queued a join for %s", targetUser), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "part",
			Restrict: RequireBotSource,
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if deps.Channels == nil {
					return NewUserError("channel joins are unavailable right now")
				}
				if err := deps.Channels.PartChannel(targetUser); err != nil {
					return fmt.Errorf("part: %w", err)
				}
				source.SendChat(fmt.Sprintf("left %s", targetUser), chatsource.Normal)
				return nil
			},
		},
		{
			Name:     "status",
			Restrict: RequireAdmin,
			Run: func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error {
				if deps.Status == nil {
					source.SendChat("status reporting is unavailable right now", chatsource.Normal)
					return nil
				}
				source.SendChat(deps.Status.Status(), chatsource.Normal)
				return nil
			},
		},
	}
}

func currentNick(store userstore.Store, service, user string) string {
	if service == "tv" {
		u, _ := userstore.GetTVUser(store, user)
		return u.Nick
	}
	u, _ := userstore.GetWTUser(store, user)
	return u.Nick
}

func setNick(ctx context.Context, store userstore.Store, service, user, nick string) error {
	if service == "tv" {
		return userstore.SetTVNick(ctx, store, user, nick)
	}
	return userstore.SetWTNick(ctx, store, user, nick)
}
