// Package chatcmd implements ChatCommandEngine, the parsing/restriction/
// rate-limit/dispatch pipeline every inbound chat line runs through before
// it can invoke a built-in bot command (spec §4.3).
package chatcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/crawlbeem/beem/internal/chatsource"
)

// DefaultCommandPrefix and DefaultAdminTargetPrefix are spec §4.3's
// documented defaults, used when a Config leaves the field empty.
const (
	DefaultCommandPrefix     = "!"
	DefaultAdminTargetPrefix = "^"
)

// UserError is the only error ChatCommandEngine ever echoes to chat,
// spec §4.3 step 7 / §7's BotCommandError.
type UserError struct {
	msg string
}

func (e *UserError) Error() string { return e.msg }

// NewUserError builds a UserError with a fixed, user-facing message.
func NewUserError(format string, args ...any) *UserError {
	return &UserError{msg: fmt.Sprintf(format, args...)}
}

// ArgSpec describes one positional command argument.
type ArgSpec struct {
	Description string
	Required    bool
	Pattern     *regexp.Regexp // nil means "anything"
}

// Restriction flags a command may declare, spec §4.3 step 3.
type Restriction int

const (
	RequireAdmin Restriction = 1 << iota
	RequireUserSource
	RequireBotSource
	DisallowSingleUserMode
)

func (r Restriction) has(flag Restriction) bool { return r&flag != 0 }

// Handler executes a command once every restriction/argument/rate-limit
// check has passed. targetUser is the resolved acting user (the sender,
// or an admin's ^-redirected target); senderIsAdmin reflects the actual
// sender, not targetUser. A returned *UserError is echoed to chat; any
// other error is logged and suppressed (spec §4.3 step 7).
type Handler func(ctx context.Context, source chatsource.Source, targetUser string, senderIsAdmin bool, args []string) error

// Command is one built-in ChatCommandEngine command.
type Command struct {
	Name        string
	Restrict    Restriction
	Args        []ArgSpec
	Run         Handler
}

func (c Command) usage(prefix string) string {
	var b strings.Builder
	b.WriteString("usage: " + prefix + c.Name)
	for _, a := range c.Args {
		if a.Required {
			b.WriteString(" <" + a.Description + ">")
		} else {
			b.WriteString(" [" + a.Description + "]")
		}
	}
	return b.String()
}

// Config configures one ChatCommandEngine instance.
type Config struct {
	CommandPrefix     string
	AdminTargetPrefix string
	SingleUserMode    bool
}

func (c Config) prefix() string {
	if c.CommandPrefix == "" {
		return DefaultCommandPrefix
	}
	return c.CommandPrefix
}

func (c Config) targetPrefix() string {
	if c.AdminTargetPrefix == "" {
		return DefaultAdminTargetPrefix
	}
	return c.AdminTargetPrefix
}

// Engine runs the full spec §4.3 pipeline for one bot (shared across every
// chatsource.Source it is attached to).
type Engine struct {
	cfg      Config
	commands map[string]Command
	aliases  map[string]string
	limiter  *limiter
}

// New builds an Engine and registers "help" as an alias for "bothelp".
// The source's sanitized bot login is mapped to "bothelp" by Handle, per
// spec §4.3 step 2.
func New(cfg Config, commands []Command, limit RateLimit) *Engine {
	e := &Engine{
		cfg:      cfg,
		commands: make(map[string]Command, len(commands)),
		aliases:  make(map[string]string),
		limiter:  newLimiter(limit),
	}
	for _, c := range commands {
		e.commands[c.Name] = c
	}
	e.aliases["help"] = "bothelp"
	return e
}

// Handle runs the full pipeline for one inbound chat line. It returns the
// reply text to send to chat (possibly empty, meaning no reply) and
// whether the line was recognized as a command attempt at all (used by
// callers that fall through to knowledge-bot query recognition when it
// was not).
func (e *Engine) Handle(ctx context.Context, source chatsource.Source, sender, line string) (reply string, isCommand bool) {
	if strings.EqualFold(sender, source.BotLogin()) || source.IsDisallowedUser(sender) {
		return "", false
	}

	line = strings.TrimRight(line, " \t\r\n")
	prefix := e.cfg.prefix()
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}

	fields := strings.Fields(line[len(prefix):])
	if len(fields) == 0 {
		return "", false
	}
	name := strings.ToLower(fields[0])
	rest := fields[1:]

	if name == sanitizeLogin(source.BotLogin()) {
		name = "bothelp"
	}
	if alias, ok := e.aliases[name]; ok {
		name = alias
	}

	cmd, ok := e.commands[name]
	if !ok {
		return "", false
	}
	isAdmin := source.IsAdmin(sender)

	if !isAdmin && e.limiter.exceeded(source, sender) {
		slog.Info("chatcmd: rate limit exceeded", "user", sender, "command", name)
		return "", true
	}

	targetUser, rest, err := e.resolveTarget(sender, isAdmin, rest)
	if err != nil {
		return err.Error(), true
	}

	if err := e.checkRestrictions(cmd, source, isAdmin); err != nil {
		return err.Error(), true
	}

	args, err := e.validateArgs(cmd, rest)
	if err != nil {
		return err.Error(), true
	}

	if err := cmd.Run(ctx, source, targetUser, isAdmin, args); err != nil {
		var ue *UserError
		if errors.As(err, &ue) {
			return ue.Error(), true
		}
		slog.Error("chatcmd: command handler failed", "command", name, "error", err)
		return "", true
	}
	return "", true
}

// resolveTarget consumes a leading admin-target token ("^name") if
// present, per spec §4.3 step 4.
func (e *Engine) resolveTarget(sender string, isAdmin bool, rest []string) (string, []string, *UserError) {
	if len(rest) == 0 || !strings.HasPrefix(rest[0], e.cfg.targetPrefix()) {
		return sender, rest, nil
	}
	if !isAdmin {
		return "", nil, NewUserError("only admins may redirect a command to another user")
	}
	target := strings.TrimPrefix(rest[0], e.cfg.targetPrefix())
	if target == "" {
		return "", nil, NewUserError("missing username after %s", e.cfg.targetPrefix())
	}
	return target, rest[1:], nil
}

func (e *Engine) checkRestrictions(cmd Command, source chatsource.Source, isAdmin bool) *UserError {
	if cmd.Restrict.has(RequireAdmin) && !isAdmin {
		return NewUserError("%s%s is restricted to admins", e.cfg.prefix(), cmd.Name)
	}
	service := source.SourceIdent().Service
	if cmd.Restrict.has(RequireUserSource) && service != "wt" {
		return NewUserError("%s%s can only be used while watching a game", e.cfg.prefix(), cmd.Name)
	}
	if cmd.Restrict.has(RequireBotSource) && service != "tv" {
		return NewUserError("%s%s can only be used in a streaming chat", e.cfg.prefix(), cmd.Name)
	}
	if cmd.Restrict.has(DisallowSingleUserMode) && e.cfg.SingleUserMode {
		return NewUserError("%s%s is unavailable in single-user mode", e.cfg.prefix(), cmd.Name)
	}
	return nil
}

func (e *Engine) validateArgs(cmd Command, rest []string) ([]string, *UserError) {
	for i, spec := range cmd.Args {
		if i >= len(rest) {
			if spec.Required {
				return nil, NewUserError("%s", cmd.usage(e.cfg.prefix()))
			}
			continue
		}
		if spec.Pattern != nil && !spec.Pattern.MatchString(rest[i]) {
			return nil, NewUserError("%s", cmd.usage(e.cfg.prefix()))
		}
	}
	return rest, nil
}

func sanitizeLogin(login string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(login) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
