// Package config provides application configuration.
//
// Configuration is loaded from a single TOML file (default
// ./beem_config.toml, overridable with -c) into a typed Config struct.
// Secrets such as IRC passwords may also be supplied via environment
// variables (see overlaySecrets) so they never need to live in the checked-in
// config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/crawlbeem/beem/internal/shared"
)

// DefaultPath is used when -c is not given.
const DefaultPath = "./beem_config.toml"

// Logging holds logging_config.
type Logging struct {
	Format      string `toml:"format"`
	DateFmt     string `toml:"datefmt"`
	Level       string `toml:"level"`
	Filename    string `toml:"filename"`
	MaxBytes    int64  `toml:"max_bytes"`
	BackupCount int    `toml:"backup_count"`
}

// Bot describes one knowledge bot on the dcss IRC network.
type Bot struct {
	Nick       string   `toml:"nick"`
	WTPatterns []string `toml:"wt_patterns"`
	TVPatterns []string `toml:"tv_patterns"`
	// Primary indicates this bot echoes a caller-supplied prefix and is
	// addressed through the single-character [A-Za-z0-9] ID space; all
	// other bots use a 2-digit decimal ID and a FIFO reply queue.
	Primary bool `toml:"primary"`
	// Kind classifies the service this bot answers ("monster" or "repo");
	// empty means a plain stats lookup. It selects the chat "kind" a reply
	// relayed through this bot is delivered with (spec §4.2 scenario 4),
	// the Go equivalent of the original bot config's has_monster/has_git.
	Kind string `toml:"kind"`
}

// DCSS holds the knowledge-bot IRC network configuration.
type DCSS struct {
	Hostname    string   `toml:"hostname"`
	Port        int      `toml:"port"`
	Nick        string   `toml:"nick"`
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	UseSSL      bool     `toml:"use_ssl"`
	FakeConnect bool     `toml:"fake_connect"`
	BadPatterns []string `toml:"bad_patterns"`
	Bots        []Bot    `toml:"bots"`
}

// Webtiles holds the WT (game-spectator) configuration.
type Webtiles struct {
	ServerURL              string        `toml:"server_url"`
	ProtocolVersion        string        `toml:"protocol_version"`
	Username               string        `toml:"username"`
	Password               string        `toml:"password"`
	HelpText               string        `toml:"help_text"`
	MaxWatchedSubscribers  int           `toml:"max_watched_subscribers"`
	MaxGameIdle            time.Duration `toml:"max_game_idle"`
	GameRewatchTimeout     time.Duration `toml:"game_rewatch_timeout"`
	AutowatchEnabled       bool          `toml:"autowatch_enabled"`
	MinAutowatchSpectators int           `toml:"min_autowatch_spectators"`
	GreetingText           string        `toml:"greeting_text"`
	TwitchReminderText     string        `toml:"twitch_reminder_text"`
	TwitchReminderPeriod   time.Duration `toml:"twitch_reminder_period"`
	NeverWatch             []string      `toml:"never_watch"`
	Admins                 []string      `toml:"admins"`
	WatchUsername          string        `toml:"watch_username"`
	CommandPeriod          time.Duration `toml:"command_period"`
	CommandLimit           int           `toml:"command_limit"`
	// StatusAddr, if set, starts the read-only status HTTP endpoint
	// (internal/statusweb) on this address, e.g. "127.0.0.1:8081".
	StatusAddr string `toml:"status_addr"`
}

// Twitch holds the TV (streaming-platform chat) configuration.
type Twitch struct {
	Hostname              string        `toml:"hostname"`
	Port                  int           `toml:"port"`
	Nick                  string        `toml:"nick"`
	Password              string        `toml:"password"`
	MessageLimit          int           `toml:"message_limit"`
	ModeratorMessageLimit int           `toml:"moderator_message_limit"`
	MessageTimeout        time.Duration `toml:"message_timeout"`
	MaxChatIdle           time.Duration `toml:"max_chat_idle"`
	RequestExpireTime     time.Duration `toml:"request_expire_time"`
	MaxWatchedSubscribers int           `toml:"max_watched_subscribers"`
	MinIdle               time.Duration `toml:"min_idle"`
	WatchUser             string        `toml:"watch_user"`
	NeverWatch            []string      `toml:"never_watch"`
	Admins                []string      `toml:"admins"`
}

// Config holds all application configuration, decoded from a TOML file.
type Config struct {
	Logging  Logging  `toml:"logging_config"`
	DCSS     DCSS     `toml:"dcss"`
	Webtiles Webtiles `toml:"webtiles"`
	Twitch   Twitch   `toml:"twitch"`
	DBFile   string   `toml:"db_file"`

	// WebtilesEnabled/TwitchEnabled are derived, not decoded: a service is
	// enabled iff its table appeared in the file at all.
	WebtilesEnabled bool `toml:"-"`
	TwitchEnabled   bool `toml:"-"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", shared.ErrConfigInvalid, path, err)
	}

	cfg.WebtilesEnabled = meta.IsDefined("webtiles")
	cfg.TwitchEnabled = meta.IsDefined("twitch")

	overlaySecrets(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfigInvalid, err)
	}

	return &cfg, nil
}

// overlaySecrets lets a handful of secrets be supplied via environment
// variables instead of the TOML file, the same escape hatch the teacher's
// main.go uses godotenv for.
func overlaySecrets(cfg *Config) {
	if v := os.Getenv("BEEM_DCSS_PASSWORD"); v != "" {
		cfg.DCSS.Password = v
	}
	if v := os.Getenv("BEEM_WEBTILES_PASSWORD"); v != "" {
		cfg.Webtiles.Password = v
	}
	if v := os.Getenv("BEEM_TWITCH_PASSWORD"); v != "" {
		cfg.Twitch.Password = v
	}
}

func (c *Config) validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("db_file is required")
	}
	if strings.TrimSpace(c.DCSS.Nick) == "" {
		return fmt.Errorf("dcss.nick is required")
	}
	if c.DCSS.Hostname == "" {
		return fmt.Errorf("dcss.hostname is required")
	}
	for i, b := range c.DCSS.Bots {
		if b.Nick == "" {
			return fmt.Errorf("dcss.bots[%d].nick is required", i)
		}
		if len(b.WTPatterns) == 0 && len(b.TVPatterns) == 0 {
			return fmt.Errorf("dcss.bots[%d] (%s) needs at least one pattern list", i, b.Nick)
		}
		switch b.Kind {
		case "", "monster", "repo":
		default:
			return fmt.Errorf("dcss.bots[%d] (%s) has unknown kind %q", i, b.Nick, b.Kind)
		}
	}
	if c.WebtilesEnabled {
		if c.Webtiles.ServerURL == "" {
			return fmt.Errorf("webtiles.server_url is required when [webtiles] is present")
		}
		if c.Webtiles.MaxWatchedSubscribers <= 0 {
			return fmt.Errorf("webtiles.max_watched_subscribers must be positive")
		}
	}
	if c.TwitchEnabled {
		if c.Twitch.Hostname == "" {
			return fmt.Errorf("twitch.hostname is required when [twitch] is present")
		}
		if c.Twitch.MessageLimit <= 0 {
			return fmt.Errorf("twitch.message_limit must be positive")
		}
	}
	if c.Logging.Filename != "" {
		if c.Logging.MaxBytes <= 0 {
			return fmt.Errorf("logging_config.max_bytes is required when filename is set")
		}
		if c.Logging.BackupCount <= 0 {
			return fmt.Errorf("logging_config.backup_count is required when filename is set")
		}
	}
	return nil
}

// SingleUserMode reports whether the webtiles scheduler is pinned to one
// user, bypassing subscription/autowatch policy entirely.
func (w Webtiles) SingleUserMode() bool {
	return w.WatchUsername != ""
}
