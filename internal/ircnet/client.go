// Package ircnet wraps github.com/ergochat/irc-go's ircevent client into
// the reconnect-with-backoff shape the rest of beem's components share
// (queryrouter's knowledge-bot network and tv's streaming-platform IRC),
// generalizing the teacher's container.StopContainer idempotent-teardown
// idiom and its exponential-backoff retry helpers in container/ttl.go.
package ircnet

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"

	"github.com/crawlbeem/beem/internal/shared"
)

// ReconnectTimeout is spec §5's RECONNECT_TIMEOUT: the backoff after any
// read error or closed socket before a connection task retries.
const ReconnectTimeout = 5 * time.Second

// Config describes one IRC network connection.
type Config struct {
	Hostname string
	Port     int
	Nick     string
	Username string
	Password string // non-empty requires SASL PLAIN
	UseSSL   bool
	// RequestCaps are extra capability names requested at registration,
	// e.g. "twitch.tv/membership" for TV.
	RequestCaps []string
}

// Handlers are the events a Client owner cares about. Any may be nil.
type Handlers struct {
	// OnPrivmsg fires for every PRIVMSG received, including CTCP-free
	// channel and direct messages.
	OnPrivmsg func(from, target, message string)
	// OnAuthenticated fires once SASL (numeric 900) or, if no password is
	// configured, registration (001) completes.
	OnAuthenticated func()
	// OnAuthFailed fires on SASL failure (numeric 904); per spec §7 this
	// is fatal and the caller should request process shutdown.
	OnAuthFailed func(reason string)
}

// Client is a reconnecting IRC client shared by queryrouter and tv.
type Client struct {
	cfg      Config
	handlers Handlers

	mu            sync.Mutex
	conn          *ircevent.Connection
	authenticated bool
}

// New creates a Client. Call Run to connect and service the connection
// until ctx is canceled.
func New(cfg Config, handlers Handlers) *Client {
	return &Client{cfg: cfg, handlers: handlers}
}

// Run connects and reconnects with ReconnectTimeout backoff until ctx is
// canceled. It blocks; callers should run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.runOnce(ctx); err != nil {
			slog.Warn("ircnet: connection ended", "host", c.cfg.Hostname, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectTimeout):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn := &ircevent.Connection{
		Server:      fmt.Sprintf("%s:%d", c.cfg.Hostname, c.cfg.Port),
		Nick:        c.cfg.Nick,
		User:        firstNonEmpty(c.cfg.Username, c.cfg.Nick),
		RealName:    firstNonEmpty(c.cfg.Username, c.cfg.Nick),
		RequestCaps: c.cfg.RequestCaps,
	}
	if c.cfg.UseSSL {
		conn.UseTLS = true
		conn.TLSConfig = &tls.Config{ServerName: c.cfg.Hostname}
	}
	if c.cfg.Password != "" {
		conn.SASLLogin = c.cfg.Nick
		conn.SASLPassword = c.cfg.Password
		conn.UseSASL = true
	}

	conn.AddCallback("PRIVMSG", func(m ircmsg.Message) {
		if len(m.Params) < 2 {
			return
		}
		from := m.Nick()
		c.dispatchPrivmsg(from, m.Params[0], m.Params[1])
	})
	conn.AddCallback("900", func(ircmsg.Message) {
		c.setAuthenticated(true)
		if c.handlers.OnAuthenticated != nil {
			c.handlers.OnAuthenticated()
		}
	})
	conn.AddCallback("904", func(m ircmsg.Message) {
		reason := "SASL authentication failed"
		if len(m.Params) > 0 {
			reason = m.Params[len(m.Params)-1]
		}
		if c.handlers.OnAuthFailed != nil {
			c.handlers.OnAuthFailed(reason)
		}
	})
	conn.AddCallback("001", func(ircmsg.Message) {
		if c.cfg.Password == "" {
			c.setAuthenticated(true)
			if c.handlers.OnAuthenticated != nil {
				c.handlers.OnAuthenticated()
			}
		}
	})

	if err := conn.Connect(); err != nil {
		return fmt.Errorf("%w: connect to %s: %w", shared.ErrConnectFailed, conn.Server, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.authenticated = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.Loop()
	}()

	select {
	case <-ctx.Done():
		conn.Quit()
		<-done
		return ctx.Err()
	case <-done:
		return fmt.Errorf("%w: connection loop exited", shared.ErrReadFailed)
	}
}

func (c *Client) dispatchPrivmsg(from, target, message string) {
	if c.handlers.OnPrivmsg != nil {
		c.handlers.OnPrivmsg(from, target, message)
	}
}

func (c *Client) setAuthenticated(v bool) {
	c.mu.Lock()
	c.authenticated = v
	c.mu.Unlock()
}

// Ready reports whether the connection has completed SASL (or plain
// registration, if no password is configured).
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.authenticated
}

// Privmsg sends a PRIVMSG to target. It is a no-op (logged) if not
// currently connected.
func (c *Client) Privmsg(target, message string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		slog.Warn("ircnet: dropped privmsg, not connected", "target", target)
		return
	}
	conn.Privmsg(target, message)
}

// Join joins channel.
func (c *Client) Join(channel string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Join(channel)
}

// Part leaves channel.
func (c *Client) Part(channel string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Part(channel)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
