// Package webtiles implements the WT side of beem: the lobby feed
// (WTLobby), individual spectated games (WTGameSession), and the scheduler
// that decides what to watch (WTManager), per spec §4.4-4.6.
package webtiles

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/coder/websocket"

	"github.com/crawlbeem/beem/internal/shared"
)

// deflateTrailer is appended to every inbound permessage-deflate frame
// before inflating, per RFC 7692 §7.2.2 (the final empty-block bytes the
// compressor elides).
var deflateTrailer = []byte{0x00, 0x00, 0xff, 0xff}

// wsConn wraps one coder/websocket connection to a WT server, applying the
// server's raw-deflate framing (each message is independently deflated,
// not a shared per-connection stream) to inbound frames and sending
// outbound ones as raw-deflated JSON in binary frames.
type wsConn struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	pending []map[string]any // messages decoded from a "msgs" batch, not yet consumed
}

func dial(ctx context.Context, url string) (*wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", shared.ErrConnectFailed, url, err)
	}
	conn.SetReadLimit(8 << 20)
	return &wsConn{url: url, conn: conn}, nil
}

// frameEnvelope matches a WT frame, which carries either a single message
// under "msg" or a batch of them under "msgs" (spec §6's wire protocol).
type frameEnvelope struct {
	Msgs []map[string]any `json:"msgs"`
}

// readMessage returns the next logical message, reading and inflating a
// new frame only once any batched "msgs" from a prior frame are drained.
func (c *wsConn) readMessage(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", shared.ErrReadFailed, err)
	}
	plain, err := inflate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", shared.ErrProtocolViolation, err)
	}

	var env frameEnvelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, fmt.Errorf("%w: decode json: %w", shared.ErrProtocolViolation, err)
	}
	if len(env.Msgs) > 0 {
		c.mu.Lock()
		c.pending = env.Msgs[1:]
		c.mu.Unlock()
		return env.Msgs[0], nil
	}

	var msg map[string]any
	if err := json.Unmarshal(plain, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode json: %w", shared.ErrProtocolViolation, err)
	}
	return msg, nil
}

// writeMessage JSON-encodes and sends v as a single deflate-raw frame.
func (c *wsConn) writeMessage(ctx context.Context, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	compressed, err := deflate(plain)
	if err != nil {
		return fmt.Errorf("deflate message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageBinary, compressed); err != nil {
		return fmt.Errorf("%w: write: %w", shared.ErrWriteFailed, err)
	}
	return nil
}

func (c *wsConn) close() {
	c.conn.Close(websocket.StatusNormalClosure, "done")
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(append(data, deflateTrailer...)))
	defer r.Close()
	return io.ReadAll(r)
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), deflateTrailer), nil
}
