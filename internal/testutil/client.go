// Package testutil holds a WebSocket client for end-to-end tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one text frame received from the server.
type Frame struct {
	Raw    []byte
	Fields map[string]any
}

func (f Frame) Kind() string {
	kind, _ := f.Fields["kind"].(string)
	return kind
}

// Users returns the roster list of a roster frame.
func (f Frame) Users() []string {
	raw, _ := f.Fields["users"].([]any)
	users := make([]string, 0, len(raw))
	for _, u := range raw {
		if s, ok := u.(string); ok {
			users = append(users, s)
		}
	}
	return users
}

// Client is a WebSocket peer that collects everything the server sends.
type Client struct {
	ServerURL string

	conn   *websocket.Conn
	frames chan Frame
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	closeErr error
}

func NewClient(serverURL string) *Client {
	return &Client{
		ServerURL: serverURL,
		frames:    make(chan Frame, 256),
		done:      make(chan struct{}),
	}
}

// Connect dials <ServerURL>/ws and starts reading.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			c.mu.Unlock()
			return
		}

		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			fields = nil
		}

		select {
		case c.frames <- Frame{Raw: data, Fields: fields}:
		default:
			// tests never queue this many frames
		}
	}
}

// SendRaw writes one text frame.
func (c *Client) SendRaw(frame string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(string(data))
}

// Receive waits for the next frame.
func (c *Client) Receive(timeout time.Duration) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-time.After(timeout):
		return Frame{}, fmt.Errorf("timeout waiting for frame")
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
		}
		return Frame{}, fmt.Errorf("client disconnected: %w", c.Err())
	}
}

// ReceiveKind skips frames until one of the given kind arrives.
func (c *Client) ReceiveKind(kind string, timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, fmt.Errorf("timeout waiting for %q frame", kind)
		}
		f, err := c.Receive(remaining)
		if err != nil {
			return Frame{}, err
		}
		if f.Kind() == kind {
			return f, nil
		}
	}
}

// ExpectSilence reports an error if any frame arrives within d.
func (c *Client) ExpectSilence(d time.Duration) error {
	select {
	case f := <-c.frames:
		return fmt.Errorf("unexpected frame: %s", f.Raw)
	case <-time.After(d):
		return nil
	}
}

// Done is closed when the server side of the connection goes away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close sends a normal closure and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
