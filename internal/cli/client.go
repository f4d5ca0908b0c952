// Package cli provides a client for the extimer-bridge API.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// Client communicates with the extimer-bridge API over its Unix socket.
type Client struct {
	socketPath string
	httpClient *http.Client
	// streamClient has no timeout; websocket.Dial rejects clients that set one.
	streamClient *http.Client
}

// NewClient creates a new API client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DialContext: dial},
		},
		streamClient: &http.Client{
			Transport: &http.Transport{DialContext: dial},
		},
	}
}

// Status is the state of the capabilities service.
// This duplicates api.StatusResponse; the cli package does not import
// internal/api.
type Status struct {
	Status       string   `json:"status"`
	Initialized  bool     `json:"initialized"`
	Capabilities []string `json:"capabilities"`
}

// TimerSnapshot holds the timer properties.
type TimerSnapshot struct {
	Elapsed       float64 `json:"elapsed"`
	State         string  `json:"state"`
	StateDuration float64 `json:"state_duration"`
	IsPaused      bool    `json:"is_paused"`
	Version       string  `json:"version"`
}

// TimerChange is one batch of timer property changes.
type TimerChange struct {
	Changed     map[string]any `json:"changed"`
	Invalidated []string       `json:"invalidated,omitempty"`
}

// Message is a WebSocket event.
type Message struct {
	Type      string         `json:"type"`
	Extension *Status        `json:"extension,omitempty"`
	Timer     *TimerSnapshot `json:"timer,omitempty"`
	Error     string         `json:"error,omitempty"`
	Event     string         `json:"event,omitempty"`
	Change    *TimerChange   `json:"change,omitempty"`
}

// ErrorResponse is an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

type callRequest struct {
	Args []string `json:"args"`
}

// Status returns the capabilities service state.
func (c *Client) Status() (*Status, error) {
	var result Status
	if err := c.getJSON("/api/v1/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Timer returns the current timer properties.
func (c *Client) Timer() (*TimerSnapshot, error) {
	var result TimerSnapshot
	if err := c.getJSON("/api/v1/timer", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Call invokes a timer method through the daemon.
func (c *Client) Call(method string, args []string) error {
	body, err := json.Marshal(callRequest{Args: args})
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Post("http://unix/api/v1/timer/"+url.PathEscape(method), "application/json", bytes.NewReader(body))
	if err != nil {
		return c.connError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Watch streams events to fn until ctx is cancelled or the daemon closes
// the connection.
func (c *Client) Watch(ctx context.Context, fn func(Message)) error {
	conn, _, err := websocket.Dial(ctx, "ws://unix/api/v1/ws", &websocket.DialOptions{
		HTTPClient: c.streamClient,
	})
	if err != nil {
		return c.connError(err)
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		fn(msg)
	}
}

func (c *Client) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get("http://unix" + path)
	if err != nil {
		return c.connError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) connError(err error) error {
	return fmt.Errorf("connect to %s (is the daemon running?): %w", c.socketPath, err)
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
