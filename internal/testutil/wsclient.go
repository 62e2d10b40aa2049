// Package testutil provides test clients for integration testing.
package testutil

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a simple WebSocket test client for integration testing.
// It speaks the relay's envelope protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewWSClient dials the given ws:// URL and returns a test client.
//
// Precondition: url must point at a listening relay /ws endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	client := &WSClient{conn: conn, t: t}
	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return client
}

// SendEvent marshals payload into an envelope and sends it.
//
// Precondition: payload must be JSON-marshalable.
// Postcondition: The envelope is written, or the test fails.
func (c *WSClient) SendEvent(event string, payload any) {
	c.t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshalling %s payload: %v", event, err)
	}
	if err := c.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		c.t.Fatalf("sending %s: %v", event, err)
	}
}

// ExpectEvent reads messages until one carries the named event, skipping
// others, and returns its payload. Fails the test on timeout.
//
// Precondition: event must be non-empty.
// Postcondition: Returns the matching envelope's data.
func (c *WSClient) ExpectEvent(event string, timeout time.Duration) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)

	for {
		_ = c.conn.SetReadDeadline(deadline)
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %q: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
		c.t.Logf("skipping %q while waiting for %q", env.Event, event)
	}
}

// ExpectSilence asserts that no message at all arrives within the window.
//
// Postcondition: Fails the test if any envelope is received.
func (c *WSClient) ExpectSilence(window time.Duration) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(window))
	var env envelope
	err := c.conn.ReadJSON(&env)
	if err == nil {
		c.t.Fatalf("expected silence, received %q", env.Event)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return
	}
	// A read error other than timeout means the connection broke.
	c.t.Fatalf("expected timeout, got: %v", err)
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
