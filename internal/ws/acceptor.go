// Package ws provides the WebSocket acceptor that bridges browser clients
// to the session relay.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atelier3d/relay/internal/config"
	"github.com/atelier3d/relay/internal/relay"
)

// EventHandler processes the lifecycle and inbound events of a connection.
// The relay's session protocol handler implements it.
type EventHandler interface {
	Connect(sink relay.Sink) string
	HandleEvent(connID, event string, data json.RawMessage)
	Disconnect(connID string)
}

// Status is the health endpoint snapshot.
type Status struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Acceptor serves the WebSocket endpoint and dispatches each upgraded
// connection to the event handler via read/write pumps.
type Acceptor struct {
	cfg     config.WebSocketConfig
	handler EventHandler
	logger  *zap.Logger
	status  func() Status

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	mu         sync.Mutex
	clients    map[*Client]struct{}
	running    bool
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler, logger, and status
// must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, handler EventHandler, status func() Status, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		status:  status,
		quit:    make(chan struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// The editor is served from arbitrary origins during development; the
// relay performs no authentication, so origin checking gains nothing.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ListenAndServe starts the HTTP listener and serves WebSocket upgrades
// until Stop is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.serveWS)
	mux.HandleFunc("/healthz", a.serveHealth)

	a.mu.Lock()
	a.listener = listener
	a.httpServer = &http.Server{Handler: mux}
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		select {
		case <-a.quit:
			return nil
		default:
			return fmt.Errorf("serving: %w", err)
		}
	}
	return nil
}

// serveWS upgrades an HTTP request and starts the connection's pumps.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("upgrading connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := newClient(conn, a.cfg, a.logger)

	// http.Server.Shutdown does not close hijacked connections, so a
	// socket upgraded after Stop started must be refused here or its
	// pumps would outlive the acceptor.
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		conn.Close()
		a.logger.Debug("refusing connection, acceptor stopping",
			zap.String("remote_addr", r.RemoteAddr),
		)
		return
	}
	a.clients[client] = struct{}{}
	a.wg.Add(1)
	a.mu.Unlock()

	client.connID = a.handler.Connect(client)

	a.logger.Info("client connected",
		zap.String("connection_id", client.connID),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go client.writePump()

	go func() {
		defer a.wg.Done()
		start := time.Now()
		client.readPump(a.handler)

		a.mu.Lock()
		delete(a.clients, client)
		a.mu.Unlock()

		a.logger.Info("client disconnected",
			zap.String("connection_id", client.connID),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}

// serveHealth reports liveness with connection and room counts.
func (a *Acceptor) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.status())
}

// Stop gracefully stops the acceptor: no new connections are accepted,
// active client connections are closed, and the pumps are waited on.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)

	server := a.httpServer
	for client := range a.clients {
		client.conn.Close()
	}
	a.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
