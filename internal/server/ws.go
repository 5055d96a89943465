package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rakeshkurakula/voice-training-app/internal/config"
	"github.com/rakeshkurakula/voice-training-app/internal/metrics"
	"github.com/rakeshkurakula/voice-training-app/internal/protocol"
	"github.com/rakeshkurakula/voice-training-app/internal/session"
)

// WSServer accepts WebSocket connections from voice training clients. Each
// connection owns exactly one transcription session; when the connection
// drops the session is torn down.
type WSServer struct {
	server   *http.Server
	upgrader websocket.Upgrader
	config   *config.ServerConfig
	logger   *slog.Logger
	registry *session.Registry
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connection tracking
	conns map[string]*wsClient

	// Basic counters
	messagesReceived  uint64
	messagesProcessed uint64
	decodeErrors      uint64
	mu                sync.RWMutex
}

// wsClient wraps one WebSocket connection with a write lock so the session's
// background transcription passes and the read loop can both send safely
type wsClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger
}

// send delivers one outbound message to the client. Write failures are
// logged and swallowed; a dead connection is detected by the read loop.
func (c *wsClient) send(msg protocol.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Warn("Failed to write message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
	}
}

// NewWSServer creates a new WebSocket server instance
func NewWSServer(cfg *config.ServerConfig, logger *slog.Logger, registry *session.Registry, m *metrics.Metrics) *WSServer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &WSServer{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients connect from app origins we do not control
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout: 0,
	}

	return s
}

// Start begins listening for WebSocket connections
func (s *WSServer) Start() error {
	s.logger.Info("WebSocket server starting",
		slog.String("address", s.server.Addr),
		slog.Int64("read_limit", s.config.ReadLimit),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the WebSocket server
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")

	s.cancel()

	// Close remaining connections to unblock their read loops
	s.mu.Lock()
	for _, client := range s.conns {
		client.conn.Close()
	}
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)

	s.wg.Wait()

	s.mu.RLock()
	received := s.messagesReceived
	processed := s.messagesProcessed
	decodeErrors := s.decodeErrors
	s.mu.RUnlock()

	s.logger.Info("WebSocket server stopped",
		slog.Uint64("messages_received", received),
		slog.Uint64("messages_processed", processed),
		slog.Uint64("decode_errors", decodeErrors),
	)

	return err
}

// handleWebSocket upgrades an HTTP request and runs the connection's session
func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	connID := uuid.New().String()
	client := &wsClient{
		id:     connID,
		conn:   conn,
		logger: s.logger.With(slog.String("connection_id", connID)),
	}

	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	s.registerClient(client)

	s.logger.Info("Client connected",
		slog.String("connection_id", connID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(client)
	}()
}

// readLoop consumes inbound messages until the connection drops
func (s *WSServer) readLoop(client *wsClient) {
	defer func() {
		client.conn.Close()
		s.unregisterClient(client)

		// Drop the session with the connection; the client is gone, so no
		// final transcript is delivered
		s.registry.Remove(client.id)

		s.logger.Info("Client disconnected", slog.String("connection_id", client.id))
	}()

	sess, err := s.registry.Ensure(client.id, client.send)
	if err != nil {
		client.logger.Error("Failed to create session", slog.String("error", err.Error()))
		return
	}

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				client.logger.Warn("Connection closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		s.mu.Lock()
		s.messagesReceived++
		s.mu.Unlock()
		s.metrics.RecordMessageReceived()

		msg, err := protocol.Decode(raw)
		if err != nil {
			s.mu.Lock()
			s.decodeErrors++
			s.mu.Unlock()
			s.metrics.RecordDecodeError()

			client.logger.Warn("Dropping undecodable message",
				slog.Int("size", len(raw)),
				slog.String("error", err.Error()),
			)
			continue
		}

		sess.HandleMessage(s.ctx, msg)

		s.mu.Lock()
		s.messagesProcessed++
		s.mu.Unlock()
		s.metrics.RecordMessageProcessed()
	}
}

func (s *WSServer) registerClient(client *wsClient) {
	s.mu.Lock()
	s.conns[client.id] = client
	count := len(s.conns)
	s.mu.Unlock()

	s.metrics.SetActiveConnections(count)
}

func (s *WSServer) unregisterClient(client *wsClient) {
	s.mu.Lock()
	delete(s.conns, client.id)
	count := len(s.conns)
	s.mu.Unlock()

	s.metrics.SetActiveConnections(count)
}

// GetStatistics returns current server statistics
func (s *WSServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		MessagesReceived:  s.messagesReceived,
		MessagesProcessed: s.messagesProcessed,
		DecodeErrors:      s.decodeErrors,
		ActiveConnections: uint64(len(s.conns)),
		ActiveSessions:    uint64(s.registry.Count()),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	MessagesReceived  uint64 `json:"messages_received"`
	MessagesProcessed uint64 `json:"messages_processed"`
	DecodeErrors      uint64 `json:"decode_errors"`
	ActiveConnections uint64 `json:"active_connections"`
	ActiveSessions    uint64 `json:"active_sessions"`
}
