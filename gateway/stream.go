package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LogEvent is one execution log broadcast to stream subscribers
type LogEvent struct {
	FlowID string    `json:"flow_id"`
	Time   time.Time `json:"time"`
	Lines  []string  `json:"lines"`
}

// LogStream fans execution logs out to websocket subscribers. The flow
// editor subscribes while a test run is in flight and renders the log as it
// arrives. Slow subscribers are dropped rather than allowed to block
// broadcasts.
type LogStream struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan LogEvent
	closed  bool
}

// NewLogStream creates a log stream hub
func NewLogStream(logger *slog.Logger) *LogStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The gateway carries no auth; origin checking belongs to the
			// fronting proxy.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger:  logger.With("component", "log-stream"),
		clients: make(map[*websocket.Conn]chan LogEvent),
	}
}

// HandleSubscribe upgrades the connection and streams log events until the
// client disconnects
func (ls *LogStream) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := ls.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ls.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	events := make(chan LogEvent, 16)

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		_ = conn.Close()
		return
	}
	ls.clients[conn] = events
	ls.mu.Unlock()

	ls.logger.Debug("Stream subscriber connected", "remote", conn.RemoteAddr())

	// Reader drains control frames and detects disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ls.remove(conn)
				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			ls.remove(conn)
			return
		}
	}
	_ = conn.Close()
}

// Broadcast delivers an execution log to every subscriber
func (ls *LogStream) Broadcast(flowID string, lines []string) {
	if len(lines) == 0 {
		return
	}
	event := LogEvent{FlowID: flowID, Time: time.Now(), Lines: lines}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	for conn, ch := range ls.clients {
		select {
		case ch <- event:
		default:
			// Subscriber can't keep up; cut it loose
			delete(ls.clients, conn)
			close(ch)
		}
	}
}

// SubscriberCount reports the number of connected subscribers
func (ls *LogStream) SubscriberCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.clients)
}

// Close disconnects all subscribers
func (ls *LogStream) Close() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return
	}
	ls.closed = true
	for conn, ch := range ls.clients {
		close(ch)
		delete(ls.clients, conn)
	}
}

func (ls *LogStream) remove(conn *websocket.Conn) {
	ls.mu.Lock()
	if ch, ok := ls.clients[conn]; ok {
		delete(ls.clients, conn)
		close(ch)
	}
	ls.mu.Unlock()
	_ = conn.Close()
}
