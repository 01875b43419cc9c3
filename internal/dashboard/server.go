// Package dashboard serves a WebSocket feed of sync state.
//
// Connected clients receive the current SyncStatus on connect, then a
// message for every status change, cache change, queue change and
// completed sync cycle.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names the payload carried by a Message.
type MessageType string

const (
	// MessageTypeSyncStatus carries a full SyncStatus snapshot
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeTaskUpdate indicates a cached task was upserted or removed
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeQueueUpdate indicates the pending or failed counts changed
	MessageTypeQueueUpdate MessageType = "queue_update"

	// MessageTypeCycle indicates a sync cycle finished
	MessageTypeCycle MessageType = "cycle"
)

// Message is one frame of the feed.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const writeTimeout = 5 * time.Second

// peer is one connected WebSocket client. Frames are queued on outbox and
// written by the peer's own goroutine, so a slow client never stalls the
// others.
type peer struct {
	conn   *websocket.Conn
	outbox chan []byte
	status websocket.StatusCode
}

// Server fans feed messages out to every connected client.
type Server struct {
	addr       string
	bufferSize int
	listener   net.Listener
	httpServer *http.Server

	mu      sync.Mutex
	peers   map[*peer]struct{}
	stopped bool

	welcome func() (Message, bool)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Host to bind (default: all interfaces)
	Host string

	// ClientBuffer is the number of frames queued per client before the
	// client is disconnected as too slow (default: 64).
	ClientBuffer int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns the configuration used for a nil Config.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		ClientBuffer: 64,
		Logger:       log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server. Nothing listens until Start.
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = defaults.ClientBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		bufferSize: config.ClientBuffer,
		peers:      make(map[*peer]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		logger:     config.Logger,
	}
}

// SetWelcome sets the function producing the first message of every
// connection. It must be called before Start.
func (s *Server) SetWelcome(fn func() (Message, bool)) {
	s.welcome = fn
}

// Start listens on the configured address and serves /ws, /health and /.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the listener down. It is safe
// to call on a server that was never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for p := range s.peers {
		s.detachLocked(p, websocket.StatusGoingAway)
	}
	s.mu.Unlock()

	s.cancel()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return err
}

// Broadcast queues msg for every connected client without blocking.
// A client whose queue is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for p := range s.peers {
		select {
		case p.outbox <- data:
		default:
			s.logger.Printf("Warning: client too slow, disconnecting")
			s.detachLocked(p, websocket.StatusPolicyViolation)
		}
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

// detachLocked unregisters p and closes its outbox; the writer then closes
// the connection with status. s.mu must be held.
func (s *Server) detachLocked(p *peer, status websocket.StatusCode) bool {
	if _, ok := s.peers[p]; !ok {
		return false
	}
	delete(s.peers, p)
	p.status = status
	close(p.outbox)
	return true
}

func (s *Server) detach(p *peer) {
	s.mu.Lock()
	removed := s.detachLocked(p, websocket.StatusNormalClosure)
	count := len(s.peers)
	s.mu.Unlock()
	if removed {
		s.logger.Printf("Client disconnected (total: %d)", count)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	p := &peer{conn: conn, outbox: make(chan []byte, s.bufferSize)}
	// The welcome is queued before registration so it is the first frame.
	if s.welcome != nil {
		if msg, ok := s.welcome(); ok {
			if data, err := encode(msg); err == nil {
				p.outbox <- data
			}
		}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.peers[p] = struct{}{}
	count := len(s.peers)
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Printf("Client connected (total: %d)", count)

	go s.writeLoop(p)
	go s.readLoop(p)
}

// writeLoop drains the peer's outbox and closes the connection once the
// outbox is closed.
func (s *Server) writeLoop(p *peer) {
	defer s.wg.Done()
	for data := range p.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.logger.Printf("Failed to send to client: %v", err)
			s.detach(p)
			break
		}
	}

	s.mu.Lock()
	status := p.status
	s.mu.Unlock()
	reason := ""
	if status == websocket.StatusGoingAway {
		reason = "server shutting down"
	}
	_ = p.conn.Close(status, reason)
}

// readLoop detects client disconnects. Client frames are ignored.
func (s *Server) readLoop(p *peer) {
	defer s.wg.Done()
	for {
		if _, _, err := p.conn.Read(s.ctx); err != nil {
			s.detach(p)
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "famsync sync dashboard\n\nfeed:   ws://%s/ws\nhealth: http://%s/health\n", r.Host, r.Host)
}

// GetAddr returns the bound address once started, else the configured one.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
