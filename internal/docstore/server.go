package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// maxBodyBytes bounds request bodies and WebSocket frames.
const maxBodyBytes = 16 << 20

// subscribeFrame is one server-to-client WebSocket message.
type subscribeFrame struct {
	Documents []Document `json:"documents"`
	Error     *errorBody `json:"error,omitempty"`
}

// Server exposes a Store over HTTP and WebSocket:
//
//	GET    /health
//	GET    /v1/doc?collection=C&id=I     document JSON
//	PUT    /v1/doc?collection=C&id=I     body is the document data
//	DELETE /v1/doc?collection=C&id=I
//	POST   /v1/query                     body is a Query, returns []Document
//	GET    /v1/subscribe                 WebSocket; first client frame is a
//	                                     Query, server streams result sets
type Server struct {
	store Store
	addr  string

	ln  net.Listener
	srv *http.Server

	// streams holds the cancel func of every open subscription.
	mu      sync.Mutex
	streams map[*websocket.Conn]context.CancelFunc
	closing bool
	wg      sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8090). Zero picks a free port.
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns the configuration used for a nil Config.
func DefaultConfig() *Config {
	return &Config{
		Port:   8090,
		Logger: log.New(os.Stderr, "[docserver] ", log.LstdFlags),
	}
}

// NewServer creates a document server in front of store.
func NewServer(store Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	return &Server{
		store:   store,
		addr:    fmt.Sprintf(":%d", config.Port),
		streams: make(map[*websocket.Conn]context.CancelFunc),
		logger:  config.Logger,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/doc", s.handleGet)
	mux.HandleFunc("PUT /v1/doc", s.handleSet)
	mux.HandleFunc("DELETE /v1/doc", s.handleDelete)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/subscribe", s.handleSubscribe)
	return mux
}

// Start serves Handler on the configured port in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Document server listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every subscription and shuts the listener down. It does not
// close the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.streams {
		cancel()
	}
	s.mu.Unlock()

	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down document server: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	s.logger.Println("Document server stopped")
	return err
}

// GetAddr returns the bound address once started, else the configured one.
func (s *Server) GetAddr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of open subscriptions.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"subscriptions": s.ClientCount(),
	})
}

func docRef(r *http.Request) (string, string, error) {
	collection := r.URL.Query().Get("collection")
	id := r.URL.Query().Get("id")
	if collection == "" || id == "" {
		return "", "", fmt.Errorf("%w: collection and id are required", model.ErrInvalidArgument)
	}
	return collection, id, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection, id, err := docRef(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	doc, err := s.store.Get(r.Context(), collection, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	collection, id, err := docRef(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: failed to read body: %v", model.ErrInvalidArgument, err))
		return
	}
	if err := s.store.Set(r.Context(), collection, id, data); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, id, err := docRef(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Delete(r.Context(), collection, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q Query
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&q); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed query: %v", model.ErrInvalidArgument, err))
		return
	}
	docs, err := s.store.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !s.track(conn, cancel) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer func() {
		if s.untrack(conn) {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	var q Query
	if err := wsjson.Read(ctx, conn, &q); err != nil {
		s.logger.Printf("Failed to read subscription query: %v", err)
		return
	}

	send := func(frame subscribeFrame) error {
		wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
		defer wcancel()
		return wsjson.Write(wctx, conn, frame)
	}

	unsubscribe, err := s.store.Subscribe(ctx, q, func(docs []Document) {
		if docs == nil {
			docs = []Document{}
		}
		if err := send(subscribeFrame{Documents: docs}); err != nil {
			cancel()
		}
	})
	if err != nil {
		code, _ := classify(err)
		_ = send(subscribeFrame{Error: &errorBody{Code: code, Message: err.Error()}})
		return
	}
	defer unsubscribe()

	// Clients never send after the query; CloseRead cancels on disconnect.
	<-conn.CloseRead(ctx).Done()
}

// track registers an open subscription. It fails once Stop has begun.
func (s *Server) track(conn *websocket.Conn, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.streams[conn] = cancel
	s.wg.Add(1)
	return true
}

// untrack removes a subscription and reports whether Stop has begun.
func (s *Server) untrack(conn *websocket.Conn) (closing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[conn]; ok {
		delete(s.streams, conn)
		s.wg.Done()
	}
	return s.closing
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
