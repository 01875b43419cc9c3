package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/retry"
)

// ClientConfig holds configuration for a document server client.
type ClientConfig struct {
	// BaseURL of the document server, e.g. http://localhost:8090
	BaseURL string

	// HTTPClient used for REST calls (default: 15s timeout)
	HTTPClient *http.Client

	// Retry governs blocking retries of reads. Writes are never retried
	// here; the pending operation queue owns write retries.
	Retry retry.Policy

	// Clock drives read retry delays.
	Clock clock.Clock

	// Logger for client activity
	Logger *log.Logger
}

// DefaultClientConfig returns sensible defaults for baseURL.
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Retry:      retry.Policy{MaxAttempts: 2, BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second},
		Clock:      clock.New(),
		Logger:     log.New(os.Stderr, "[docstore] ", log.LstdFlags),
	}
}

// Client is a Store backed by a remote Server.
type Client struct {
	base   *url.URL
	ws     string
	config *ClientConfig

	mu     sync.Mutex
	subs   map[*clientSub]struct{}
	closed bool
}

type clientSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client for the server at config.BaseURL.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", model.ErrInvalidArgument)
	}
	defaults := DefaultClientConfig(config.BaseURL)
	if config.HTTPClient == nil {
		config.HTTPClient = defaults.HTTPClient
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = defaults.Retry
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %v", model.ErrInvalidArgument, config.BaseURL, err)
	}
	ws := *base
	switch base.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path += "/v1/subscribe"

	return &Client{
		base:   base,
		ws:     ws.String(),
		config: config,
		subs:   make(map[*clientSub]struct{}),
	}, nil
}

func (c *Client) docURL(collection, id string) string {
	u := *c.base
	u.Path += "/v1/doc"
	u.RawQuery = url.Values{"collection": {collection}, "id": {id}}.Encode()
	return u.String()
}

// do sends a request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %v: %w", method, req.URL.Path, err, model.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
		return fromWire(resp.StatusCode, eb)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v: %w", err, model.ErrUnavailable)
	}
	return nil
}

// Get implements Store.Get.
func (c *Client) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := c.config.Retry.Do(ctx, c.config.Clock, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, c.docURL(collection, id), nil, &doc)
	})
	return doc, err
}

// Set implements Store.Set.
func (c *Client) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	if data == nil {
		data = json.RawMessage("null")
	}
	return c.do(ctx, http.MethodPut, c.docURL(collection, id), data, nil)
}

// Delete implements Store.Delete.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.docURL(collection, id), nil, nil)
}

// Query implements Store.Query.
func (c *Client) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode query: %v", model.ErrInvalidArgument, err)
	}
	u := *c.base
	u.Path += "/v1/query"

	var docs []Document
	err = c.config.Retry.Do(ctx, c.config.Clock, func(ctx context.Context) error {
		docs = nil
		return c.do(ctx, http.MethodPost, u.String(), body, &docs)
	})
	return docs, err
}

// Subscribe implements Store.Subscribe over a WebSocket.
//
// When the connection drops the subscription ends; the sync engine
// re-establishes listeners on its next cycle.
func (c *Client) Subscribe(ctx context.Context, q Query, fn func([]Document)) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClosed
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(ctx, c.ws, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %v: %w", q.Collection, err, model.ErrUnavailable)
	}
	conn.SetReadLimit(maxBodyBytes)

	fail := func(err error) (func(), error) {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil, err
	}

	if err := wsjson.Write(ctx, conn, q); err != nil {
		return fail(fmt.Errorf("failed to send query: %v: %w", err, model.ErrUnavailable))
	}
	var first subscribeFrame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		return fail(fmt.Errorf("failed to read initial result set: %v: %w", err, model.ErrUnavailable))
	}
	if first.Error != nil {
		return fail(fromWire(0, *first.Error))
	}

	sub := &clientSub{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer func() {
			c.mu.Lock()
			delete(c.subs, sub)
			c.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}()

		fn(first.Documents)
		for {
			var frame subscribeFrame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				if ctx.Err() == nil && !isNormalClosure(err) {
					c.config.Logger.Printf("Warning: subscription on %s ended: %v", q.Collection, err)
				}
				return
			}
			if frame.Error != nil {
				c.config.Logger.Printf("Warning: subscription on %s failed: %s", q.Collection, frame.Error.Message)
				continue
			}
			fn(frame.Documents)
		}
	}()

	return func() {
		cancel()
		<-sub.done
	}, nil
}

func isNormalClosure(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF)
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	u := *c.base
	u.Path += "/health"
	return c.do(ctx, http.MethodGet, u.String(), nil, nil)
}

// Close implements Store.Close. It ends every active subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	subs := make([]*clientSub, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		<-s.done
	}
	return nil
}
