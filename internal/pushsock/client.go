// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package pushsock is the real-time invalidation client. It receives
// server-originated change notifications over a websocket, joins a single
// tenant-scoped channel at a time, and survives reconnects by replaying the
// most recent join. Missed events during downtime are acceptable; the cache
// self-corrects on the next explicit fetch.
package pushsock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/websocket"

	"github.com/cardinalhq/tenantsync/internal/scope"
)

// Event types carried on the push channel.
const (
	EventDataUpdate   = "data-update"
	EventChatUpdate   = "chat-update"
	EventNewOrder     = "new-order"
	EventOrderUpdated = "order-updated"

	frameJoinTenant  = "join-tenant"
	frameLeaveTenant = "leave-tenant"
)

// noCtx attributes metric writes that happen off any request path.
var noCtx = context.Background()

var (
	pushEvents metric.Int64Counter
	reconnects metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tenantsync/internal/pushsock")

	var err error
	pushEvents, err = meter.Int64Counter(
		"tenantsync_push_events_total",
		metric.WithDescription("Push events received, by type"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create pushEvents counter: %w", err))
	}
	reconnects, err = meter.Int64Counter(
		"tenantsync_push_reconnects_total",
		metric.WithDescription("Websocket reconnect attempts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create reconnects counter: %w", err))
	}
}

// Event is one server-originated change notification.
type Event struct {
	Type     string          `json:"type"`
	TenantID string          `json:"tenantId"`
	Key      string          `json:"key,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// DocumentKey resolves the cache key affected by the event. Typed events map
// to their fixed documents; unknown types map to nothing.
func (e Event) DocumentKey() string {
	switch e.Type {
	case EventDataUpdate:
		return e.Key
	case EventChatUpdate:
		return "chat_messages"
	case EventNewOrder, EventOrderUpdated:
		return "orders"
	default:
		return ""
	}
}

type controlFrame struct {
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	ClientID string `json:"clientId,omitempty"`
}

// Handler receives decoded push events. It runs on the receive goroutine.
type Handler func(Event)

// Client maintains the websocket connection. Construct with NewClient, wire
// a Handler, then Start.
type Client struct {
	url      string
	origin   string
	handler  Handler
	logger   *slog.Logger
	clientID uuid.UUID

	mu          sync.Mutex
	conn        *websocket.Conn
	pendingJoin string // single slot: this client joins one tenant channel at a time
	closed      bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient builds a push client for a ws:// or wss:// URL.
func NewClient(wsURL string, handler Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:      wsURL,
		origin:   "http://localhost/",
		handler:  handler,
		logger:   logger,
		clientID: uuid.New(),
		done:     make(chan struct{}),
	}
}

// Start launches the connect/receive loop.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// JoinTenant requests membership in the tenant's channel. If the connection
// is not open yet the join is queued and flushed on connect; it is also
// replayed automatically after every reconnect.
func (c *Client) JoinTenant(tenantID string) {
	tenantID = scope.Normalize(tenantID)

	c.mu.Lock()
	c.pendingJoin = tenantID
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.send(conn, controlFrame{Type: frameJoinTenant, TenantID: tenantID, ClientID: c.clientID.String()})
	}
}

// LeaveTenant leaves the current tenant channel and clears the pending-join
// slot so a reconnect does not rejoin it.
func (c *Client) LeaveTenant() {
	c.mu.Lock()
	tenantID := c.pendingJoin
	c.pendingJoin = ""
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && tenantID != "" {
		c.send(conn, controlFrame{Type: frameLeaveTenant, TenantID: tenantID, ClientID: c.clientID.String()})
	}
}

// Close tears down the connection and stops the reconnect loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, err := websocket.Dial(c.url, "", c.origin)
		if err != nil {
			reconnects.Add(noCtx, 1, metric.WithAttributes(attribute.Bool("success", false)))
			c.logger.Warn("Push channel dial failed", "url", c.url, "error", err)
			if !c.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		reconnects.Add(noCtx, 1, metric.WithAttributes(attribute.Bool("success", true)))

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		join := c.pendingJoin
		c.mu.Unlock()

		if join != "" {
			c.send(conn, controlFrame{Type: frameJoinTenant, TenantID: join, ClientID: c.clientID.String()})
		}

		c.receiveLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		closed := c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if closed {
			return
		}
	}
}

func (c *Client) receiveLoop(conn *websocket.Conn) {
	for {
		var ev Event
		if err := websocket.JSON.Receive(conn, &ev); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Info("Push channel disconnected", "error", err)
			}
			return
		}

		pushEvents.Add(noCtx, 1, metric.WithAttributes(attribute.String("type", ev.Type)))
		if ev.DocumentKey() == "" {
			c.logger.Debug("Ignoring push event with no document mapping", "type", ev.Type)
			continue
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

func (c *Client) send(conn *websocket.Conn, frame controlFrame) {
	if err := websocket.JSON.Send(conn, frame); err != nil {
		c.logger.Warn("Push channel send failed", "frame", frame.Type, "error", err)
	}
}

// sleep waits d or until Close; it reports false when closing.
func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}
