package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/gorilla/websocket"
)

const (
	SubEvents     = "subscribeEvents"
	SubStateRoots = "subscribeStateRoots"
	debugWeb      = log.WebMonitoring
)

// SubscriptionRequest is one incoming WebSocket subscription.
type SubscriptionRequest struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"` // "kinds": event kind filter, string or array
	kinds  map[events.Kind]bool
}

func (r *SubscriptionRequest) wantsKind(kind events.Kind) bool {
	if len(r.kinds) == 0 {
		return true
	}
	return r.kinds[kind]
}

// notification is one ledger mutation handed from the writer to the hub.
// Exactly one of the two fields is set.
type notification struct {
	event *events.Event
	roots *ledger.StateRoots
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub manages client registration and fans ledger notifications out to
// subscribers. Clients are touched only from run(), so the ledger's writer
// never blocks on a slow socket.
type Hub struct {
	clients       map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	notifications chan notification
	ctx           context.Context
	cancel        context.CancelFunc
}

func newHub(ctx context.Context) *Hub {
	cctx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		notifications: make(chan notification, 256),
		ctx:           cctx,
		cancel:        cancel,
	}
}

// NotifyEvent queues a committed event for fan-out. Called inside the
// ledger's critical section; drops rather than blocks when the hub lags.
func (h *Hub) NotifyEvent(ev events.Event) {
	select {
	case h.notifications <- notification{event: &ev}:
	default:
	}
}

// NotifyStateRoots queues the roots current after a mutation.
func (h *Hub) NotifyStateRoots(roots ledger.StateRoots) {
	select {
	case h.notifications <- notification{roots: &roots}:
	default:
	}
}

func (h *Hub) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case n := <-h.notifications:
			h.dispatch(n)
		}
	}
}

// dispatch delivers one notification to every matching subscription.
func (h *Hub) dispatch(n notification) {
	for client := range h.clients {
		for _, req := range client.snapshotSubscriptions() {
			var data []byte
			var err error

			switch req.Method {
			case SubEvents:
				if n.event == nil || !req.wantsKind(n.event.Kind) {
					continue
				}
				payload := struct {
					Method string       `json:"method"`
					Result events.Event `json:"result"`
				}{
					Method: SubEvents,
					Result: *n.event,
				}
				data, err = json.Marshal(payload)

			case SubStateRoots:
				if n.roots == nil {
					continue
				}
				payload := struct {
					Method string            `json:"method"`
					Result ledger.StateRoots `json:"result"`
				}{
					Method: SubStateRoots,
					Result: *n.roots,
				}
				data, err = json.Marshal(payload)

			default:
				continue
			}

			if err != nil {
				log.Warn(debugWeb, "JSON marshal error", "method", req.Method, "err", err)
				continue
			}
			client.sendData(data)
		}
	}
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.Mutex
	subscriptions []*SubscriptionRequest
}

func (c *Client) sendData(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) addSubscription(req *SubscriptionRequest) {
	log.Info(debugWeb, "addSubscription", "method", req.Method)
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, req)
	c.mu.Unlock()
}

// snapshotSubscriptions copies the list so dispatch never holds the lock
// while marshaling. readPump appends concurrently.
func (c *Client) snapshotSubscriptions() []*SubscriptionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*SubscriptionRequest, len(c.subscriptions))
	copy(out, c.subscriptions)
	return out
}

// readPump handles WebSocket reads and subscription management
func (c *Client) readPump(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err) {
					log.Trace(debugWeb, "WebSocket close error", err)
				}
				return
			}
			log.Info(debugWeb, "Received message from client", message)

			var req SubscriptionRequest
			if err := json.Unmarshal(message, &req); err != nil {
				log.Warn(debugWeb, "Invalid subscription message", err)
				continue
			}

			switch req.Method {
			case SubEvents:
				// Handle kinds (string CSV vs array)
				switch v := req.Params["kinds"].(type) {
				case string:
					req.kinds = parseKindFilter([]interface{}{v})
				case []interface{}:
					req.kinds = parseKindFilter(v)
				case nil:
				default:
					log.Warn(debugWeb, "unexpected kinds type", fmt.Sprintf("%T", v))
					continue
				}
				c.addSubscription(&req)
			case SubStateRoots:
				c.addSubscription(&req)
			default:
				log.Warn(debugWeb, "Unknown subscription method", req.Method)
				continue
			}
			log.Info(debugWeb, "Subscribed", "method", req.Method)
		}
	}
}

func parseKindFilter(values []interface{}) map[events.Kind]bool {
	kinds := make(map[events.Kind]bool)
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				kinds[events.Kind(part)] = true
			}
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	return kinds
}

func (c *Client) writePump(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			for len(c.send) > 0 {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			w.Close()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request, wg *sync.WaitGroup) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(debugWeb, "serveWs Upgrade error", err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	hub.register <- client

	wg.Add(2)
	go client.writePump(hub.ctx, wg)
	go client.readPump(hub.ctx, wg)
}
