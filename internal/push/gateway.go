package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"fx-autotrader/internal/infrastructure"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscriber is the slice of nats.JetStreamContext the gateway needs.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// topicPrefixes are the subjects clients may subscribe to.
var topicPrefixes = []string{infrastructure.SubjectTick, infrastructure.SubjectCandle, infrastructure.SubjectEvent}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Gateway relays NATS subjects to websocket clients. One NATS subscription
// is held per topic while at least one client wants it.
type Gateway struct {
	logger        *zap.Logger
	js            Subscriber
	upgrader      websocket.Upgrader
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool
	natsSubs      map[string]*nats.Subscription
	mu            sync.RWMutex
}

// NewGateway accepts connections from origins; "*" or an empty list allows any.
func NewGateway(js Subscriber, origins []string, logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:        logger,
		js:            js,
		upgrader:      websocket.Upgrader{CheckOrigin: originChecker(origins)},
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		natsSubs:      make(map[string]*nats.Subscription),
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(allowed) == 0 || allowed[origin]
	}
}

// ValidTopic reports whether topic is a relayable subject.
func ValidTopic(topic string) bool {
	for _, p := range topicPrefixes {
		if strings.HasPrefix(topic, p) && len(topic) > len(p) {
			return true
		}
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	infrastructure.WSConnections.Inc()

	go g.writePump(client)
	g.readPump(client)
}

// Clients returns the number of connected clients.
func (g *Gateway) Clients() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic := range g.subscriptions {
			g.removeLocked(topic, c)
		}
		close(c.send)
		g.mu.Unlock()
		infrastructure.WSConnections.Dec()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action string `json:"action"` // "subscribe", "unsubscribe"
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if !ValidTopic(req.Topic) {
			g.logger.Warn("rejected websocket topic", zap.String("topic", req.Topic))
			continue
		}

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.subscriptions[req.Topic] == nil {
				if err := g.subscribeToNATS(req.Topic); err != nil {
					g.logger.Error("failed to subscribe to NATS", zap.String("topic", req.Topic), zap.Error(err))
					g.mu.Unlock()
					continue
				}
				g.subscriptions[req.Topic] = make(map[*Client]bool)
			}
			g.subscriptions[req.Topic][c] = true
			g.logger.Info("client subscribed to topic", zap.String("topic", req.Topic))
		case "unsubscribe":
			g.removeLocked(req.Topic, c)
		}
		g.mu.Unlock()
	}
}

// removeLocked drops c from topic and releases the NATS subscription when
// nobody is left. g.mu must be held.
func (g *Gateway) removeLocked(topic string, c *Client) {
	clients, ok := g.subscriptions[topic]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) > 0 {
		return
	}
	if sub, ok := g.natsSubs[topic]; ok {
		_ = sub.Unsubscribe()
		delete(g.natsSubs, topic)
		g.logger.Info("unsubscribed from NATS as no clients left", zap.String("topic", topic))
	}
	delete(g.subscriptions, topic)
}

func (g *Gateway) writePump(c *Client) {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (g *Gateway) subscribeToNATS(topic string) error {
	// topic can be "market.tick.EURUSD" or "autotrade.event.*"
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) { g.broadcast(topic, msg.Data) },
		nats.DeliverNew(), nats.AckNone())
	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	g.logger.Info("subscribed to NATS topic", zap.String("topic", topic))
	return nil
}

func (g *Gateway) broadcast(topic string, data []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for c := range g.subscriptions[topic] {
		select {
		case c.send <- data:
		default:
			// Do not block, just drop if channel is full
		}
	}
}
