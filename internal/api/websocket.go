package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"stoyanka/internal/events"
	"stoyanka/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsMessage is the wire frame pushed to websocket clients. Payload is
// the raw event body; Version lets the client merge without ordering
// guarantees.
type wsMessage struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Version   int64           `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub upgrades websocket connections and relays bus events for the
// topics each client asks for via ?topic= query parameters.
type Hub struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHub(bus *events.Bus, logger *zerolog.Logger) *Hub {
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "ws").Logger()
	}
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Доступ контролируется API-ключом на уровне шлюза
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: l,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		writeError(w, http.StatusBadRequest, "at least one topic query parameter is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan wsMessage, models.EventBufferSize),
		done: make(chan struct{}),
	}

	subs := make([]*events.Subscription, 0, len(topics))
	for _, topic := range topics {
		sub := h.bus.Subscribe(topic, models.EventBufferSize)
		subs = append(subs, sub)
		go client.forward(sub)
	}

	h.log.Debug().Strs("topics", topics).Msg("websocket client connected")

	go client.writePump()
	client.readPump() // blocks until the client goes away

	for _, sub := range subs {
		sub.Cancel()
	}
	client.close()
	h.log.Debug().Strs("topics", topics).Msg("websocket client disconnected")
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// forward relays one subscription into the shared send channel. Dropped
// frames are fine: the client reconciles from its poll cycle.
func (c *wsClient) forward(sub *events.Subscription) {
	for evt := range sub.C {
		msg := wsMessage{
			Topic:     evt.Topic,
			Type:      evt.Type,
			Version:   evt.Version,
			Payload:   evt.Payload,
			Timestamp: evt.CreatedAt,
		}
		select {
		case c.send <- msg:
		case <-c.done:
			return
		}
	}
}

// readPump discards inbound frames; its job is detecting disconnect and
// answering pings.
func (c *wsClient) readPump() {
	defer c.close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
