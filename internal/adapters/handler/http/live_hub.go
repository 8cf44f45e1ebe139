package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

const (
	liveSendBuffer   = 16
	liveWriteTimeout = 5 * time.Second
)

type liveMessage struct {
	Type    string           `json:"type"`
	State   domain.ListState `json:"state"`
	Version uint64           `json:"version"`
	Error   string           `json:"error,omitempty"`
	Items   []domain.Item    `json:"items"`
}

// one websocket connection
type liveClient struct {
	hub  *LiveHub
	conn *websocket.Conn
	send chan []byte
}

// LiveHub fans the reconciled list out to websocket clients. Run must be
// started before anything is published.
type LiveHub struct {
	list    ports.ListReader
	origins []string
	logger  *slog.Logger

	clients    map[*liveClient]bool
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	done       chan struct{}
}

func NewLiveHub(list ports.ListReader, origins []string, logger *slog.Logger) *LiveHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHub{
		list:       list,
		origins:    origins,
		logger:     logger,
		clients:    make(map[*liveClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		done:       make(chan struct{}),
	}
}

func (h *LiveHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			// the first frame is whatever the list holds right now
			client.send <- h.current()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case data := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("dropping slow live client")
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

func (h *LiveHub) PublishSnapshot(snapshot domain.Snapshot) {
	h.publish(liveMessage{
		Type:    "snapshot",
		State:   domain.ListReady,
		Version: snapshot.Version,
		Items:   completeList(snapshot.Items),
	})
}

func (h *LiveHub) PublishState(state domain.ListState, err error) {
	msg := liveMessage{
		Type:    "state",
		State:   state,
		Version: h.list.Version(),
		Items:   completeList(h.list.CurrentList()),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	h.publish(msg)
}

func (h *LiveHub) publish(msg liveMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode live message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *LiveHub) current() []byte {
	msg := liveMessage{
		Type:    "snapshot",
		State:   h.list.State(),
		Version: h.list.Version(),
		Items:   completeList(h.list.CurrentList()),
	}
	if err := h.list.Err(); err != nil {
		msg.Error = err.Error()
	}
	data, _ := json.Marshal(msg)
	return data
}

// Stream upgrades the request and keeps the client attached until either
// side goes away.
func (h *LiveHub) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("failed to accept websocket", "error", err)
		return
	}

	client := &liveClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, liveSendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *liveClient) writePump(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for msg := range c.send {
		wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
		err := c.conn.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			c.hub.logger.Debug("failed to write to live client", "error", err)
			return
		}
	}
}

// readPump only watches for the peer closing; clients never send data.
func (c *liveClient) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.hub.logger.Debug("live client disconnected", "error", err)
			}
			return
		}
	}
}

// completeList keeps the items key in every frame, so an empty list
// clears the client instead of reading as "unchanged".
func completeList(items []domain.Item) []domain.Item {
	if items == nil {
		return []domain.Item{}
	}
	return items
}
