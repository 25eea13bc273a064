package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"polling-backend/models"
	"polling-backend/mq"
	"polling-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
	maxWatchers    = 10000
)

var errTooManyWatchers = errors.New("too many live result watchers")

// ResultsMessage is pushed to live result watchers.
type ResultsMessage struct {
	Type    string              `json:"type"`
	Results *models.PollResults `json:"results"`
}

// Hub tracks live result watchers per poll and pushes fresh results to them
// whenever a vote event arrives.
type Hub struct {
	polls    *service.PollService
	broker   mq.Broker
	upgrader websocket.Upgrader
	log      *logrus.Logger

	mu       sync.RWMutex
	watchers map[uuid.UUID]map[*watcher]struct{}
	count    int
}

// watcher is one websocket or SSE connection. send is closed by the hub when
// the watcher is removed.
type watcher struct {
	pollID uuid.UUID
	send   chan []byte
}

func NewHub(polls *service.PollService, broker mq.Broker, allowedOrigins []string, log *logrus.Logger) *Hub {
	h := &Hub{
		polls:    polls,
		broker:   broker,
		log:      log,
		watchers: make(map[uuid.UUID]map[*watcher]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run feeds vote events to watchers until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.broker.Subscribe(ctx, func(e mq.VoteEvent) {
		h.onVote(ctx, e)
	})
}

func (h *Hub) onVote(ctx context.Context, e mq.VoteEvent) {
	h.mu.RLock()
	n := len(h.watchers[e.PollID])
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	results, err := h.polls.Results(ctx, e.PollID)
	if err != nil {
		h.log.WithError(err).WithField("poll_id", e.PollID).Warn("loading results for live update")
		return
	}
	msg, err := json.Marshal(ResultsMessage{Type: "results", Results: results})
	if err != nil {
		h.log.WithError(err).Error("encoding live results")
		return
	}
	h.broadcast(e.PollID, msg)
}

// broadcast sends msg to every watcher of pollID. Watchers whose buffer is
// full are dropped.
func (h *Hub) broadcast(pollID uuid.UUID, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.watchers[pollID] {
		select {
		case w.send <- msg:
		default:
			h.log.WithField("poll_id", pollID).Warn("dropping slow live results watcher")
			h.removeLocked(w)
		}
	}
}

func (h *Hub) subscribe(pollID uuid.UUID) (*watcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count >= maxWatchers {
		return nil, errTooManyWatchers
	}
	w := &watcher{pollID: pollID, send: make(chan []byte, sendBuffer)}
	if h.watchers[pollID] == nil {
		h.watchers[pollID] = make(map[*watcher]struct{})
	}
	h.watchers[pollID][w] = struct{}{}
	h.count++
	return w, nil
}

func (h *Hub) unsubscribe(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(w)
}

func (h *Hub) removeLocked(w *watcher) {
	set, ok := h.watchers[w.pollID]
	if !ok {
		return
	}
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, w.pollID)
	}
	close(w.send)
	h.count--
}

// Watchers is the number of connected live result watchers.
func (h *Hub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// initialResults loads the current tally for a watcher about to connect and
// writes an error response when the poll can't be served.
func (h *Handler) initialResults(c *gin.Context) (*models.PollResults, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	results, err := h.polls.Results(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return nil, false
	}
	return results, true
}

// HandleWebSocket streams a poll's results, starting with the current tally.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	results, ok := h.initialResults(c)
	if !ok {
		return
	}
	first, err := json.Marshal(ResultsMessage{Type: "results", Results: results})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	w, err := h.hub.subscribe(results.PollID)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, KindInternal, err.Error())
		return
	}

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.unsubscribe(w)
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, first); err != nil {
		h.hub.unsubscribe(w)
		conn.Close()
		return
	}

	client := &wsClient{hub: h.hub, conn: conn, watcher: w}
	go client.writePump()
	go client.readPump()
}

type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	watcher *watcher
}

// readPump discards client messages and unsubscribes when the peer goes away.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unsubscribe(c.watcher)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("websocket read")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.watcher.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
