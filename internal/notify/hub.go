package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// HubConfig configures a Hub.
type HubConfig struct {
	// AllowedOrigins are host patterns accepted for cross-origin upgrades.
	// Same-origin requests are always accepted.
	AllowedOrigins []string
	// OutboxSize bounds the frames queued per client. Defaults to 64.
	OutboxSize int
	// WriteTimeout bounds a single frame write. Defaults to 10s.
	WriteTimeout time.Duration
}

// Hub is the websocket endpoint for live task events.
type Hub struct {
	rooms   *RoomRegistry
	cfg     HubConfig
	logger  *slog.Logger
	clients atomic.Int64
}

// NewHub creates a Hub whose clients join rooms in rooms.
func NewHub(rooms *RoomRegistry, cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  rooms,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "hub")),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

type inboundFrame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event EventType `json:"event"`
	Data  any       `json:"data"`
}

type roomAck struct {
	TeamID    int64  `json:"teamId"`
	SubjectID int64  `json:"subjectId"`
	RoomName  string `json:"roomName"`
}

type errorData struct {
	Message string `json:"message"`
}

type client struct {
	id     string
	outbox chan any
}

func (c *client) ID() string { return c.id }

// Deliver queues ev without blocking.
func (c *client) Deliver(ev Event) bool {
	return c.send(ev)
}

func (c *client) send(frame any) bool {
	select {
	case c.outbox <- frame:
		return true
	default:
		return false
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{id: uuid.NewString(), outbox: make(chan any, h.cfg.OutboxSize)}
	log := h.logger.With(slog.String("client_id", c.id))
	h.clients.Add(1)
	log.Info("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, cancel, conn, c, log)
	}()

	defer func() {
		cancel()
		<-writerDone
		h.rooms.LeaveAll(c)
		h.clients.Add(-1)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		log.Info("client disconnected")
	}()

	for {
		var f inboundFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if !isExpectedClose(err) {
				log.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		h.handleFrame(c, f, log)
	}
}

func (h *Hub) handleFrame(c *client, f inboundFrame, log *slog.Logger) {
	switch f.Event {
	case EventJoinRoom, EventLeaveRoom:
		var room Room
		if err := json.Unmarshal(f.Data, &room); err != nil || !room.Valid() {
			c.send(outboundFrame{Event: EventError, Data: errorData{Message: "teamId and subjectId are required"}})
			return
		}
		ack := roomAck{TeamID: room.TeamID, SubjectID: room.SubjectID, RoomName: room.Name()}
		if f.Event == EventJoinRoom {
			h.rooms.Join(room, c)
			c.send(outboundFrame{Event: EventRoomJoined, Data: ack})
			log.Debug("client joined room", slog.String("room", ack.RoomName))
			return
		}
		h.rooms.Leave(room, c)
		c.send(outboundFrame{Event: EventRoomLeft, Data: ack})
		log.Debug("client left room", slog.String("room", ack.RoomName))
	default:
		c.send(outboundFrame{Event: EventError, Data: errorData{Message: fmt.Sprintf("unknown event %q", f.Event)}})
	}
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.outbox:
			wctx, done := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, frame)
			done()
			if err != nil {
				log.Debug("websocket write failed", slog.String("error", err.Error()))
				cancel()
				return
			}
		}
	}
}

func isExpectedClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
