package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tasksync/internal/docstore"
	"tasksync/internal/domain"
	"tasksync/internal/identity"
	"tasksync/internal/livestore"
	"tasksync/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// Client is one WebSocket task session. It owns an identity provider and a
// live store following it; every store change is pushed as a snapshot frame.
type Client struct {
	ID      string
	UserID  string // identity the connection was opened with
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
	Session *identity.Provider
	Store   *livestore.Store

	opTimeout time.Duration
	log       *slog.Logger
	closeOnce sync.Once
	Done      chan struct{}
}

func newClient(hub *Hub, userID string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		Hub:       hub,
		Session:   identity.NewProvider(),
		opTimeout: hub.cfg.OpTimeout,
		Done:      make(chan struct{}),
	}
	c.log = hub.log.With("client_id", c.ID)
	c.Store = livestore.New(hub.docs,
		livestore.WithCollection(hub.cfg.Collection),
		livestore.WithLogger(c.log.With("component", "livestore")),
		livestore.OnChange(c.pushView),
	)
	return c
}

// Run serves the connection until the peer goes away. It blocks.
func (c *Client) Run() {
	defer close(c.Done)

	go c.writePump()
	c.Hub.register(c)
	defer c.Hub.unregister(c)

	ctx, cancel := context.WithCancel(context.Background())
	c.Session.SignIn(c.UserID)
	// frames read below must already run under the signed-in identity
	if err := c.Store.Sync(c.Session); err != nil {
		c.log.Error("initial subscribe", "error", err)
	}
	following := make(chan struct{})
	go func() {
		defer close(following)
		c.Store.Follow(ctx, c.Session)
	}()

	c.readPump(ctx)

	cancel()
	<-following
	// the store is closed, nothing else sends
	close(c.Send)
}

// Close drops the connection; Run then tears the session down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.Conn.Close()
	})
}

func (c *Client) pushView(v livestore.View) {
	c.enqueue(Outbound{Type: MsgSnapshot, Payload: v})
}

func (c *Client) enqueue(msg Outbound) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("encode frame", "type", msg.Type, "error", err)
		return
	}
	select {
	case c.Send <- b:
	default:
		c.log.Warn("send buffer full, dropping slow client")
		c.Close()
	}
}

func (c *Client) reply(requestID string, err error, id string) {
	if err != nil {
		c.enqueue(Outbound{Type: MsgError, RequestID: requestID, Payload: ErrorPayload{Message: errorMessage(err)}})
		return
	}
	c.enqueue(Outbound{Type: MsgAck, RequestID: requestID, Payload: AckPayload{ID: id}})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("read error", "error", err)
			}
			return
		}
		// any frame counts as liveness
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(ctx, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Info("write error", "error", err)
				c.Close()
				// keep draining until Run closes Send
				for range c.Send {
				}
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply("", errBadFrame, "")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	switch in.Type {
	case MsgPing:
		c.enqueue(Outbound{Type: MsgPong, RequestID: in.RequestID})

	case MsgAdd:
		var p AddPayload
		if err := decode(in.Payload, &p); err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		id, err := c.Store.AddTask(opCtx, p.NewTask())
		c.reply(in.RequestID, err, id)

	case MsgToggle:
		var p IDPayload
		if err := decode(in.Payload, &p); err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		c.reply(in.RequestID, c.Store.ToggleTaskCompletion(opCtx, p.ID), p.ID)

	case MsgUpdate:
		var p UpdatePayload
		if err := decode(in.Payload, &p); err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		if cat, ok := p.Changes.Category.Value(); ok && !cat.Valid() {
			c.reply(in.RequestID, &validationError{msg: "unknown category"}, "")
			return
		}
		if !c.owns(p.ID) {
			c.reply(in.RequestID, errNoTask, "")
			return
		}
		c.reply(in.RequestID, c.Store.UpdateTask(opCtx, p.ID, p.Changes), p.ID)

	case MsgDelete:
		var p IDPayload
		if err := decode(in.Payload, &p); err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		if !c.owns(p.ID) {
			c.reply(in.RequestID, errNoTask, "")
			return
		}
		c.reply(in.RequestID, c.Store.DeleteTask(opCtx, p.ID), p.ID)

	case MsgAuth:
		var p AuthPayload
		if err := decode(in.Payload, &p); err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		userID, err := service.ParseJWT(p.Token)
		if err != nil {
			c.reply(in.RequestID, err, "")
			return
		}
		c.log.Info("session identity changed", "user_id", userID)
		c.Session.SignIn(userID)
		c.reply(in.RequestID, c.Store.Sync(c.Session), "")

	case MsgSignOut:
		c.Session.SignOut()
		c.reply(in.RequestID, c.Store.Sync(c.Session), "")

	default:
		c.reply(in.RequestID, errUnknownType, "")
	}
}

// owns reports whether id is in the session's current snapshot. Ids are
// not secret, so writes by id are limited to the caller's own tasks.
func (c *Client) owns(id string) bool {
	if c.Store.Identity() == "" {
		return true // the store ignores the write anyway
	}
	for _, t := range c.Store.Tasks() {
		if t.ID == id {
			return true
		}
	}
	return false
}

var (
	errNoTask      = &validationError{msg: "task not found"}
	errBadFrame    = &validationError{msg: "malformed frame"}
	errUnknownType = &validationError{msg: "unknown message type"}
)

// validationError is a client mistake; its message is safe to show.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &validationError{msg: "payload required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &validationError{msg: "malformed payload"}
	}
	if err := domain.Validator().Struct(v); err != nil {
		return &validationError{msg: err.Error()}
	}
	return nil
}

// errorMessage keeps backend details out of client frames.
func errorMessage(err error) string {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return verr.msg
	case errors.Is(err, domain.ErrInvalidTask):
		return err.Error()
	case errors.Is(err, docstore.ErrNotFound):
		return "task not found"
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrNoIdentity):
		return "invalid token"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "write failed"
	}
}
