package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
)

const maxMessageBytes = 1 << 20

type client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	slot   int
	joined bool
}

func (c *client) send(msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeouts.WebsocketWrite)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *client) joinedSlot() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, c.joined
}

func (c *client) setSlot(slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
	c.joined = true
}

func (c *client) close() {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) serveSocket(rm *room, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("websocket upgrade failed match_id=%s err=%v", rm.session.ID, err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	c := &client{conn: conn}
	rm.add(c)
	defer func() {
		rm.remove(c)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logf("websocket read failed match_id=%s err=%v", rm.session.ID, err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, rm, ServerMessage{Type: MessageError, Code: "VALIDATION_FAILED", Error: "malformed message"})
			continue
		}
		h.handleMessage(c, rm, msg)
	}
}

func (h *Hub) handleMessage(c *client, rm *room, msg ClientMessage) {
	session := rm.session
	switch strings.TrimSpace(msg.Type) {
	case MessageJoin:
		p, err := session.Join(msg.Slot, msg.PlayerID, msg.AuthToken)
		if err != nil {
			h.replyError(c, rm, err)
			return
		}
		c.setSlot(p.Slot)
		h.reply(c, rm, ServerMessage{
			Type:            MessageJoined,
			MatchID:         session.ID,
			Slot:            slotRef(p.Slot),
			PlayerID:        p.PlayerID,
			MinimumAgreeing: session.Policy.MinimumAgreeing(),
		})
	case MessageLoadout:
		slot, ok := c.joinedSlot()
		if !ok {
			h.replyError(c, rm, errNotJoined)
			return
		}
		if _, err := session.SubmitLoadout(slot, msg.Items); err != nil {
			h.replyError(c, rm, err)
		}
	case MessageResult:
		slot, ok := c.joinedSlot()
		if !ok {
			h.replyError(c, rm, errNotJoined)
			return
		}
		hash, err := session.SubmitResult(slot, msg.Records, msg.Metadata)
		if err != nil {
			h.replyError(c, rm, err)
			return
		}
		h.reply(c, rm, ServerMessage{Type: MessageSubmitted, MatchID: session.ID, Slot: slotRef(slot), Hash: hash})
	default:
		h.reply(c, rm, ServerMessage{Type: MessageError, Code: "VALIDATION_FAILED", Error: "unknown message type"})
	}
}

var errNotJoined = errors.New("join a slot first")

func (h *Hub) replyError(c *client, rm *room, err error) {
	code := errorCode(err)
	if errors.Is(err, errNotJoined) {
		code = "VALIDATION_FAILED"
	}
	h.reply(c, rm, ServerMessage{Type: MessageError, MatchID: rm.session.ID, Code: code, Error: err.Error()})
}

func (h *Hub) reply(c *client, rm *room, msg ServerMessage) {
	if err := c.send(msg); err != nil {
		h.logf("websocket send failed match_id=%s type=%s err=%v", rm.session.ID, msg.Type, err)
	}
}
