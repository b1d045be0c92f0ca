/*
Package devserver is an in-process implementation of the accompany backend.

This file defines the Conn struct, one STOMP session over a WebSocket connection. It
runs the read loop (CONNECT, SUBSCRIBE, UNSUBSCRIBE, SEND, DISCONNECT) and the write
loop that flushes queued frames and keeps the connection alive with pings and heart-beats.
*/
package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"accompany/internal/app/chat"
	"accompany/internal/app/user"
	"accompany/internal/pkg/auth/jwt"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
	"accompany/internal/pkg/randx"
	"accompany/internal/pkg/stompx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for any traffic from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message and a STOMP heart-beat.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of one frame sent by the client.
	maxFrameSize = 64 * 1024

	// capacity of the outbound frame queue.
	sendBuffer = 256
)

// Conn is one STOMP session.
type Conn struct {
	hub    *Hub
	store  *Store
	secret string

	// underlying WebSocket connection object.
	ws *websocket.Conn

	// bearer token of the upgrade request, used when CONNECT carries none.
	upgradeToken string

	// identity is set by CONNECT; read and written only by ReadPump.
	identity *jwt.Payload

	// memberID mirrors identity.ID for the broker rooms' logs.
	memberID string
	idMu     sync.RWMutex

	// subs maps subscription ids to chat room ids; ReadPump only.
	subs map[string]int64

	// a buffered channel used to queue encoded frames waiting to be written.
	send chan []byte

	// closed when ReadPump ends; WritePump then flushes and closes the socket.
	done      chan struct{}
	closeOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

// NewConn constructs a session for an upgraded connection.
func NewConn(hub *Hub, store *Store, secret string, ws *websocket.Conn, upgradeToken string) *Conn {
	return &Conn{
		hub:          hub,
		store:        store,
		secret:       secret,
		ws:           ws,
		upgradeToken: upgradeToken,
		subs:         make(map[string]int64),
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		logger:       logx.Component("broker-session", 0),
	}
}

// MemberID returns the authenticated member id, empty before CONNECT.
func (c *Conn) MemberID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()

	return c.memberID
}

// ReadPump reads frames until the connection fails or the session is refused.
func (c *Conn) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.ws.SetReadLimit(maxFrameSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error().Err(err).Msg("Failed to extend read deadline")
			return
		}

		if !c.processInboundFrame(data) {
			return
		}
	}
}

// cleanupOnDisconnect unsubscribes the session everywhere and stops WritePump.
func (c *Conn) cleanupOnDisconnect() {
	for _, roomID := range c.subs {
		c.hub.Unsubscribe(roomID, c)
	}
	clear(c.subs)

	if c.identity != nil {
		metrics.BrokerSessions.Dec()
	}

	c.closeOnce.Do(func() {
		close(c.done)
	})

	c.logger.Info().Msg("Session cleanup finished.")
}

// processInboundFrame handles one raw frame. It returns false when the session must end.
func (c *Conn) processInboundFrame(data []byte) bool {
	f, err := stompx.Decode(data)
	if err != nil {
		c.fail("malformed frame", err.Error())
		return false
	}
	if f == nil {
		return true
	}

	if f.Command == frame.CONNECT || f.Command == frame.STOMP {
		return c.handleConnect(f)
	}

	if c.identity == nil {
		c.fail("not connected", "send CONNECT first")
		return false
	}

	var ok bool
	switch f.Command {
	case frame.SUBSCRIBE:
		ok = c.handleSubscribe(f)
	case frame.UNSUBSCRIBE:
		ok = c.handleUnsubscribe(f)
	case frame.SEND:
		ok = c.handleSend(f)
	case frame.DISCONNECT:
		c.logger.Info().Msg("Client requested DISCONNECT.")
		ok = true
	default:
		c.fail("unsupported command", f.Command)
		return false
	}

	if ok {
		c.sendReceipt(f)
	}
	return ok
}

func (c *Conn) handleConnect(f *frame.Frame) bool {
	if c.identity != nil {
		c.fail("already connected", "")
		return false
	}

	token, ok := jwt.BearerToken(f.Header.Get(stompx.HdrAuthorization))
	if !ok {
		token = c.upgradeToken
	}

	payload, err := jwt.ParseToken(token, c.secret)
	if err != nil {
		c.logger.Warn().Err(err).Msg("CONNECT refused: invalid token.")
		c.fail("unauthorized", errs.NewError(errs.ErrUnauthorized).Message)
		return false
	}

	c.identity = payload
	c.idMu.Lock()
	c.memberID = payload.ID
	c.idMu.Unlock()
	metrics.BrokerSessions.Inc()

	heartBeat := stompx.FormatHeartBeat(int(pingPeriod.Milliseconds()), int(pongWait.Milliseconds()))
	c.enqueueFrame(stompx.Connected(randx.SessionID(), heartBeat))

	c.logger.Info().Str("member_id", payload.ID).Msg("STOMP session connected.")
	return true
}

func (c *Conn) handleSubscribe(f *frame.Frame) bool {
	subID := f.Header.Get(stompx.HdrID)
	roomID, ok := stompx.ParseSubscribeDestination(f.Header.Get(stompx.HdrDestination))
	if subID == "" || !ok {
		c.fail("invalid subscription", f.Header.Get(stompx.HdrDestination))
		return false
	}

	if !c.store.IsMember(roomID, c.identity.ID) {
		c.logger.Warn().Int64("room_id", roomID).Msg("SUBSCRIBE refused: not a participant.")
		c.fail("forbidden", errs.NewError(errs.ErrNotParticipant).Message)
		return false
	}

	if !c.hub.Subscribe(roomID, c, subID) {
		c.fail("broker unavailable", "")
		return false
	}
	c.subs[subID] = roomID
	return true
}

func (c *Conn) handleUnsubscribe(f *frame.Frame) bool {
	subID := f.Header.Get(stompx.HdrID)
	roomID, ok := c.subs[subID]
	if !ok {
		c.logger.Debug().Str("subscription", subID).Msg("UNSUBSCRIBE for unknown subscription ignored.")
		return true
	}
	delete(c.subs, subID)

	for _, other := range c.subs {
		if other == roomID {
			return true
		}
	}
	c.hub.Unsubscribe(roomID, c)
	return true
}

func (c *Conn) handleSend(f *frame.Frame) bool {
	roomID, ok := stompx.ParsePublishDestination(f.Header.Get(stompx.HdrDestination))
	if !ok {
		c.fail("invalid destination", f.Header.Get(stompx.HdrDestination))
		return false
	}

	var out chat.Outbound
	if err := json.Unmarshal(f.Body, &out); err != nil {
		c.fail("invalid body", err.Error())
		return false
	}
	if err := out.Validate(); err != nil {
		c.fail("invalid message", errs.UserMessage(err))
		return false
	}
	if out.ChatRoomID != 0 && out.ChatRoomID != roomID {
		c.fail("invalid message", "chatRoomId does not match destination")
		return false
	}

	msg, cerr := c.store.AppendMessage(roomID, identityUser(c.identity), out.Content)
	if cerr != nil {
		c.logger.Warn().Int64("room_id", roomID).Int("code", cerr.Code).Msg("SEND refused.")
		c.fail("forbidden", cerr.Message)
		return false
	}

	body, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Error marshaling message for broadcast.")
		return true
	}
	c.hub.Publish(roomID, msg.ID, body)
	return true
}

// sendReceipt answers a frame's receipt header, if any.
func (c *Conn) sendReceipt(f *frame.Frame) {
	if receipt := f.Header.Get(stompx.HdrReceipt); receipt != "" {
		c.enqueueFrame(stompx.Receipt(receipt))
	}
}

// fail queues an ERROR frame. The caller ends the session, after which WritePump
// flushes the frame and closes the connection.
func (c *Conn) fail(message, detail string) {
	c.logger.Warn().Str("error", message).Str("detail", detail).Msg("Sending ERROR frame.")
	c.enqueueFrame(stompx.Error(message, detail))
}

func (c *Conn) enqueueFrame(f *frame.Frame) bool {
	data, err := stompx.Encode(f)
	if err != nil {
		c.logger.Error().Err(err).Str("command", f.Command).Msg("Error encoding frame")
		return false
	}
	return c.enqueue(data)
}

// enqueue queues data without blocking. It returns false when the session ended or
// the queue is full.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Session send queue full, dropping frame")
		return false
	}
}

// WritePump writes queued frames to the WebSocket connection until the session ends.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case data := <-c.send:
			if !c.writeQueuedMessage(data) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, then a close message.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if !c.writeQueuedMessage(data) {
				return
			}
		default:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close message")
			}
			return
		}
	}
}

// writeQueuedMessage writes one encoded frame. It returns false if the loop should terminate.
func (c *Conn) writeQueuedMessage(data []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a WebSocket Ping and a STOMP heart-beat.
func (c *Conn) writePingMessage() bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	heartBeat, err := stompx.Encode(nil)
	if err != nil {
		return false
	}
	return c.writeQueuedMessage(heartBeat)
}

// identityUser converts token claims into the member identity stored with messages.
func identityUser(p *jwt.Payload) user.User {
	return user.User{ID: p.ID, Nickname: p.Nickname, ProfileImage: p.ProfileImage}
}
