/*
Package channel manages the persistent live channel of one chat room.

This file defines the Manager, which owns the STOMP-over-WebSocket connection of a room
session. It dials and subscribes on Connect, publishes outbound messages synchronously on
Send, and runs two goroutines per connection: a read pump that is the only producer of the
inbound stream, and a heartbeat loop that keeps the socket alive. The inbound stream
outlives individual connections so a reconnect does not disturb its consumer.
*/
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"accompany/internal/app/chat"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
	"accompany/internal/pkg/randx"
	"accompany/internal/pkg/stompx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for any traffic (frame, heart-beat or pong) from the broker.
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message and a STOMP heart-beat.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of one inbound frame.
	maxFrameSize = 64 * 1024

	// how long Close waits for the broker's DISCONNECT receipt.
	receiptWait = 2 * time.Second

	// default bound on dialing plus the CONNECT handshake.
	defaultConnectTimeout = 10 * time.Second

	streamBuffer = 256
)

var errClosed = errors.New("channel: manager closed")

// State is the lifecycle state of the live channel.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Delivery is one decoded inbound frame, in arrival order.
type Delivery struct {
	chat.Inbound

	// MessageID is the broker's message-id header.
	MessageID string

	ReceivedAt time.Time
}

// Config holds the connection parameters of a Manager.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the STOMP broker.
	URL string

	// Token is sent as a bearer token on the upgrade request and the CONNECT frame.
	Token string

	// ConnectTimeout bounds dialing plus the CONNECT handshake.
	ConnectTimeout time.Duration

	// Dialer overrides websocket.DefaultDialer, mostly in tests.
	Dialer *websocket.Dialer
}

// Manager owns the live channel of one room. It is safe for concurrent use.
type Manager struct {
	roomID    int64
	roomLabel string
	cfg       Config

	state atomic.Int32

	// lifecycle serializes Connect and Close.
	lifecycle sync.Mutex

	// connMu protects conn and subID.
	connMu sync.Mutex
	conn   *websocket.Conn
	subID  string

	// writeMu serializes frames on the socket so publish order equals call order.
	writeMu sync.Mutex

	stream   chan Delivery
	drops    chan error
	receipts chan string

	// closed is closed once Close starts.
	closed    chan struct{}
	closeOnce sync.Once

	// pumps tracks the goroutines of the current connection.
	pumps sync.WaitGroup

	logger zerolog.Logger
}

// NewManager creates a disconnected Manager for roomID.
func NewManager(roomID int64, cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	m := &Manager{
		roomID:    roomID,
		roomLabel: strconv.FormatInt(roomID, 10),
		cfg:       cfg,
		stream:    make(chan Delivery, streamBuffer),
		drops:     make(chan error, 1),
		receipts:  make(chan string, 1),
		closed:    make(chan struct{}),
		logger:    logx.Component("channel", roomID),
	}
	metrics.ChannelState.WithLabelValues(m.roomLabel).Set(float64(Disconnected))
	return m
}

// RoomID returns the room this Manager serves.
func (m *Manager) RoomID() int64 {
	return m.roomID
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stream returns the inbound deliveries. It has a single consumer, survives reconnects
// and is closed by Close.
func (m *Manager) Stream() <-chan Delivery {
	return m.stream
}

// Drops signals each unexpected loss of a connected channel. It is closed by Close.
func (m *Manager) Drops() <-chan error {
	return m.drops
}

// OnMessage consumes the stream on its own goroutine, calling handler for every
// delivery in arrival order. It must not be combined with another Stream consumer.
func (m *Manager) OnMessage(handler func(Delivery)) {
	go func() {
		for d := range m.stream {
			handler(d)
		}
	}()
}

func (m *Manager) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	metrics.ChannelState.WithLabelValues(m.roomLabel).Set(float64(to))
	return true
}

func (m *Manager) setState(to State) {
	m.state.Store(int32(to))
	metrics.ChannelState.WithLabelValues(m.roomLabel).Set(float64(to))
}

// Connect dials the broker, completes the STOMP handshake and subscribes to the room
// topic. It is a no-op when already connected. Failures leave the Manager Disconnected
// and are not retried here.
func (m *Manager) Connect(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	select {
	case <-m.closed:
		return errs.Wrap(errs.ErrChannel, errClosed)
	default:
	}

	if m.State() == Connected {
		return nil
	}
	if !m.transition(Disconnected, Connecting) {
		return errs.Wrap(errs.ErrChannel, fmt.Errorf("channel: connect in state %s", m.State()))
	}

	conn, subID, err := m.handshake(ctx)
	if err != nil {
		m.setState(Disconnected)
		m.logger.Warn().Err(err).Str("url", m.cfg.URL).Msg("Live channel connect failed.")
		return errs.Wrap(errs.ErrChannel, err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.subID = subID
	m.connMu.Unlock()

	// Connected before the pumps start, so an immediate read failure is reported as a drop.
	m.setState(Connected)

	done := make(chan struct{})
	m.pumps.Add(2)
	go m.readPump(conn, done)
	go m.heartbeat(conn, done)

	m.logger.Info().Str("subscription", subID).Msg("Live channel connected.")
	return nil
}

// handshake dials the socket, exchanges CONNECT/CONNECTED and subscribes.
func (m *Manager) handshake(ctx context.Context) (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	conn, resp, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("dial %s: %w (status %d)", m.cfg.URL, err, resp.StatusCode)
		}
		return nil, "", fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	fail := func(err error) (*websocket.Conn, string, error) {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, "", err
	}

	host := ""
	if u, perr := url.Parse(m.cfg.URL); perr == nil {
		host = u.Hostname()
	}
	heartBeat := stompx.FormatHeartBeat(int(pingPeriod.Milliseconds()), int(pongWait.Milliseconds()))

	if err := m.writeFrame(conn, stompx.Connect(host, m.cfg.Token, heartBeat)); err != nil {
		return fail(fmt.Errorf("send CONNECT: %w", err))
	}

	conn.SetReadLimit(maxFrameSize)
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fail(fmt.Errorf("await CONNECTED: %w", err))
		}
		f, err := stompx.Decode(data)
		if err != nil {
			return fail(err)
		}
		if f == nil {
			continue
		}
		if f.Command == frame.ERROR {
			return fail(fmt.Errorf("broker refused CONNECT: %s", f.Header.Get(stompx.HdrMessage)))
		}
		if f.Command == frame.CONNECTED {
			break
		}
		m.logger.Debug().Str("command", f.Command).Msg("Ignoring frame before CONNECTED.")
	}

	subID := randx.SubscriptionID()
	if err := m.writeFrame(conn, stompx.Subscribe(subID, stompx.SubscribeDestination(m.roomID))); err != nil {
		return fail(fmt.Errorf("send SUBSCRIBE: %w", err))
	}

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fail(err)
	}
	return conn, subID, nil
}

// writeFrame encodes f and writes it as one text message under the write lock.
func (m *Manager) writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	data, err := stompx.Encode(f)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	metrics.ChannelFrames.WithLabelValues("out").Inc()
	return nil
}

func (m *Manager) currentConn() *websocket.Conn {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.conn
}

// Send publishes out to the room. It only succeeds while Connected; writes are
// synchronous, so a nil error means the frame was handed to the socket in call order.
func (m *Manager) Send(out chat.Outbound) error {
	kind := chat.ClassifyContent(out.Content).String()

	if err := out.Validate(); err != nil {
		return err
	}

	conn := m.currentConn()
	if m.State() != Connected || conn == nil {
		metrics.SendFailures.WithLabelValues(kind).Inc()
		return errs.NewError(errs.ErrNotConnected)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return errs.NewError(errs.ErrUnknown, err)
	}

	if err := m.writeFrame(conn, stompx.Send(stompx.PublishDestination(m.roomID), body)); err != nil {
		metrics.SendFailures.WithLabelValues(kind).Inc()
		m.logger.Warn().Err(err).Str("kind", kind).Msg("Publish failed.")
		return errs.Wrap(errs.ErrChannel, err)
	}
	return nil
}

// readPump reads frames until the socket fails or is closed. It is the only producer
// of the stream and the drop signal.
func (m *Manager) readPump(conn *websocket.Conn, done chan struct{}) {
	defer m.pumps.Done()
	defer close(done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if !m.processInboundFrame(data) {
			readErr = errClosed
			break
		}
	}

	m.connMu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.connMu.Unlock()
	_ = conn.Close()

	if m.transition(Connected, Disconnected) {
		m.logger.Warn().Err(readErr).Msg("Live channel dropped.")
		select {
		case m.drops <- errs.Wrap(errs.ErrChannel, readErr):
		default:
			m.logger.Debug().Msg("Drop already signalled.")
		}
		return
	}

	if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		m.logger.Debug().Err(readErr).Msg("Read pump stopped during close.")
	}
}

// processInboundFrame handles one WebSocket payload. It returns false when the
// Manager is closing and the pump must stop.
func (m *Manager) processInboundFrame(data []byte) bool {
	f, err := stompx.Decode(data)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Broker sent an undecodable frame.")
		return true
	}
	if f == nil {
		return true
	}
	metrics.ChannelFrames.WithLabelValues("in").Inc()

	switch f.Command {
	case frame.MESSAGE:
		in, err := chat.DecodeInbound(f.Body)
		if err != nil {
			m.logger.Warn().Err(err).Bytes("body", f.Body).Msg("Dropping malformed live frame.")
			return true
		}
		d := Delivery{
			Inbound:    in,
			MessageID:  f.Header.Get(stompx.HdrMessageID),
			ReceivedAt: time.Now(),
		}
		select {
		case m.stream <- d:
			return true
		case <-m.closed:
			return false
		}

	case frame.RECEIPT:
		select {
		case m.receipts <- f.Header.Get(stompx.HdrReceiptID):
		default:
		}

	case frame.ERROR:
		m.logger.Error().
			Str("message", f.Header.Get(stompx.HdrMessage)).
			Bytes("detail", f.Body).
			Msg("Broker sent ERROR frame.")

	default:
		m.logger.Debug().Str("command", f.Command).Msg("Ignoring unexpected frame.")
	}
	return true
}

// heartbeat sends a WebSocket ping and a STOMP heart-beat every pingPeriod.
func (m *Manager) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	defer m.pumps.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				m.logger.Debug().Err(err).Msg("Error writing ping")
				_ = conn.Close()
				return
			}
			if err := m.writeFrame(conn, nil); err != nil {
				m.logger.Debug().Err(err).Msg("Error writing heart-beat")
				_ = conn.Close()
				return
			}
		}
	}
}

// Close unsubscribes, disconnects and closes the socket, then closes the stream and
// the drop signal. It is idempotent and safe in any state.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	first := false
	m.closeOnce.Do(func() {
		first = true
		close(m.closed)
	})
	if !first {
		return nil
	}

	m.setState(Closing)

	m.connMu.Lock()
	conn, subID := m.conn, m.subID
	m.conn = nil
	m.connMu.Unlock()

	if conn != nil {
		if err := m.writeFrame(conn, stompx.Unsubscribe(subID)); err != nil {
			m.logger.Debug().Err(err).Msg("UNSUBSCRIBE not sent.")
		}

		receipt := randx.ReceiptID()
		if err := m.writeFrame(conn, stompx.Disconnect(receipt)); err != nil {
			m.logger.Debug().Err(err).Msg("DISCONNECT not sent.")
		} else {
			m.awaitReceipt(receipt)
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil {
			m.logger.Debug().Err(err).Msg("Close message not sent.")
		}
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("Socket close error.")
		}
	}

	m.pumps.Wait()
	close(m.stream)
	close(m.drops)

	m.setState(Disconnected)
	m.logger.Info().Msg("Live channel closed.")
	return nil
}

func (m *Manager) awaitReceipt(id string) {
	timer := time.NewTimer(receiptWait)
	defer timer.Stop()

	for {
		select {
		case got := <-m.receipts:
			if got == id {
				return
			}
		case <-timer.C:
			m.logger.Debug().Str("receipt", id).Msg("No DISCONNECT receipt, closing anyway.")
			return
		}
	}
}
