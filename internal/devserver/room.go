/*
Package devserver is an in-process implementation of the accompany backend.

This file defines the Room struct, the broker hub of a single chat room's topic.
It tracks the subscribed STOMP sessions (register/unregister), fans published bodies
out as MESSAGE frames, and shuts itself down after a period without subscribers.
*/
package devserver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/stompx"
)

const broadcastChannelBuffer = 1024

// RoomInactivityTimeout is the duration after which a room without subscribers stops.
const RoomInactivityTimeout = 5 * time.Minute

// subscription binds a session to the subscription id it chose for this room.
type subscription struct {
	conn *Conn
	id   string
}

// delivery is one body published to the room's topic.
type delivery struct {
	messageID string
	body      []byte
}

// Room is the live topic of one chat room.
type Room struct {
	// ID is the chat room id.
	ID int64

	// destination is the topic subscribers listen on.
	destination string

	// clients maps each subscribed session to its subscription id.
	clients map[*Conn]string

	// a buffered channel of bodies to be delivered to all subscribers.
	broadcast chan delivery

	// a channel for sessions subscribing to the room.
	register chan subscription

	// a channel for sessions unsubscribing from the room.
	unregister chan *Conn

	// a write-only channel used to notify the Hub to forget this room.
	cleanupChan chan<- *Room

	// used to signal the Room to stop its Run loop immediately.
	stopChan chan struct{}
	stopOnce sync.Once

	// closed when Run returns.
	done chan struct{}

	// the timer used to track inactivity.
	shutdownTimer *time.Timer

	// mu protects access to the clients map.
	mu sync.RWMutex

	// structured logger with room context.
	logger zerolog.Logger
}

// NewRoom creates and initializes a new Room instance. The caller starts Run.
func NewRoom(roomID int64, cleanupChan chan<- *Room) *Room {
	return &Room{
		ID:            roomID,
		destination:   stompx.SubscribeDestination(roomID),
		clients:       make(map[*Conn]string),
		broadcast:     make(chan delivery, broadcastChannelBuffer),
		register:      make(chan subscription),
		unregister:    make(chan *Conn),
		cleanupChan:   cleanupChan,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		shutdownTimer: time.NewTimer(RoomInactivityTimeout),
		logger:        logx.Component("broker-room", roomID),
	}
}

// Stop sends a signal to immediately terminate the Room's Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("Received stop signal. Stopping room immediately.")
		close(r.stopChan)
	})
}

// Done is closed once the Run loop has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Run starts the main event loop for the Room.
func (r *Room) Run() {
	defer func() {
		r.shutdownTimer.Stop()

		// Hub.Shutdown closes cleanupChan once done is closed, so notify first.
		select {
		case r.cleanupChan <- r:
			r.logger.Debug().Msg("Sent cleanup notification to Hub.")
		default:
			r.logger.Warn().Msg("Hub cleanup channel full. Skipping cleanup notification.")
		}
		close(r.done)

		r.mu.Lock()
		clear(r.clients)
		r.mu.Unlock()

		r.logger.Info().Msg("Room Run loop finished.")
	}()

	for {
		select {
		case sub := <-r.register:
			r.mu.Lock()
			if r.shutdownTimer.Stop() {
				select {
				case <-r.shutdownTimer.C:
				default:
				}
			}
			r.clients[sub.conn] = sub.id
			total := len(r.clients)
			r.mu.Unlock()

			r.logger.Info().
				Str("member_id", sub.conn.MemberID()).
				Str("subscription", sub.id).
				Int("subscribers", total).
				Msg("Session subscribed.")

		case conn := <-r.unregister:
			r.mu.Lock()
			r.removeLocked(conn)
			r.mu.Unlock()

		case d := <-r.broadcast:
			r.mu.Lock()
			var stale []*Conn
			for conn, subID := range r.clients {
				data, err := stompx.Encode(stompx.Message(subID, d.messageID, r.destination, d.body))
				if err != nil {
					r.logger.Error().Err(err).Str("message_id", d.messageID).Msg("Error encoding MESSAGE frame.")
					continue
				}
				if !conn.enqueue(data) {
					stale = append(stale, conn)
				}
			}
			for _, conn := range stale {
				r.logger.Warn().
					Str("member_id", conn.MemberID()).
					Msg("Session send queue full or closed, unsubscribing.")
				r.removeLocked(conn)
			}
			r.mu.Unlock()

		case <-r.shutdownTimer.C:
			r.mu.RLock()
			empty := len(r.clients) == 0
			r.mu.RUnlock()
			if empty {
				r.logger.Info().Msgf("Room inactivity timeout (%s) reached. Shutting down.", RoomInactivityTimeout)
				return
			}

		case <-r.stopChan:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}
	}
}

// removeLocked drops conn and arms the inactivity timer when the room empties.
// Callers hold r.mu.
func (r *Room) removeLocked(conn *Conn) {
	if _, ok := r.clients[conn]; !ok {
		return
	}
	delete(r.clients, conn)

	r.logger.Info().
		Str("member_id", conn.MemberID()).
		Int("subscribers", len(r.clients)).
		Msg("Session unsubscribed.")

	if len(r.clients) == 0 {
		if r.shutdownTimer.Stop() {
			select {
			case <-r.shutdownTimer.C:
			default:
			}
		}
		r.shutdownTimer.Reset(RoomInactivityTimeout)
	}
}

// Register subscribes conn under subID. It returns false when the room has stopped.
func (r *Room) Register(conn *Conn, subID string) bool {
	select {
	case r.register <- subscription{conn: conn, id: subID}:
		return true
	case <-r.done:
		return false
	}
}

// Unregister removes conn from the room. It is a no-op on a stopped room.
func (r *Room) Unregister(conn *Conn) {
	select {
	case r.unregister <- conn:
	case <-r.done:
	}
}

// Publish queues body for delivery to every subscriber, the publisher included.
func (r *Room) Publish(messageID string, body []byte) bool {
	select {
	case r.broadcast <- delivery{messageID: messageID, body: body}:
		return true
	case <-r.done:
		return false
	default:
		r.logger.Warn().Str("message_id", messageID).Msg("Broadcast channel full, dropping delivery.")
		return false
	}
}

// Subscribers returns the number of subscribed sessions.
func (r *Room) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
