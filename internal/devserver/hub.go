/*
Package devserver is an in-process implementation of the accompany backend.

This file defines the Hub, the broker's registry of live rooms. It creates a Room on
the first subscription, routes publishes to it, and forgets rooms that stopped.
*/
package devserver

import (
	"sync"

	"github.com/rs/zerolog"

	"accompany/internal/pkg/logx"
)

// registerAttempts bounds retries when a room stops between lookup and register.
const registerAttempts = 3

// Hub coordinates all live rooms of the broker.
type Hub struct {
	// rooms stores every running Room, keyed by chat room id.
	rooms map[int64]*Room

	// mu protects concurrent access to the rooms map.
	mu sync.RWMutex

	// the channel used by Rooms to notify the Hub that they stopped.
	cleanup chan *Room

	// wg is used to wait for the runCleanupLoop goroutine to finish during shutdown.
	wg sync.WaitGroup

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its cleanup loop.
func NewHub() *Hub {
	h := &Hub{
		rooms:   make(map[int64]*Room),
		cleanup: make(chan *Room, 16),
		logger:  logx.Component("broker-hub", 0),
	}

	h.wg.Add(1)
	go h.runCleanupLoop()

	return h
}

// runCleanupLoop removes rooms that reported their Run loop finished.
func (h *Hub) runCleanupLoop() {
	defer h.wg.Done()

	for room := range h.cleanup {
		h.deleteRoom(room)
	}

	h.logger.Debug().Msg("Cleanup loop stopped.")
}

// deleteRoom removes room if it is still the registered instance for its id.
func (h *Hub) deleteRoom(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.rooms[room.ID]; ok && current == room {
		delete(h.rooms, room.ID)
		h.logger.Info().Int64("room_id", room.ID).Msg("Room successfully removed.")
	}
}

// room returns the running Room of roomID, creating and starting it when absent.
// It returns nil after Shutdown.
func (h *Hub) room(roomID int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms == nil {
		return nil
	}

	if r, ok := h.rooms[roomID]; ok {
		select {
		case <-r.Done():
			delete(h.rooms, roomID)
		default:
			return r
		}
	}

	r := NewRoom(roomID, h.cleanup)
	h.rooms[roomID] = r
	go r.Run()

	h.logger.Info().Int64("room_id", roomID).Msg("New Room created and started.")
	return r
}

// lookup returns the running Room of roomID without creating one.
func (h *Hub) lookup(roomID int64) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.rooms[roomID]
}

// Subscribe registers conn on roomID's topic under subID.
func (h *Hub) Subscribe(roomID int64, conn *Conn, subID string) bool {
	for range registerAttempts {
		r := h.room(roomID)
		if r == nil {
			return false
		}
		if r.Register(conn, subID) {
			return true
		}
	}
	h.logger.Warn().Int64("room_id", roomID).Msg("Could not register session, room kept stopping.")
	return false
}

// Unsubscribe removes conn from roomID's topic.
func (h *Hub) Unsubscribe(roomID int64, conn *Conn) {
	if r := h.lookup(roomID); r != nil {
		r.Unregister(conn)
	}
}

// Publish delivers body to every subscriber of roomID. A room without a running topic
// has no subscribers and the body is only kept in the store.
func (h *Hub) Publish(roomID int64, messageID string, body []byte) bool {
	r := h.lookup(roomID)
	if r == nil {
		h.logger.Debug().Int64("room_id", roomID).Msg("No live topic, publish skipped.")
		return false
	}
	return r.Publish(messageID, body)
}

// Subscribers returns the number of sessions subscribed to roomID.
func (h *Hub) Subscribers(roomID int64) int {
	if r := h.lookup(roomID); r != nil {
		return r.Subscribers()
	}
	return 0
}

// Shutdown stops every room, waits for their loops and stops the cleanup loop.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down broker hub...")

	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = nil
	h.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
		<-r.Done()
	}

	close(h.cleanup)
	h.wg.Wait()

	h.logger.Info().Msg("Broker hub shutdown complete.")
}
