/*
Package session defines the session-scoped context of one open chat room.

A ChatRoomSession is created when the user enters a room and discarded when the user
leaves or navigates away. It is passed explicitly to the components that need it
(Channel Manager, Location Relay, Leave Coordinator) instead of living in a global store.
*/
package session

import (
	"fmt"
	"sync/atomic"

	"accompany/internal/app/user"
)

// Membership is the authorization status of the current user for the room.
type Membership int32

const (
	Unauthorized Membership = iota
	Authorized
)

func (m Membership) String() string {
	if m == Authorized {
		return "authorized"
	}
	return "unauthorized"
}

// ChatRoomSession holds the per-room state shared by the session components.
// Flags are atomics because the session pump, the CLI and the relay touch them
// from different goroutines.
type ChatRoomSession struct {
	RoomID int64
	User   user.User

	membership atomic.Int32
	sharing    atomic.Bool
	tracking   atomic.Bool
}

// New creates an unauthorized session for roomID. trackingEnabled is the user's
// standing opt-in, independent of the room's sharing flag.
func New(roomID int64, u user.User, trackingEnabled bool) *ChatRoomSession {
	s := &ChatRoomSession{RoomID: roomID, User: u}
	s.tracking.Store(trackingEnabled)
	return s
}

// Membership returns the current authorization status.
func (s *ChatRoomSession) Membership() Membership {
	return Membership(s.membership.Load())
}

// Authorize marks the user as an authorized member of the room.
func (s *ChatRoomSession) Authorize() {
	s.membership.Store(int32(Authorized))
}

// Revoke returns the session to the unauthorized state (after leaving).
func (s *ChatRoomSession) Revoke() {
	s.membership.Store(int32(Unauthorized))
}

// LocationSharingEnabled reports whether the room shares member locations.
func (s *ChatRoomSession) LocationSharingEnabled() bool {
	return s.sharing.Load()
}

// SetLocationSharing records the room's sharing flag from the snapshot or after
// the user turns tracking on.
func (s *ChatRoomSession) SetLocationSharing(enabled bool) {
	s.sharing.Store(enabled)
}

// TrackingEnabled reports the user's explicit opt-in to location tracking.
func (s *ChatRoomSession) TrackingEnabled() bool {
	return s.tracking.Load()
}

// SetTracking updates the user's opt-in.
func (s *ChatRoomSession) SetTracking(enabled bool) {
	s.tracking.Store(enabled)
}

func (s *ChatRoomSession) String() string {
	return fmt.Sprintf("room=%d user=%s membership=%s sharing=%t tracking=%t",
		s.RoomID, s.User.ID, s.Membership(), s.LocationSharingEnabled(), s.TrackingEnabled())
}
