/*
Package devserver is an in-process implementation of the accompany backend: the REST
endpoints the chat session calls and a STOMP broker on a WebSocket endpoint.

It exists so the client can be run and tested end to end without the production backend.
State lives in memory and is lost on restart.

This file defines the Store, which holds rooms, their members, the durable message
backlog and the last known position of each member.
*/
package devserver

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"accompany/internal/app/backend"
	"accompany/internal/app/chat"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/randx"
)

// RoomStatusRecruiting is the status of a freshly created room.
const RoomStatusRecruiting = "RECRUITING"

// roomRecord is the durable state of one chat room.
type roomRecord struct {
	id             int64
	postID         int64
	leaderID       string
	status         string
	sharingEnabled bool

	// members is keyed by user id; order keeps join order.
	members map[string]user.User
	order   []string

	messages  []chat.Message
	locations map[string]backend.LatLng
}

// Store is the in-memory state of the development backend. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	rooms map[int64]*roomRecord

	// sharingDefault is applied to rooms created by a join.
	sharingDefault bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates an empty store. Rooms created later start with location sharing
// set to sharingDefault.
func NewStore(sharingDefault bool) *Store {
	return &Store{
		rooms:          make(map[int64]*roomRecord),
		sharingDefault: sharingDefault,
		now:            time.Now,
	}
}

// CreateRoom creates roomID with leader as its first member. It returns false when the
// room already exists.
func (s *Store) CreateRoom(roomID int64, leader user.User, sharingEnabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = newRoomRecord(roomID, leader, sharingEnabled)
	return true
}

// Join adds u to roomID, creating the room with u as leader when it does not exist yet.
func (s *Store) Join(roomID int64, u user.User) backend.EntryData {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		rec = newRoomRecord(roomID, u, s.sharingDefault)
		s.rooms[roomID] = rec
	}
	rec.addMember(u)
	return rec.entry()
}

// SetSharing turns location sharing of roomID on or off.
func (s *Store) SetSharing(roomID int64, enabled bool) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rooms[roomID]
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound)
	}
	rec.sharingEnabled = enabled
	return nil
}

// Entry answers the entry check of userID for roomID.
func (s *Store) Entry(roomID int64, userID string) (backend.EntryData, *errs.CustomError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, cerr := s.memberRoom(roomID, userID)
	if cerr != nil {
		return backend.EntryData{}, cerr
	}
	return rec.entry(), nil
}

// IsMember reports whether userID belongs to roomID.
func (s *Store) IsMember(roomID int64, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, cerr := s.memberRoom(roomID, userID)
	return cerr == nil
}

// History returns a copy of the backlog of roomID in ascending creation order.
func (s *Store) History(roomID int64, userID string) ([]chat.Message, *errs.CustomError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, cerr := s.memberRoom(roomID, userID)
	if cerr != nil {
		return nil, cerr
	}

	out := make([]chat.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

// AppendMessage stores a message published by sender and returns the stored record.
func (s *Store) AppendMessage(roomID int64, sender user.User, content string) (chat.Message, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, cerr := s.memberRoom(roomID, sender.ID)
	if cerr != nil {
		return chat.Message{}, cerr
	}

	msg := chat.Message{
		ID:                 randx.MessageID(),
		ChatRoomID:         roomID,
		SenderID:           sender.ID,
		Content:            content,
		CreatedAt:          chat.Timestamp{Time: s.now().UTC()},
		SenderNickname:     sender.Nickname,
		SenderProfileImage: sender.ProfileImage,
		InfoFlag:           chat.ClassifyContent(content) == chat.KindLeave,
	}
	rec.messages = append(rec.messages, msg)
	return msg, nil
}

// Locations returns the location snapshot of roomID. Members who never reported a
// position carry a nil LastLocation.
func (s *Store) Locations(roomID int64, userID string) (backend.LocationSnapshot, *errs.CustomError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, cerr := s.memberRoom(roomID, userID)
	if cerr != nil {
		return backend.LocationSnapshot{}, cerr
	}

	snap := backend.LocationSnapshot{
		IsLocationSharingEnabled: rec.sharingEnabled,
		MemberLocations:          make([]backend.MemberLocation, 0, len(rec.order)),
	}
	for _, id := range rec.order {
		m := rec.members[id]
		loc := backend.MemberLocation{
			MemberID:         memberID(m.ID),
			Nickname:         m.Nickname,
			ProfileImagePath: m.ProfileImage,
		}
		if last, ok := rec.locations[id]; ok {
			loc.LastLocation = &last
		}
		snap.MemberLocations = append(snap.MemberLocations, loc)
	}
	return snap, nil
}

// UpdateLocation records the position of u in roomID. It reports whether the room
// shares locations, in which case the update should be pushed to subscribers.
func (s *Store) UpdateLocation(roomID int64, u user.User, pos backend.LatLng) (bool, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, cerr := s.memberRoom(roomID, u.ID)
	if cerr != nil {
		return false, cerr
	}
	rec.locations[u.ID] = pos
	return rec.sharingEnabled, nil
}

// Leave removes userID from roomID. The last member leaving keeps the room and its
// backlog; only membership changes.
func (s *Store) Leave(roomID int64, userID string) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, cerr := s.memberRoom(roomID, userID)
	if cerr != nil {
		return cerr
	}

	delete(rec.members, userID)
	delete(rec.locations, userID)
	for i, id := range rec.order {
		if id == userID {
			rec.order = append(rec.order[:i], rec.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rooms returns the ids of all rooms, ascending.
func (s *Store) Rooms() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// memberRoom returns the record of roomID if userID is one of its members.
// Callers hold s.mu.
func (s *Store) memberRoom(roomID int64, userID string) (*roomRecord, *errs.CustomError) {
	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if _, ok := rec.members[userID]; !ok {
		return nil, errs.NewError(errs.ErrNotParticipant)
	}
	return rec, nil
}

func newRoomRecord(roomID int64, leader user.User, sharingEnabled bool) *roomRecord {
	rec := &roomRecord{
		id:             roomID,
		postID:         roomID,
		leaderID:       leader.ID,
		status:         RoomStatusRecruiting,
		sharingEnabled: sharingEnabled,
		members:        make(map[string]user.User),
		locations:      make(map[string]backend.LatLng),
	}
	rec.addMember(leader)
	return rec
}

func (r *roomRecord) addMember(u user.User) {
	if _, ok := r.members[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	r.members[u.ID] = u
}

func (r *roomRecord) entry() backend.EntryData {
	return backend.EntryData{
		AccompanyPostID: r.postID,
		ChatRoomID:      r.id,
		LeaderID:        memberID(r.leaderID),
		Status:          r.status,
		IsPostExists:    true,
	}
}

// memberID converts a user id to the numeric member id of the REST payloads.
// Non-numeric ids map to 0.
func memberID(id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
