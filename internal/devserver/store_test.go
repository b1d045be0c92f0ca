package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accompany/internal/app/backend"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
)

var (
	mina = user.User{ID: "12", Nickname: "mina"}
	jun  = user.User{ID: "13", Nickname: "jun", ProfileImage: "https://img.example/jun.png"}
	soo  = user.User{ID: "14", Nickname: "soo"}
)

func TestJoinCreatesRoomWithLeader(t *testing.T) {
	s := NewStore(true)

	entry := s.Join(7, mina)
	assert.Equal(t, backend.EntryData{AccompanyPostID: 7, ChatRoomID: 7, LeaderID: 12, Status: RoomStatusRecruiting, IsPostExists: true}, entry)

	entry = s.Join(7, jun)
	assert.Equal(t, int64(12), entry.LeaderID)
	assert.True(t, s.IsMember(7, "13"))
	assert.Equal(t, []int64{7}, s.Rooms())
}

func TestEntryDistinguishesUnknownRoomFromNonMember(t *testing.T) {
	s := NewStore(false)
	s.CreateRoom(7, mina, false)

	_, cerr := s.Entry(8, "12")
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrRoomNotFound, cerr.Code)

	_, cerr = s.Entry(7, "13")
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrNotParticipant, cerr.Code)

	assert.False(t, s.CreateRoom(7, jun, true))
}

func TestAppendMessageKeepsOrderAndStampsSender(t *testing.T) {
	s := NewStore(false)
	s.Join(7, mina)
	s.Join(7, jun)

	base := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, cerr := s.AppendMessage(7, mina, "hello")
	require.Nil(t, cerr)
	second, cerr := s.AppendMessage(7, jun, "🚪jun 님이 채팅방을 나갔습니다.")
	require.Nil(t, cerr)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "mina", first.SenderNickname)
	assert.False(t, first.InfoFlag)
	assert.True(t, second.InfoFlag)
	assert.Equal(t, jun.ProfileImage, second.SenderProfileImage)

	history, cerr := s.History(7, "12")
	require.Nil(t, cerr)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.True(t, history[0].CreatedAt.Before(history[1].CreatedAt.Time))

	_, cerr = s.AppendMessage(7, soo, "intruder")
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrNotParticipant, cerr.Code)
}

func TestLocationsSnapshot(t *testing.T) {
	s := NewStore(true)
	s.Join(7, mina)
	s.Join(7, jun)

	sharing, cerr := s.UpdateLocation(7, jun, backend.LatLng{Lat: 37.5, Lng: 127.0})
	require.Nil(t, cerr)
	assert.True(t, sharing)

	snap, cerr := s.Locations(7, "12")
	require.Nil(t, cerr)
	assert.True(t, snap.IsLocationSharingEnabled)
	require.Len(t, snap.MemberLocations, 2)

	assert.Equal(t, "mina", snap.MemberLocations[0].Nickname)
	assert.Nil(t, snap.MemberLocations[0].LastLocation)
	assert.Equal(t, int64(13), snap.MemberLocations[1].MemberID)
	assert.Equal(t, &backend.LatLng{Lat: 37.5, Lng: 127.0}, snap.MemberLocations[1].LastLocation)

	require.Nil(t, s.SetSharing(7, false))
	sharing, cerr = s.UpdateLocation(7, mina, backend.LatLng{Lat: 1, Lng: 2})
	require.Nil(t, cerr)
	assert.False(t, sharing)
}

func TestLeaveRemovesMembership(t *testing.T) {
	s := NewStore(true)
	s.Join(7, mina)
	s.Join(7, jun)
	_, _ = s.UpdateLocation(7, jun, backend.LatLng{Lat: 1, Lng: 2})

	require.Nil(t, s.Leave(7, "13"))
	assert.False(t, s.IsMember(7, "13"))

	cerr := s.Leave(7, "13")
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrNotParticipant, cerr.Code)

	snap, _ := s.Locations(7, "12")
	require.Len(t, snap.MemberLocations, 1)
	assert.Equal(t, "mina", snap.MemberLocations[0].Nickname)
}
