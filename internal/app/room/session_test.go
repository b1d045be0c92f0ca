package room

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accompany/internal/app/backend"
	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
	"accompany/internal/app/location"
	"accompany/internal/pkg/errs"
)

func testDeps(be *mockBackend, ch *fakeChannel, channels *int) Deps {
	return Deps{
		Backend:    be,
		Positioner: location.StaticPositioner{Fix: location.Position{Lat: 33.45, Lng: 126.57}},
		NewChannel: func(roomID int64) Channel {
			*channels++
			return ch
		},
		LoadTimeout: time.Second,
		Reconnect:   ReconnectPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}
}

func expectEntry(be *mockBackend) {
	be.On("CheckEntry", mock.Anything, int64(7)).
		Return(backend.EntryData{AccompanyPostID: 3, ChatRoomID: 7, LeaderID: 12, Status: "RECRUITING", IsPostExists: true}, nil).
		Once()
}

func timelineIDs(s *Session) []string {
	var out []string
	for _, m := range s.Timeline().Snapshot() {
		out = append(out, m.ID)
	}
	return out
}

func TestOpenDeniedNeverTouchesChannel(t *testing.T) {
	be := new(mockBackend)
	be.On("CheckEntry", mock.Anything, int64(7)).Return(backend.EntryData{}, &backend.APIError{Status: http.StatusForbidden}).Once()

	channels := 0
	_, err := Open(context.Background(), "7", mina, false, testDeps(be, newFakeChannel(nil), &channels))

	assert.True(t, errs.HasCode(err, errs.ErrNotParticipant))
	assert.Zero(t, channels)
	be.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}

func TestOpenInvalidRoomMakesNoCalls(t *testing.T) {
	be := new(mockBackend)
	channels := 0

	_, err := Open(context.Background(), "room-7", mina, false, testDeps(be, newFakeChannel(nil), &channels))

	assert.True(t, errs.HasCode(err, errs.ErrInvalidRoom))
	assert.Zero(t, channels)
	be.AssertNotCalled(t, "CheckEntry", mock.Anything, mock.Anything)
}

func TestOpenMergesLiveMessagesThatRaceTheLoad(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	expectEntry(be)

	live := msg("3", 3)
	be.On("History", mock.Anything, int64(7)).
		Run(func(mock.Arguments) {
			ch.stream <- channel.Delivery{Inbound: chat.Inbound{Message: &live}}
			ch.stream <- channel.Delivery{Inbound: chat.Inbound{Location: &chat.LocationFrame{Lat: 1, Lng: 2, Nickname: "soo"}}}
		}).
		Return([]chat.Message{msg("1", 1), msg("2", 2)}, nil).Once()
	be.On("Locations", mock.Anything, int64(7)).Return(sharingSnapshot(), nil).Once()

	channels := 0
	s, err := Open(context.Background(), "7", mina, false, testDeps(be, ch, &channels))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, channels)
	assert.Equal(t, channel.Connected, s.ChannelState())
	assert.True(t, s.State().LocationSharingEnabled())

	require.Eventually(t, func() bool { return s.Timeline().Len() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, timelineIDs(s))

	require.Eventually(t, func() bool { return s.Roster().Len() == 2 }, time.Second, 5*time.Millisecond)
	_, ok := s.Roster().Get("jun")
	assert.True(t, ok)
}

func TestOpenKeepsLocationShareThatRacesTheSnapshot(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	expectEntry(be)

	share := msg("3", 3)
	share.Content = chat.LocationShareContent("jun", location.MapLink("jun", location.Position{Lat: 1, Lng: 2}))
	be.On("History", mock.Anything, int64(7)).
		Run(func(mock.Arguments) {
			ch.stream <- channel.Delivery{Inbound: chat.Inbound{Message: &share}}
		}).
		Return([]chat.Message{msg("1", 1)}, nil).Once()
	be.On("Locations", mock.Anything, int64(7)).Return(sharingSnapshot(), nil).Once()

	channels := 0
	s, err := Open(context.Background(), "7", mina, false, testDeps(be, ch, &channels))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return s.Timeline().Len() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		jun, ok := s.Roster().Get("jun")
		return ok && jun.Lat == 1 && jun.Lng == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.Roster().Len())
}

func TestOpenLoadFailureClosesChannel(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	expectEntry(be)
	be.On("History", mock.Anything, int64(7)).Return(nil, errors.New("boom")).Once()
	be.On("Locations", mock.Anything, int64(7)).Return(sharingSnapshot(), nil).Maybe()

	channels := 0
	_, err := Open(context.Background(), "7", mina, false, testDeps(be, ch, &channels))

	assert.True(t, errs.HasCode(err, errs.ErrLoadFailed))
	_, open := <-ch.Stream()
	assert.False(t, open)
}

func openReady(t *testing.T, be *mockBackend, ch *fakeChannel) *Session {
	t.Helper()

	expectEntry(be)
	be.On("History", mock.Anything, int64(7)).Return([]chat.Message{msg("1", 1)}, nil).Once()
	be.On("Locations", mock.Anything, int64(7)).Return(backend.LocationSnapshot{}, nil).Once()

	channels := 0
	s, err := Open(context.Background(), "7", mina, true, testDeps(be, ch, &channels))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRunReconnectsAndBackfills(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	s := openReady(t, be, ch)

	be.On("History", mock.Anything, int64(7)).Return([]chat.Message{msg("1", 1), msg("2", 2)}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	ch.mu.Lock()
	ch.connectErrs = []error{errs.NewError(errs.ErrChannel), nil}
	ch.mu.Unlock()
	ch.drop()

	require.Eventually(t, func() bool { return s.Timeline().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2"}, timelineIDs(s))
	assert.Equal(t, channel.Connected, s.ChannelState())
	assert.Equal(t, 3, ch.connectCount())

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	ch.connectErrs = []error{errs.NewError(errs.ErrChannel), errs.NewError(errs.ErrChannel), errs.NewError(errs.ErrChannel), errs.NewError(errs.ErrChannel)}
	s := openReady(t, be, ch)
	require.Equal(t, channel.Disconnected, s.ChannelState())

	err := s.Run(context.Background())

	assert.True(t, errs.HasCode(err, errs.ErrChannel))
	assert.Equal(t, 4, ch.connectCount())
}

func TestSessionSendAndShare(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	s := openReady(t, be, ch)

	require.NoError(t, s.SendText("hello"))

	_, err := s.ShareLocation(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrSharingDisabled))

	be.On("UpdateLocation", mock.Anything, int64(7), 33.45, 126.57).Return(nil).Once()
	_, err = s.EnableTracking(context.Background())
	require.NoError(t, err)

	loc, err := s.ShareLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mina", loc.Nickname)

	sent := ch.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].Content)
	assert.Equal(t, chat.KindLocationShare, chat.ClassifyContent(sent[1].Content))

	s.DisableTracking()
	_, err = s.ShareLocation(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrTrackingDisabled))
}

func TestSessionLeaveCloses(t *testing.T) {
	be := new(mockBackend)
	ch := newFakeChannel(nil)
	s := openReady(t, be, ch)
	be.On("Leave", mock.Anything, int64(7)).Return(nil).Once()

	ack, err := s.Leave(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.NoticeDelivered)
	assert.Equal(t, channel.Disconnected, s.ChannelState())

	assert.NoError(t, s.Run(context.Background()))
}
