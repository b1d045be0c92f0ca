package location

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accompany/internal/app/chat"
	"accompany/internal/app/session"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
)

type mockPositioner struct {
	mock.Mock
}

func (m *mockPositioner) CurrentPosition(ctx context.Context) (Position, error) {
	args := m.Called(ctx)
	return args.Get(0).(Position), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Send(out chat.Outbound) error {
	args := m.Called(out)
	return args.Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpdateLocation(ctx context.Context, roomID int64, lat, lng float64) error {
	args := m.Called(ctx, roomID, lat, lng)
	return args.Error(0)
}

var mina = user.User{ID: "12", Nickname: "mina", ProfileImage: "/p/12.png"}

func newTestRelay(tracking, sharing bool) (*Relay, *mockPositioner, *mockPublisher, *mockStore) {
	sess := session.New(7, mina, tracking)
	sess.SetLocationSharing(sharing)

	pos, pub, store := new(mockPositioner), new(mockPublisher), new(mockStore)
	return NewRelay(sess, pos, pub, store, NewRoster()), pos, pub, store
}

func TestShareOnceTrackingDisabledTouchesNothing(t *testing.T) {
	for _, sharing := range []bool{true, false} {
		relay, pos, pub, _ := newTestRelay(false, sharing)

		_, err := relay.ShareOnce(context.Background())

		assert.True(t, errs.HasCode(err, errs.ErrTrackingDisabled))
		pos.AssertNotCalled(t, "CurrentPosition", mock.Anything)
		pub.AssertNotCalled(t, "Send", mock.Anything)
	}
}

func TestShareOnceSharingDisabled(t *testing.T) {
	relay, pos, pub, _ := newTestRelay(true, false)

	_, err := relay.ShareOnce(context.Background())

	assert.True(t, errs.HasCode(err, errs.ErrSharingDisabled))
	pos.AssertNotCalled(t, "CurrentPosition", mock.Anything)
	pub.AssertNotCalled(t, "Send", mock.Anything)
}

func TestShareOncePositionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"permission denied", errs.NewError(errs.ErrPermissionDenied), errs.ErrPermissionDenied},
		{"no capability", errs.NewError(errs.ErrCapabilityUnavailable), errs.ErrCapabilityUnavailable},
		{"device error", errors.New("gps timeout"), errs.ErrCapabilityUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, pos, pub, _ := newTestRelay(true, true)
			pos.On("CurrentPosition", mock.Anything).Return(Position{}, tt.err).Once()

			_, err := relay.ShareOnce(context.Background())

			assert.True(t, errs.HasCode(err, tt.want))
			pub.AssertNotCalled(t, "Send", mock.Anything)
			pos.AssertExpectations(t)
		})
	}
}

func TestShareOncePublishesLocationShare(t *testing.T) {
	relay, pos, pub, _ := newTestRelay(true, true)
	pos.On("CurrentPosition", mock.Anything).Return(Position{Lat: 37.5665, Lng: 126.978}, nil).Once()
	pub.On("Send", chat.Outbound{
		ChatRoomID: 7,
		SenderID:   "12",
		Content:    "📍mina 님의 실시간 위치 : https://map.kakao.com/link/map/mina,37.5665,126.978",
	}).Return(nil).Once()

	loc, err := relay.ShareOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "mina", loc.Nickname)
	got, ok := relay.Roster().Get("mina")
	require.True(t, ok)
	assert.InDelta(t, 37.5665, got.Lat, 1e-9)
	pub.AssertExpectations(t)
}

func TestShareOnceNotConnected(t *testing.T) {
	relay, pos, pub, _ := newTestRelay(true, true)
	pos.On("CurrentPosition", mock.Anything).Return(Position{Lat: 1, Lng: 2}, nil).Once()
	pub.On("Send", mock.Anything).Return(errs.NewError(errs.ErrNotConnected)).Once()

	_, err := relay.ShareOnce(context.Background())

	assert.True(t, errs.HasCode(err, errs.ErrNotConnected))
	assert.Zero(t, relay.Roster().Len())
}

func TestEnableTrackingStoresAndTurnsSharingOn(t *testing.T) {
	relay, pos, _, store := newTestRelay(false, false)
	pos.On("CurrentPosition", mock.Anything).Return(Position{Lat: 35.1, Lng: 129.0}, nil).Once()
	store.On("UpdateLocation", mock.Anything, int64(7), 35.1, 129.0).Return(nil).Once()

	_, err := relay.EnableTracking(context.Background())
	require.NoError(t, err)

	assert.True(t, relay.sess.TrackingEnabled())
	assert.True(t, relay.sess.LocationSharingEnabled())
	store.AssertExpectations(t)

	relay.DisableTracking()
	_, err = relay.ShareOnce(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrTrackingDisabled))
}

func TestEnableTrackingStoreFailureKeepsTrackingOff(t *testing.T) {
	relay, pos, _, store := newTestRelay(false, false)
	pos.On("CurrentPosition", mock.Anything).Return(Position{Lat: 35.1, Lng: 129.0}, nil).Once()
	store.On("UpdateLocation", mock.Anything, int64(7), 35.1, 129.0).Return(errs.NewError(errs.ErrUnknown)).Once()

	_, err := relay.EnableTracking(context.Background())
	require.Error(t, err)
	assert.False(t, relay.sess.TrackingEnabled())
}

func TestHandleFrameAndMessageUpdateRoster(t *testing.T) {
	relay, _, _, _ := newTestRelay(true, true)

	assert.True(t, relay.HandleFrame(chat.LocationFrame{Lat: 1, Lng: 2, Nickname: "jun", ProfileImagePath: "/p/3.png"}))
	assert.False(t, relay.HandleFrame(chat.LocationFrame{Lat: 1, Lng: 2}))

	share := chat.Message{
		ID:      "m1",
		Content: chat.LocationShareContent("jun", MapLink("jun", Position{Lat: 3, Lng: 4})),
	}
	assert.True(t, relay.HandleMessage(share))
	assert.False(t, relay.HandleMessage(chat.Message{ID: "m2", Content: "hello"}))

	got, ok := relay.Roster().Get("jun")
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Lat)
	assert.Equal(t, "/p/3.png", got.ProfileImagePath)
	assert.Equal(t, 1, relay.Roster().Len())
}

func TestRosterSizeEqualsDistinctNicknames(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	roster := NewRoster()
	roster.Reset([]CompanionLocation{{Nickname: "seed", Lat: 0, Lng: 0}})

	distinct := map[string]CompanionLocation{"seed": {Nickname: "seed"}}
	for i := 0; i < 500; i++ {
		loc := CompanionLocation{
			Nickname: fmt.Sprintf("member-%d", rng.Intn(25)),
			Lat:      rng.Float64()*180 - 90,
			Lng:      rng.Float64()*360 - 180,
		}
		roster.Apply(loc)
		distinct[loc.Nickname] = loc
	}

	assert.Equal(t, len(distinct), roster.Len())
	for name, want := range distinct {
		if name == "seed" {
			continue
		}
		got, ok := roster.Get(name)
		require.True(t, ok)
		assert.Equal(t, want.Lat, got.Lat, "latest update wins for %s", name)
	}
}

func TestRosterResetReplaces(t *testing.T) {
	roster := NewRoster()
	roster.Apply(CompanionLocation{Nickname: "old"})
	roster.Reset([]CompanionLocation{{Nickname: "b"}, {Nickname: "a"}, {Nickname: ""}})

	snap := roster.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Nickname)

	roster.Reset(nil)
	assert.Zero(t, roster.Len())
}

func TestMapLinkRoundTrip(t *testing.T) {
	link := MapLink("여행 친구", Position{Lat: 33.4996, Lng: 126.5312})
	assert.Equal(t, "https://map.kakao.com/link/map/여행 친구,33.4996,126.5312", link)

	nickname, fix, ok := ParseMapLink(link)
	require.True(t, ok)
	assert.Equal(t, "여행 친구", nickname)
	assert.Equal(t, 33.4996, fix.Lat)

	nickname, _, ok = ParseMapLink("https://map.kakao.com/link/map/%EC%97%AC%ED%96%89,1,2")
	require.True(t, ok)
	assert.Equal(t, "여행", nickname)

	nickname, _, ok = ParseMapLink("https://map.kakao.com/link/map/100%,1,2")
	require.True(t, ok)
	assert.Equal(t, "100%", nickname)

	for _, bad := range []string{
		"https://example.com/x,1,2",
		"https://map.kakao.com/link/map/,1,2",
		"https://map.kakao.com/link/map/a,north,2",
		"https://map.kakao.com/link/map/a,91,2",
	} {
		_, _, ok := ParseMapLink(bad)
		assert.False(t, ok, bad)
	}
}

func TestStaticAndFailingPositioners(t *testing.T) {
	fix, err := StaticPositioner{Fix: Position{Lat: 1, Lng: 2}}.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Position{Lat: 1, Lng: 2}, fix)

	_, err = NoPositioner{}.CurrentPosition(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrCapabilityUnavailable))

	_, err = DeniedPositioner{}.CurrentPosition(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrPermissionDenied))
}
