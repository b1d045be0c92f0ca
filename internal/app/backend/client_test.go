package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accompany/internal/pkg/errs"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", WithHTTPClient(srv.Client()))
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": message, "data": data})
}

func TestMe(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/members/me", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, MessageSuccess, map[string]any{"userId": 12, "nickname": "mina"})
	})

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12", me.ID)
	assert.Equal(t, "mina", me.Nickname)
}

func TestMeFirstLoginAndUnauthorized(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, MessageFirstLogin, nil)
	})
	_, err := c.Me(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrSignupRequired))

	c = newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, "UNAUTHORIZED", nil)
	})
	_, err = c.Me(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrUnauthorized))
}

func TestCheckEntry(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chat/rooms/7/entry":
			writeEnvelope(w, http.StatusOK, MessageSuccess, EntryData{AccompanyPostID: 3, ChatRoomID: 7, LeaderID: 12, Status: "RECRUITING", IsPostExists: true})
		case "/api/v1/chat/rooms/8/entry":
			writeEnvelope(w, http.StatusOK, "NOT_PARTICIPANT", nil)
		default:
			writeEnvelope(w, http.StatusNotFound, "NOT_FOUND", nil)
		}
	})

	entry, err := c.CheckEntry(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.AccompanyPostID)
	assert.True(t, entry.IsPostExists)

	_, err = c.CheckEntry(context.Background(), 8)
	assert.True(t, HasMessage(err, "NOT_PARTICIPANT"))
	assert.False(t, IsNotFound(err))

	_, err = c.CheckEntry(context.Background(), 9)
	assert.True(t, IsNotFound(err))
}

func TestHistoryAndLocations(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chat/rooms/7/messages":
			writeEnvelope(w, http.StatusOK, MessageSuccess, []map[string]any{
				{"id": "1", "chatRoomId": 7, "senderId": "12", "content": "hi", "createdAt": "2024-10-01T09:00:00"},
				{"id": "2", "chatRoomId": 7, "senderId": "13", "content": "yo", "createdAt": "2024-10-01T09:00:01"},
			})
		case "/api/v1/chat/rooms/7/locations":
			writeEnvelope(w, http.StatusOK, MessageSuccess, map[string]any{
				"isLocationSharingEnabled": true,
				"chatRoomMemberLocations": []map[string]any{
					{"lastLocation": map[string]any{"lat": 37.5, "lng": 127.0}, "memberId": 12, "nickname": "mina"},
					{"lastLocation": nil, "memberId": 13, "nickname": "jun"},
				},
			})
		}
	})

	msgs, err := c.History(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[1].ID)

	snap, err := c.Locations(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, snap.IsLocationSharingEnabled)
	require.Len(t, snap.MemberLocations, 2)
	assert.Nil(t, snap.MemberLocations[1].LastLocation)
}

func TestLocationsDecodesWireShape(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"SUCCESS","data":{"isLocationSharingEnabled":true,` +
			`"chatRoomMemberLocations":[{"lastLocation":{"lat":37.5665,"lng":126.978},` +
			`"memberId":12,"nickname":"mina","profileImagePath":"/img/mina.png"}]}}`))
	})

	snap, err := c.Locations(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, snap.IsLocationSharingEnabled)
	require.Len(t, snap.MemberLocations, 1)
	assert.Equal(t, MemberLocation{
		LastLocation:     &LatLng{Lat: 37.5665, Lng: 126.978},
		MemberID:         12,
		Nickname:         "mina",
		ProfileImagePath: "/img/mina.png",
	}, snap.MemberLocations[0])
}

func TestUpdateLocationAndLeave(t *testing.T) {
	var got LatLng
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/chat/rooms/7/locations":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeEnvelope(w, http.StatusOK, MessageSuccess, nil)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/chat/rooms/7/members/me":
			writeEnvelope(w, http.StatusOK, MessageSuccess, nil)
		default:
			writeEnvelope(w, http.StatusNotFound, MessageNotMember, nil)
		}
	})

	require.NoError(t, c.UpdateLocation(context.Background(), 7, 35.1, 129.0))
	assert.Equal(t, LatLng{Lat: 35.1, Lng: 129.0}, got)

	require.NoError(t, c.Leave(context.Background(), 7))

	err := c.Leave(context.Background(), 8)
	assert.True(t, IsNotFound(err))
	assert.True(t, HasMessage(err, MessageNotMember))
}

func TestUnexpectedBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	_, err := c.History(context.Background(), 7)
	assert.True(t, errs.HasCode(err, errs.ErrUnexpectedResponse))
}

func TestTransportFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "tok")

	_, err := c.CheckEntry(context.Background(), 7)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestFlexID(t *testing.T) {
	var ids []FlexID
	require.NoError(t, json.Unmarshal([]byte(`[12, "13", null]`), &ids))
	assert.Equal(t, []FlexID{"12", "13", ""}, ids)

	raw, err := json.Marshal(FlexID("12"))
	require.NoError(t, err)
	assert.Equal(t, "12", string(raw))
}
