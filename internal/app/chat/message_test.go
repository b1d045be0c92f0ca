package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accompany/internal/pkg/errs"
)

func TestDecodeInboundMessage(t *testing.T) {
	body := []byte(`{"id":"65f1","chatRoomId":7,"senderId":"12","content":"hello","createdAt":"2024-10-01T09:00:00","senderNickname":"mina","senderProfileImage":"","infoFlag":false}`)

	in, err := DecodeInbound(body)
	require.NoError(t, err)
	require.NotNil(t, in.Message)
	assert.Nil(t, in.Location)

	assert.Equal(t, "65f1", in.Message.ID)
	assert.Equal(t, int64(7), in.Message.ChatRoomID)
	assert.True(t, in.Message.CreatedAt.Equal(time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, KindText, in.Message.Kind())
}

func TestDecodeInboundLocationFrame(t *testing.T) {
	body := []byte(`{"memberId":3,"lat":37.55,"lng":126.97,"nickname":"jun","profileImagePath":"/p/3.png"}`)

	in, err := DecodeInbound(body)
	require.NoError(t, err)
	require.NotNil(t, in.Location)
	assert.Nil(t, in.Message)
	assert.Equal(t, "jun", in.Location.Nickname)
	assert.InDelta(t, 126.97, in.Location.Lng, 1e-9)
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"content":"no id"}`,
		`{"lat":1,"lng":2}`,
	} {
		_, err := DecodeInbound([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2024, 10, 1, 9, 0, 0, 500_000_000, time.UTC)

	for _, raw := range []string{
		`"2024-10-01T09:00:00.5Z"`,
		`"2024-10-01T18:00:00.5+09:00"`,
		`"2024-10-01T09:00:00.500"`,
		`1727773200500`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.True(t, ts.Equal(want), "%s parsed as %s", raw, ts.Time)
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestContentKinds(t *testing.T) {
	loc := LocationShareContent("mina", "https://map.kakao.com/link/map/mina,37.5,127.0")
	assert.Equal(t, KindLocationShare, ClassifyContent(loc))

	link, ok := LocationLink(loc)
	require.True(t, ok)
	assert.Equal(t, "https://map.kakao.com/link/map/mina,37.5,127.0", link)

	assert.Equal(t, KindLeave, ClassifyContent(LeaveContent("mina")))
	assert.Equal(t, KindText, ClassifyContent("see you at 9"))

	_, ok = LocationLink("see you at 9")
	assert.False(t, ok)
}

func TestOutboundValidate(t *testing.T) {
	assert.NoError(t, Outbound{ChatRoomID: 1, SenderID: "1", Content: "hi"}.Validate())
	assert.True(t, errs.HasCode(Outbound{ChatRoomID: 1, SenderID: "1", Content: "   "}.Validate(), errs.ErrMessageEmpty))

	err := Outbound{ChatRoomID: 1, SenderID: "1", Content: strings.Repeat("a", MaxContentBytes+1)}.Validate()
	assert.True(t, errs.HasCode(err, errs.ErrMessageContentTooLong))
	assert.Contains(t, errs.UserMessage(err), "5000")
}
