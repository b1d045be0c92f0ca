package room

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accompany/internal/app/backend"
	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
	"accompany/internal/app/session"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
)

var mina = user.User{ID: "12", Nickname: "mina"}

func newLeaveFixture(t *testing.T) (*Coordinator, *session.ChatRoomSession, *fakeChannel, *mockBackend, *recorder) {
	t.Helper()

	rec := &recorder{}
	ch := newFakeChannel(rec)
	require.NoError(t, ch.Connect(context.Background()))

	be := &mockBackend{rec: rec}
	sess := session.New(7, mina, false)
	sess.Authorize()

	return NewCoordinator(sess, ch, be), sess, ch, be, rec
}

func TestLeaveOrder(t *testing.T) {
	coord, sess, ch, be, rec := newLeaveFixture(t)
	be.On("Leave", mock.Anything, int64(7)).Return(nil).Once()

	ack, err := coord.Leave(context.Background())
	require.NoError(t, err)

	assert.True(t, ack.NoticeDelivered)
	assert.Equal(t, []string{"publish", "leave", "close"}, rec.list())
	assert.Equal(t, session.Unauthorized, sess.Membership())

	sent := ch.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, chat.KindLeave, chat.ClassifyContent(sent[0].Content))
	assert.Equal(t, "🚪mina 님이 채팅방을 나갔습니다.", sent[0].Content)
}

func TestLeaveFailureKeepsChannelOpen(t *testing.T) {
	coord, sess, ch, be, rec := newLeaveFixture(t)
	be.On("Leave", mock.Anything, int64(7)).Return(errors.New("backend down")).Once()

	_, err := coord.Leave(context.Background())

	assert.True(t, errs.HasCode(err, errs.ErrLeaveFailed))
	assert.Equal(t, []string{"publish", "leave"}, rec.list())
	assert.Equal(t, channel.Connected, ch.State())
	assert.Equal(t, session.Authorized, sess.Membership())
}

func TestLeaveContinuesWhenNoticeFails(t *testing.T) {
	coord, _, ch, be, rec := newLeaveFixture(t)
	ch.sendErr = errs.NewError(errs.ErrNotConnected)
	be.On("Leave", mock.Anything, int64(7)).Return(nil).Once()

	ack, err := coord.Leave(context.Background())
	require.NoError(t, err)

	assert.False(t, ack.NoticeDelivered)
	assert.Equal(t, []string{"publish", "leave", "close"}, rec.list())
}

func TestLeaveAlreadyLeftIsSuccess(t *testing.T) {
	for _, apiErr := range []*backend.APIError{
		{Status: http.StatusNotFound},
		{Status: http.StatusBadRequest, Message: backend.MessageNotMember},
	} {
		coord, _, _, be, rec := newLeaveFixture(t)
		be.On("Leave", mock.Anything, int64(7)).Return(apiErr).Once()

		ack, err := coord.Leave(context.Background())
		require.NoError(t, err)
		assert.True(t, ack.AlreadyLeft)
		assert.Equal(t, []string{"publish", "leave", "close"}, rec.list())
	}
}
