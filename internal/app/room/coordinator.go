package room

import (
	"context"

	"github.com/rs/zerolog"

	"accompany/internal/app/backend"
	"accompany/internal/app/chat"
	"accompany/internal/app/session"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

// Ack reports how a leave went.
type Ack struct {
	// NoticeDelivered is false when the leave notice could not be published.
	NoticeDelivered bool

	// AlreadyLeft is set when the backend no longer knew the member.
	AlreadyLeft bool
}

// Coordinator performs the leave sequence: notice, durable leave, channel close.
type Coordinator struct {
	sess   *session.ChatRoomSession
	ch     Notifier
	leaver Leaver
	logger zerolog.Logger
}

func NewCoordinator(sess *session.ChatRoomSession, ch Notifier, leaver Leaver) *Coordinator {
	return &Coordinator{
		sess:   sess,
		ch:     ch,
		leaver: leaver,
		logger: logx.Component("leave", sess.RoomID),
	}
}

// Leave publishes the leave notice, leaves durably, then closes the channel.
// A failed notice does not stop the sequence. A failed durable leave returns
// ErrLeaveFailed and leaves the channel open so the user can retry.
func (c *Coordinator) Leave(ctx context.Context) (Ack, error) {
	var ack Ack

	notice := chat.Outbound{
		ChatRoomID: c.sess.RoomID,
		SenderID:   c.sess.User.ID,
		Content:    chat.LeaveContent(c.sess.User.Nickname),
	}
	if err := c.ch.Send(notice); err != nil {
		c.logger.Warn().Err(err).Msg("Leave notice not delivered. Continuing with leave.")
	} else {
		ack.NoticeDelivered = true
	}

	if err := c.leaver.Leave(ctx, c.sess.RoomID); err != nil {
		if !backend.IsNotFound(err) && !backend.HasMessage(err, backend.MessageNotMember) {
			c.logger.Error().Err(err).Msg("Durable leave failed. Channel kept open.")
			return ack, errs.Wrap(errs.ErrLeaveFailed, err)
		}
		ack.AlreadyLeft = true
		c.logger.Info().Msg("Backend reports the member already left.")
	}

	if err := c.ch.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Channel close after leave failed.")
	}
	c.sess.Revoke()

	c.logger.Info().Bool("notice_delivered", ack.NoticeDelivered).Msg("Left chat room.")
	return ack, nil
}
