package room

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"accompany/internal/app/backend"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

// Entry is the result of a successful entry check.
type Entry struct {
	RoomID int64
	backend.EntryData
}

// Gate verifies that the user may enter a room before anything else happens.
type Gate struct {
	checker EntryChecker
	logger  zerolog.Logger
}

func NewGate(checker EntryChecker) *Gate {
	return &Gate{checker: checker, logger: logx.Component("gate", 0)}
}

// ParseRoomID validates a raw room id. Anything but a positive integer is ErrInvalidRoom.
func ParseRoomID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewError(errs.ErrInvalidRoom)
	}
	return id, nil
}

// Authorize runs the entry check for rawRoomID. An invalid id fails without any
// network call. Every denial is terminal: the caller leaves the room and does not retry.
func (g *Gate) Authorize(ctx context.Context, rawRoomID, userID string) (Entry, error) {
	roomID, err := ParseRoomID(rawRoomID)
	if err != nil {
		g.logger.Warn().Str("raw_room_id", rawRoomID).Msg("Rejected invalid room id.")
		return Entry{}, err
	}

	data, err := g.checker.CheckEntry(ctx, roomID)
	if err != nil {
		denied := errs.Wrap(errs.ErrNotParticipant, err)
		if backend.IsNotFound(err) {
			denied = errs.Wrap(errs.ErrRoomNotFound, err)
		}
		g.logger.Info().
			Err(err).
			Int64("room_id", roomID).
			Str("user_id", userID).
			Int("code", denied.Code).
			Msg("Room entry denied.")
		return Entry{}, denied
	}

	g.logger.Debug().Int64("room_id", roomID).Str("user_id", userID).Str("status", data.Status).Msg("Room entry granted.")
	return Entry{RoomID: roomID, EntryData: data}, nil
}
