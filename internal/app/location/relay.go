/*
Package location shares the user's position with the room and keeps the roster of
companion locations.

This file defines the Relay. Outbound, it turns a device fix into a location-share
message published through the live channel. Inbound, it folds location frames and
location-share messages into the roster.
*/
package location

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"accompany/internal/app/chat"
	"accompany/internal/app/session"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

// Publisher sends an outbound message on the room's live channel.
type Publisher interface {
	Send(out chat.Outbound) error
}

// Store persists the user's own position with the backend.
type Store interface {
	UpdateLocation(ctx context.Context, roomID int64, lat, lng float64) error
}

// Relay publishes the user's location and maintains the roster for one room.
type Relay struct {
	sess   *session.ChatRoomSession
	pos    Positioner
	pub    Publisher
	store  Store
	roster *Roster
	logger zerolog.Logger
}

// NewRelay wires a relay for sess. store may be nil when tracking is not persisted.
func NewRelay(sess *session.ChatRoomSession, pos Positioner, pub Publisher, store Store, roster *Roster) *Relay {
	if pos == nil {
		pos = NoPositioner{}
	}
	return &Relay{
		sess:   sess,
		pos:    pos,
		pub:    pub,
		store:  store,
		roster: roster,
		logger: logx.Component("relay", sess.RoomID),
	}
}

// Roster returns the roster maintained by the relay.
func (r *Relay) Roster() *Roster {
	return r.roster
}

// ShareOnce publishes the current position as a location-share message.
// Checks run in order: tracking opt-in, room sharing flag, device position, publish.
// A failed check never touches the later steps.
func (r *Relay) ShareOnce(ctx context.Context) (CompanionLocation, error) {
	if !r.sess.TrackingEnabled() {
		return CompanionLocation{}, errs.NewError(errs.ErrTrackingDisabled)
	}
	if !r.sess.LocationSharingEnabled() {
		return CompanionLocation{}, errs.NewError(errs.ErrSharingDisabled)
	}

	fix, err := r.currentPosition(ctx)
	if err != nil {
		return CompanionLocation{}, err
	}

	nickname := r.sess.User.Nickname
	out := chat.Outbound{
		ChatRoomID: r.sess.RoomID,
		SenderID:   r.sess.User.ID,
		Content:    chat.LocationShareContent(nickname, MapLink(nickname, fix)),
	}
	if err := r.pub.Send(out); err != nil {
		r.logger.Warn().Err(err).Msg("Location share not delivered.")
		return CompanionLocation{}, err
	}

	loc := CompanionLocation{
		Lat:              fix.Lat,
		Lng:              fix.Lng,
		Nickname:         nickname,
		ProfileImagePath: r.sess.User.ProfileImage,
	}
	r.roster.Apply(loc)

	r.logger.Debug().Float64("lat", fix.Lat).Float64("lng", fix.Lng).Msg("Location shared.")
	return loc, nil
}

// EnableTracking requests a position, stores it with the backend and turns tracking
// and room sharing on for this session.
func (r *Relay) EnableTracking(ctx context.Context) (Position, error) {
	fix, err := r.currentPosition(ctx)
	if err != nil {
		return Position{}, err
	}

	if r.store != nil {
		if err := r.store.UpdateLocation(ctx, r.sess.RoomID, fix.Lat, fix.Lng); err != nil {
			r.logger.Warn().Err(err).Msg("Storing own location failed.")
			return Position{}, err
		}
	}

	r.sess.SetTracking(true)
	r.sess.SetLocationSharing(true)
	r.roster.Apply(CompanionLocation{
		Lat:              fix.Lat,
		Lng:              fix.Lng,
		Nickname:         r.sess.User.Nickname,
		ProfileImagePath: r.sess.User.ProfileImage,
	})

	r.logger.Info().Msg("Location tracking enabled.")
	return fix, nil
}

// DisableTracking turns the user's opt-in off. Later shares fail with ErrTrackingDisabled.
func (r *Relay) DisableTracking() {
	r.sess.SetTracking(false)
	r.logger.Info().Msg("Location tracking disabled.")
}

// HandleFrame applies an inbound location frame to the roster.
func (r *Relay) HandleFrame(f chat.LocationFrame) bool {
	return r.roster.Apply(CompanionLocation{
		Lat:              f.Lat,
		Lng:              f.Lng,
		Nickname:         f.Nickname,
		ProfileImagePath: f.ProfileImagePath,
	})
}

// HandleMessage applies a location-share chat message to the roster when its map
// link parses. Other messages are ignored.
func (r *Relay) HandleMessage(m chat.Message) bool {
	link, ok := chat.LocationLink(m.Content)
	if !ok {
		return false
	}
	nickname, fix, ok := ParseMapLink(link)
	if !ok {
		r.logger.Debug().Str("message_id", m.ID).Msg("Location share with unparseable link.")
		return false
	}
	return r.roster.Apply(CompanionLocation{
		Lat:              fix.Lat,
		Lng:              fix.Lng,
		Nickname:         nickname,
		ProfileImagePath: m.SenderProfileImage,
	})
}

// currentPosition asks the positioner and normalizes its failures into the
// capability/permission codes.
func (r *Relay) currentPosition(ctx context.Context) (Position, error) {
	fix, err := r.pos.CurrentPosition(ctx)
	if err != nil {
		var customErr *errs.CustomError
		if errors.As(err, &customErr) &&
			(customErr.Code == errs.ErrPermissionDenied || customErr.Code == errs.ErrCapabilityUnavailable) {
			return Position{}, err
		}
		return Position{}, errs.Wrap(errs.ErrCapabilityUnavailable, err)
	}
	if !fix.Valid() {
		return Position{}, errs.NewError(errs.ErrCapabilityUnavailable)
	}
	return fix, nil
}
