package room

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"accompany/internal/app/backend"
	"accompany/internal/app/chat"
	"accompany/internal/app/location"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

const defaultLoadTimeout = 10 * time.Second

// Context is the durable state of a room at entry.
type Context struct {
	History []chat.Message

	// Snapshot is nil when the room has location sharing turned off.
	Snapshot *backend.LocationSnapshot

	// Companions are the snapshot members with a known location.
	Companions []location.CompanionLocation
}

// Loader fetches history and the location snapshot concurrently.
type Loader struct {
	src     HistorySource
	timeout time.Duration
	logger  zerolog.Logger
}

func NewLoader(src HistorySource, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	return &Loader{src: src, timeout: timeout, logger: logx.Component("loader", 0)}
}

// Load returns both results or ErrLoadFailed wrapping the first failure; there is no
// partial result. Cancelling ctx discards whatever was in flight.
func (l *Loader) Load(ctx context.Context, roomID int64) (Context, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		history []chat.Message
		snap    backend.LocationSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = l.src.History(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = l.src.Locations(gctx, roomID)
		return err
	})

	if err := g.Wait(); err != nil {
		l.logger.Warn().Err(err).Int64("room_id", roomID).Msg("Room load failed.")
		return Context{}, errs.Wrap(errs.ErrLoadFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return Context{}, errs.Wrap(errs.ErrLoadFailed, err)
	}

	out := Context{History: history}
	if snap.IsLocationSharingEnabled {
		out.Snapshot = &snap
		out.Companions = companionsOf(snap)
	}

	l.logger.Debug().
		Int64("room_id", roomID).
		Int("messages", len(out.History)).
		Bool("sharing", out.Snapshot != nil).
		Int("companions", len(out.Companions)).
		Msg("Room loaded.")
	return out, nil
}

func companionsOf(snap backend.LocationSnapshot) []location.CompanionLocation {
	out := make([]location.CompanionLocation, 0, len(snap.MemberLocations))
	for _, m := range snap.MemberLocations {
		if m.LastLocation == nil || m.Nickname == "" {
			continue
		}
		out = append(out, location.CompanionLocation{
			Lat:              m.LastLocation.Lat,
			Lng:              m.LastLocation.Lng,
			Nickname:         m.Nickname,
			ProfileImagePath: m.ProfileImagePath,
		})
	}
	return out
}
