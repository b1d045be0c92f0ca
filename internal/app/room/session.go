package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
	"accompany/internal/app/location"
	"accompany/internal/app/session"
	"accompany/internal/app/user"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
)

// ReconnectPolicy bounds automatic reconnects after a channel drop.
type ReconnectPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	// The first try is not a retry.
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Deps are the collaborators of a Session.
type Deps struct {
	Backend    Backend
	Positioner location.Positioner

	// NewChannel builds the live channel of a room.
	NewChannel func(roomID int64) Channel

	LoadTimeout time.Duration
	Reconnect   ReconnectPolicy
}

// Session is one open chat room: the gate has passed, the backlog is merged, and the
// live channel feeds the timeline and the roster until the user leaves or closes.
type Session struct {
	deps  Deps
	entry Entry

	sess     *session.ChatRoomSession
	ch       Channel
	timeline *chat.Timeline
	roster   *location.Roster
	relay    *location.Relay
	coord    *Coordinator

	// held collects roster updates (location frames and location shares) received
	// before the snapshot was applied, in arrival order.
	heldMu sync.Mutex
	held   []channel.Delivery
	ready  bool

	pumpDone  chan struct{}
	closing   chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// Open enters a room: gate, then history load and channel connect in parallel, then
// backlog merge. Gate denials and load failures are returned and nothing stays open.
// A failed connect is not fatal; Run retries it.
func Open(ctx context.Context, rawRoomID string, u user.User, trackingEnabled bool, deps Deps) (*Session, error) {
	entry, err := NewGate(deps.Backend).Authorize(ctx, rawRoomID, u.ID)
	if err != nil {
		return nil, err
	}

	sess := session.New(entry.RoomID, u, trackingEnabled)
	sess.Authorize()

	ch := deps.NewChannel(entry.RoomID)
	roster := location.NewRoster()

	s := &Session{
		deps:     deps,
		entry:    entry,
		sess:     sess,
		ch:       ch,
		timeline: chat.NewTimeline(entry.RoomID),
		roster:   roster,
		relay:    location.NewRelay(sess, deps.Positioner, ch, deps.Backend, roster),
		coord:    NewCoordinator(sess, ch, deps.Backend),
		pumpDone: make(chan struct{}),
		closing:  make(chan struct{}),
		logger:   logx.Component("session", entry.RoomID),
	}

	go s.pump()

	var (
		loaded     Context
		connectErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		loaded, err = NewLoader(deps.Backend, deps.LoadTimeout).Load(gctx, entry.RoomID)
		return err
	})
	g.Go(func() error {
		connectErr = ch.Connect(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.timeline.LoadBacklog(loaded.History); err != nil {
		s.Close()
		return nil, errs.Wrap(errs.ErrLoadFailed, err)
	}
	s.applySnapshot(loaded)

	if connectErr != nil {
		s.logger.Warn().Err(connectErr).Msg("Entered room offline. Reconnect will be attempted.")
	}

	s.logger.Info().
		Str("user_id", u.ID).
		Str("status", entry.Status).
		Int("messages", s.timeline.Len()).
		Bool("sharing", sess.LocationSharingEnabled()).
		Str("channel", ch.State().String()).
		Msg("Entered chat room.")
	return s, nil
}

// applySnapshot resets the roster and replays frames that raced the load.
func (s *Session) applySnapshot(loaded Context) {
	s.sess.SetLocationSharing(loaded.Snapshot != nil)

	s.heldMu.Lock()
	defer s.heldMu.Unlock()

	s.roster.Reset(loaded.Companions)
	for _, d := range s.held {
		s.applyToRoster(d)
	}
	s.held = nil
	s.ready = true
}

// pump is the single consumer of the channel stream. It applies deliveries to the
// timeline and the roster in arrival order.
func (s *Session) pump() {
	defer close(s.pumpDone)

	for d := range s.ch.Stream() {
		if d.Message != nil && !s.timeline.Append(*d.Message) {
			continue
		}
		if d.Message == nil && d.Location == nil {
			continue
		}

		s.heldMu.Lock()
		if s.ready {
			s.applyToRoster(d)
		} else {
			s.held = append(s.held, d)
		}
		s.heldMu.Unlock()
	}
}

func (s *Session) applyToRoster(d channel.Delivery) {
	switch {
	case d.Message != nil:
		s.relay.HandleMessage(*d.Message)
	case d.Location != nil:
		s.relay.HandleFrame(*d.Location)
	}
}

// Run supervises the channel until ctx ends, the session closes, or reconnects are
// exhausted. After each successful reconnect the history is backfilled.
func (s *Session) Run(ctx context.Context) error {
	if s.isClosing() {
		return nil
	}
	if s.ch.State() != channel.Connected {
		if err := s.reconnect(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case err, ok := <-s.ch.Drops():
			if !ok {
				return nil
			}
			if s.ch.State() == channel.Connected {
				// Stale signal from a connection already replaced.
				continue
			}
			s.logger.Warn().Err(err).Msg("Live channel lost. Reconnecting.")
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Session) reconnect(ctx context.Context) error {
	attempt := 0
	op := func() error {
		if s.isClosing() {
			return backoff.Permanent(errs.NewError(errs.ErrNotConnected))
		}
		attempt++
		err := s.ch.Connect(ctx)
		if err != nil {
			metrics.ChannelReconnects.WithLabelValues("failed").Inc()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Info().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Reconnect failed.")
	}

	if err := backoff.RetryNotify(op, s.deps.Reconnect.backOff(ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if s.isClosing() {
			return nil
		}
		s.logger.Error().Err(err).Int("attempts", attempt).Msg("Giving up on the live channel.")
		return errs.Wrap(errs.ErrChannel, err)
	}
	metrics.ChannelReconnects.WithLabelValues("ok").Inc()

	history, err := s.deps.Backend.History(ctx, s.sess.RoomID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Backfill after reconnect failed.")
		return nil
	}
	added := s.timeline.Backfill(history)
	s.logger.Info().Int("attempts", attempt).Int("backfilled", added).Msg("Live channel restored.")
	return nil
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// SendText publishes a text message.
func (s *Session) SendText(text string) error {
	return s.ch.Send(chat.Outbound{
		ChatRoomID: s.sess.RoomID,
		SenderID:   s.sess.User.ID,
		Content:    text,
	})
}

// ShareLocation publishes the current position once.
func (s *Session) ShareLocation(ctx context.Context) (location.CompanionLocation, error) {
	return s.relay.ShareOnce(ctx)
}

// EnableTracking opts in to location tracking and stores the current position.
func (s *Session) EnableTracking(ctx context.Context) (location.Position, error) {
	return s.relay.EnableTracking(ctx)
}

// DisableTracking opts out of location tracking.
func (s *Session) DisableTracking() {
	s.relay.DisableTracking()
}

// Leave runs the leave sequence. On success the session is closed.
func (s *Session) Leave(ctx context.Context) (Ack, error) {
	ack, err := s.coord.Leave(ctx)
	if err != nil {
		return ack, err
	}
	s.Close()
	return ack, nil
}

// Close closes the channel and waits for the pump to drain. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		if err := s.ch.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Channel close failed.")
		}
		<-s.pumpDone
	})
}

// Entry returns the entry data granted by the gate.
func (s *Session) Entry() Entry {
	return s.entry
}

// State returns the session-scoped context of the room.
func (s *Session) State() *session.ChatRoomSession {
	return s.sess
}

func (s *Session) Timeline() *chat.Timeline {
	return s.timeline
}

func (s *Session) Roster() *location.Roster {
	return s.roster
}

func (s *Session) ChannelState() channel.State {
	return s.ch.State()
}
