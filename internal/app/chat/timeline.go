/*
Package chat contains the message model of a chat room and the timeline that merges
the durable backlog with the live feed.

This file defines the Timeline, the single ordered, de-duplicated, append-only sequence
shown to the display layer. It has an explicit Loading state: live messages that arrive
before the backlog are held back and merged when the backlog lands, so the display never
renders (or scrolls) a half-loaded room.
*/
package chat

import (
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
)

const changeBuffer = 64

// ErrBacklogLoaded is returned when LoadBacklog is called twice.
var ErrBacklogLoaded = errors.New("chat: backlog already loaded")

// TimelineState is the loading state of a timeline.
type TimelineState int

const (
	// Loading: the backlog has not arrived yet; live messages are held.
	Loading TimelineState = iota

	// Ready: the backlog is merged; live messages are appended and signalled.
	Ready
)

func (s TimelineState) String() string {
	if s == Ready {
		return "ready"
	}
	return "loading"
}

// ChangeKind says what produced a Change.
type ChangeKind int

const (
	ChangeBacklog ChangeKind = iota
	ChangeAppend
	ChangeBackfill
)

// Change signals new content to the display layer.
type Change struct {
	Kind ChangeKind

	// Added is the number of messages that became visible.
	Added int

	// Scroll asks the display to scroll to the newest entry.
	Scroll bool

	// Resorted is set when an out-of-order message forced a full resort.
	Resorted bool
}

// Timeline merges historical and live messages for one room.
type Timeline struct {
	roomLabel string

	// mu protects every field below.
	mu sync.RWMutex

	state    TimelineState
	messages []Message
	seen     map[string]struct{}

	// pending holds live messages received while Loading, in arrival order.
	pending []Message

	changes chan Change

	logger zerolog.Logger
}

// NewTimeline creates an empty timeline in the Loading state.
func NewTimeline(roomID int64) *Timeline {
	return &Timeline{
		roomLabel: strconv.FormatInt(roomID, 10),
		state:     Loading,
		seen:      make(map[string]struct{}),
		changes:   make(chan Change, changeBuffer),
		logger:    logx.Component("timeline", roomID),
	}
}

// Changes returns the stream of display signals. It is never closed.
func (t *Timeline) Changes() <-chan Change {
	return t.changes
}

// State returns the current loading state.
func (t *Timeline) State() TimelineState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Len returns the number of visible messages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Snapshot returns a copy of the visible messages in display order.
func (t *Timeline) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages)
}

// LoadBacklog installs the historical messages and moves the timeline to Ready.
// Messages held while Loading are merged behind the backlog; a held message whose
// id also appears in the backlog is dropped in favour of the durable copy.
func (t *Timeline) LoadBacklog(backlog []Message) error {
	t.mu.Lock()

	if t.state == Ready {
		t.mu.Unlock()
		return ErrBacklogLoaded
	}

	seen := make(map[string]struct{}, len(backlog)+len(t.pending))
	merged := make([]Message, 0, len(backlog)+len(t.pending))

	for _, msg := range backlog {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		merged = append(merged, msg)
	}

	resorted := !isSorted(merged)

	for _, msg := range t.pending {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		if n := len(merged); n > 0 && msg.CreatedAt.Before(merged[n-1].CreatedAt.Time) {
			resorted = true
		}
		merged = append(merged, msg)
	}

	if resorted {
		sortStable(merged)
	}

	held := len(t.pending)
	t.messages = merged
	t.seen = seen
	t.pending = nil
	t.state = Ready
	total := len(t.messages)

	t.mu.Unlock()

	t.logger.Debug().
		Int("backlog", len(backlog)).
		Int("held_live", held).
		Int("visible", total).
		Bool("resorted", resorted).
		Msg("Backlog loaded.")

	metrics.TimelineMessages.WithLabelValues(t.roomLabel).Set(float64(total))
	t.emit(Change{Kind: ChangeBacklog, Added: total, Scroll: true, Resorted: resorted})
	return nil
}

// Append adds one live message. It returns false when the id is already known.
// While Loading the message is held and no change is signalled.
func (t *Timeline) Append(msg Message) bool {
	t.mu.Lock()

	if _, dup := t.seen[msg.ID]; dup {
		t.mu.Unlock()
		t.logger.Debug().Str("message_id", msg.ID).Msg("Dropping duplicate live message.")
		return false
	}
	t.seen[msg.ID] = struct{}{}

	if t.state == Loading {
		t.pending = append(t.pending, msg)
		t.mu.Unlock()
		return true
	}

	resorted := false
	if n := len(t.messages); n > 0 && msg.CreatedAt.Before(t.messages[n-1].CreatedAt.Time) {
		resorted = true
	}
	t.messages = append(t.messages, msg)
	if resorted {
		// The transport does not formally guarantee order; fall back to a full stable resort.
		sortStable(t.messages)
	}
	total := len(t.messages)

	t.mu.Unlock()

	if resorted {
		t.logger.Warn().Str("message_id", msg.ID).Msg("Live message arrived out of order. Timeline resorted.")
	}

	metrics.TimelineMessages.WithLabelValues(t.roomLabel).Set(float64(total))
	t.emit(Change{Kind: ChangeAppend, Added: 1, Scroll: true, Resorted: resorted})
	return true
}

// Backfill merges a re-fetched history (after a reconnect) and returns how many
// messages were new. It is idempotent. Before the backlog is loaded it behaves
// like LoadBacklog.
func (t *Timeline) Backfill(history []Message) int {
	if t.State() == Loading {
		if err := t.LoadBacklog(history); err == nil {
			return t.Len()
		}
	}

	t.mu.Lock()

	added := 0
	resorted := false
	for _, msg := range history {
		if _, dup := t.seen[msg.ID]; dup {
			continue
		}
		t.seen[msg.ID] = struct{}{}
		if n := len(t.messages); n > 0 && msg.CreatedAt.Before(t.messages[n-1].CreatedAt.Time) {
			resorted = true
		}
		t.messages = append(t.messages, msg)
		added++
	}
	if resorted {
		sortStable(t.messages)
	}
	total := len(t.messages)

	t.mu.Unlock()

	if added == 0 {
		return 0
	}

	t.logger.Info().Int("added", added).Bool("resorted", resorted).Msg("Backfilled messages missed while offline.")
	metrics.TimelineMessages.WithLabelValues(t.roomLabel).Set(float64(total))
	t.emit(Change{Kind: ChangeBackfill, Added: added, Scroll: true, Resorted: resorted})
	return added
}

// emit queues a change without blocking the caller (the session pump).
func (t *Timeline) emit(c Change) {
	select {
	case t.changes <- c:
	default:
		t.logger.Warn().Int("queue_len", len(t.changes)).Msg("Timeline change queue full, dropping signal.")
	}
}

func isSorted(msgs []Message) bool {
	return slices.IsSortedFunc(msgs, compareCreatedAt)
}

func sortStable(msgs []Message) {
	slices.SortStableFunc(msgs, compareCreatedAt)
}

func compareCreatedAt(a, b Message) int {
	return a.CreatedAt.Compare(b.CreatedAt.Time)
}
