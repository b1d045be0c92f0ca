package room

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"accompany/internal/app/backend"
	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
	"accompany/internal/pkg/errs"
)

// recorder keeps the order of side effects across collaborators.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type mockBackend struct {
	mock.Mock
	rec *recorder
}

func (m *mockBackend) CheckEntry(ctx context.Context, roomID int64) (backend.EntryData, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(backend.EntryData), args.Error(1)
}

func (m *mockBackend) History(ctx context.Context, roomID int64) ([]chat.Message, error) {
	args := m.Called(ctx, roomID)
	msgs, _ := args.Get(0).([]chat.Message)
	return msgs, args.Error(1)
}

func (m *mockBackend) Locations(ctx context.Context, roomID int64) (backend.LocationSnapshot, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(backend.LocationSnapshot), args.Error(1)
}

func (m *mockBackend) Leave(ctx context.Context, roomID int64) error {
	if m.rec != nil {
		m.rec.add("leave")
	}
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *mockBackend) UpdateLocation(ctx context.Context, roomID int64, lat, lng float64) error {
	args := m.Called(ctx, roomID, lat, lng)
	return args.Error(0)
}

// fakeChannel is an in-memory Channel whose stream and drops the test drives.
type fakeChannel struct {
	rec *recorder

	mu          sync.Mutex
	state       channel.State
	connectErrs []error
	connects    int
	sendErr     error
	sent        []chat.Outbound

	stream    chan channel.Delivery
	drops     chan error
	closeOnce sync.Once
}

func newFakeChannel(rec *recorder) *fakeChannel {
	return &fakeChannel{
		rec:    rec,
		stream: make(chan channel.Delivery, 16),
		drops:  make(chan error, 1),
	}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			f.state = channel.Disconnected
			return err
		}
	}
	f.state = channel.Connected
	return nil
}

func (f *fakeChannel) Send(out chat.Outbound) error {
	if f.rec != nil {
		f.rec.add("publish")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	if f.state != channel.Connected {
		return errs.NewError(errs.ErrNotConnected)
	}
	f.sent = append(f.sent, out)
	return nil
}

func (f *fakeChannel) Close() error {
	if f.rec != nil {
		f.rec.add("close")
	}
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.state = channel.Disconnected
		f.mu.Unlock()
		close(f.stream)
		close(f.drops)
	})
	return nil
}

func (f *fakeChannel) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Stream() <-chan channel.Delivery {
	return f.stream
}

func (f *fakeChannel) Drops() <-chan error {
	return f.drops
}

// drop simulates an unexpected loss of the connection.
func (f *fakeChannel) drop() {
	f.mu.Lock()
	f.state = channel.Disconnected
	f.mu.Unlock()
	f.drops <- errs.NewError(errs.ErrChannel)
}

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeChannel) sentMessages() []chat.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Outbound(nil), f.sent...)
}
