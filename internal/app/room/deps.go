/*
Package room drives one chat room session from entry to exit.

This file declares the collaborators the room components depend on. The backend client
and the channel manager satisfy them in production; tests substitute mocks.
*/
package room

import (
	"context"

	"accompany/internal/app/backend"
	"accompany/internal/app/channel"
	"accompany/internal/app/chat"
)

// EntryChecker answers the entry check.
type EntryChecker interface {
	CheckEntry(ctx context.Context, roomID int64) (backend.EntryData, error)
}

// HistorySource provides the durable state loaded on entry.
type HistorySource interface {
	History(ctx context.Context, roomID int64) ([]chat.Message, error)
	Locations(ctx context.Context, roomID int64) (backend.LocationSnapshot, error)
}

// Leaver removes the member from a room durably.
type Leaver interface {
	Leave(ctx context.Context, roomID int64) error
}

// Backend is everything a session needs from the REST API.
type Backend interface {
	EntryChecker
	HistorySource
	Leaver
	UpdateLocation(ctx context.Context, roomID int64, lat, lng float64) error
}

// Notifier publishes on the live channel and closes it.
type Notifier interface {
	Send(out chat.Outbound) error
	Close() error
}

// Channel is the live channel of one room.
type Channel interface {
	Notifier
	Connect(ctx context.Context) error
	State() channel.State
	Stream() <-chan channel.Delivery
	Drops() <-chan error
}

var (
	_ Backend = (*backend.Client)(nil)
	_ Channel = (*channel.Manager)(nil)
)
