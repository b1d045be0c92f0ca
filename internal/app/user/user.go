/*
Package user contains the identity of a chat participant.

The current user is resolved once (from configuration or the backend's "me" endpoint)
and handed to each room session explicitly; there is no process-wide user store.
*/
package user

import "strings"

// User represents the basic identity information of a chat participant.
type User struct {
	// ID is the backend member id, kept as a string because it travels as senderId.
	ID string `json:"userId"`

	// Nickname is the display name of the user in chat rooms and on the map.
	Nickname string `json:"nickname"`

	// ProfileImage is the URL of the user's avatar, possibly empty.
	ProfileImage string `json:"profileImage,omitempty"`
}

// IsComplete reports whether the identity can be used to enter a room.
func (u User) IsComplete() bool {
	return strings.TrimSpace(u.ID) != "" && strings.TrimSpace(u.Nickname) != ""
}
