/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError template, used to
standardize user-facing notices and the development backend's HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the CustomError template corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnexpectedResponse:   {Code: ErrUnexpectedResponse, Message: "The server sent an unexpected response."},

	// 2xxx: Room Session Errors
	ErrInvalidRoom:           {Code: ErrInvalidRoom, Message: "Invalid chat room id.", Status: http.StatusBadRequest},
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "Chat room not found.", Status: http.StatusNotFound},
	ErrNotParticipant:        {Code: ErrNotParticipant, Message: "You can only enter chats you participate in.", Status: http.StatusForbidden},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes).", Status: http.StatusBadRequest},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty.", Status: http.StatusBadRequest},
	ErrLoadFailed:            {Code: ErrLoadFailed, Message: "Could not load the chat room. Please try again."},
	ErrLeaveFailed:           {Code: ErrLeaveFailed, Message: "Leaving the chat room did not complete. Please try again."},

	// 3xxx: Identity, Channel and Location Errors
	ErrUnauthorized:          {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrSignupRequired:        {Code: ErrSignupRequired, Message: "Please finish signing up first."},
	ErrChannel:               {Code: ErrChannel, Message: "Live chat connection failed."},
	ErrNotConnected:          {Code: ErrNotConnected, Message: "Message not delivered: chat is offline."},
	ErrCapabilityUnavailable: {Code: ErrCapabilityUnavailable, Message: "Location information is not available."},
	ErrPermissionDenied:      {Code: ErrPermissionDenied, Message: "Please allow location access."},
	ErrTrackingDisabled:      {Code: ErrTrackingDisabled, Message: "Please turn on location tracking first."},
	ErrSharingDisabled:       {Code: ErrSharingDisabled, Message: "Location sharing is turned off for this room."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
