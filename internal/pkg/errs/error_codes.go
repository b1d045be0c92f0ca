/*
Package errs provides custom error types and application-level error code constants.

These error codes identify every failure the chat session can surface, both to the
display layer of the client and over the development backend's HTTP responses.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnexpectedResponse indicates that the backend answered with a payload the client cannot decode.
	ErrUnexpectedResponse = 1008
)

// 2xxx: Room Session Errors
const (
	// ErrInvalidRoom indicates a room id that is not a positive integer. No network call is made.
	ErrInvalidRoom = 2101

	// ErrRoomNotFound indicates that the backend does not know the requested room.
	ErrRoomNotFound = 2103

	// ErrNotParticipant indicates that the current user is not a member of the room.
	ErrNotParticipant = 2105

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that a chat message without content was submitted.
	ErrMessageEmpty = 2202

	// ErrLoadFailed indicates that the backlog or the location snapshot could not be loaded.
	ErrLoadFailed = 2301

	// ErrLeaveFailed indicates that the durable leave call did not complete.
	ErrLeaveFailed = 2401
)

// 3xxx: Identity, Channel and Location Errors
const (
	// ErrUnauthorized indicates a missing or rejected access token.
	ErrUnauthorized = 3001

	// ErrSignupRequired indicates the account exists but has not finished signing up.
	ErrSignupRequired = 3002

	// ErrChannel indicates a connect, subscribe or publish failure on the live channel.
	ErrChannel = 3101

	// ErrNotConnected indicates a send attempted while the live channel is not connected.
	ErrNotConnected = 3102

	// ErrCapabilityUnavailable indicates the runtime has no positioning capability.
	ErrCapabilityUnavailable = 3201

	// ErrPermissionDenied indicates the user refused access to the device position.
	ErrPermissionDenied = 3202

	// ErrTrackingDisabled indicates the user has not opted in to location tracking.
	ErrTrackingDisabled = 3203

	// ErrSharingDisabled indicates the room has location sharing turned off.
	ErrSharingDisabled = 3204
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000
)
