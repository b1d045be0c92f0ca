/*
Package resp provides helper functions for constructing and sending the backend's
standardized HTTP JSON responses.

Every answer uses the envelope {"message", "data"}: message is a machine keyword such as
SUCCESS or NOT_FOUND that clients switch on, data is the optional payload. Error answers
also carry the business code and a user-facing detail.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
)

// Envelope keywords.
const (
	MessageSuccess        = "SUCCESS"
	MessageFirstLogin     = "FIRST_LOGIN"
	MessageNotFound       = "NOT_FOUND"
	MessageNotParticipant = "NOT_PARTICIPANT"
	MessageNotMember      = "NOT_MEMBER"
	MessageUnauthorized   = "UNAUTHORIZED"
	MessageBadRequest     = "BAD_REQUEST"
	MessageTooManyRequest = "TOO_MANY_REQUESTS"
	MessageError          = "ERROR"
)

// JSONResponse defines the standardized JSON response structure.
type JSONResponse struct {
	// Message is the machine keyword of the outcome.
	Message string `json:"message"`

	// Code is the business error code; omitted on success.
	Code int `json:"code,omitempty"`

	// Detail is the user-facing error description; omitted on success.
	Detail string `json:"detail,omitempty"`

	// Data is the optional response payload.
	Data any `json:"data,omitempty"`
}

// RespondJSON is a generic response function used to set the Content-Type and send the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends a SUCCESS envelope with HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{Message: MessageSuccess, Data: data})
}

// RespondMessage sends an envelope with an explicit keyword and status.
func RespondMessage(w http.ResponseWriter, r *http.Request, httpStatus int, message string, data any) {
	RespondJSON(w, r, httpStatus, JSONResponse{Message: message, Data: data})
}

// RespondError sends an HTTP response containing custom error information.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	res := JSONResponse{
		Message: keywordFor(customErr.Code),
		Code:    customErr.Code,
		Detail:  customErr.Message,
	}
	RespondJSON(w, r, customErr.Status, res)
}

func keywordFor(code int) string {
	switch code {
	case errs.ErrRoomNotFound:
		return MessageNotFound
	case errs.ErrNotParticipant:
		return MessageNotParticipant
	case errs.ErrUnauthorized:
		return MessageUnauthorized
	case errs.ErrSignupRequired:
		return MessageFirstLogin
	case errs.ErrRateLimitExceeded:
		return MessageTooManyRequest
	case errs.ErrInvalidParams, errs.ErrInvalidRoom, errs.ErrUnsupportedMediaType,
		errs.ErrInvalidJSONFormat, errs.ErrExtraContentInBody, errs.ErrMessageEmpty,
		errs.ErrMessageContentTooLong:
		return MessageBadRequest
	default:
		return MessageError
	}
}
