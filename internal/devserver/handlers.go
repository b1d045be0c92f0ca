/*
Package devserver is an in-process implementation of the accompany backend.

This file contains the REST handlers. Each one resolves the caller from the JWT identity
in the request context, delegates to the Store and answers with the standard envelope.
*/
package devserver

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"accompany/internal/app/backend"
	"accompany/internal/app/chat"
	"accompany/internal/pkg/auth/jwt"
	"accompany/internal/pkg/errs"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/randx"
	"accompany/internal/pkg/req"
	"accompany/internal/pkg/resp"
)

// roomIDParam parses the {roomId} URL parameter.
func roomIDParam(r *http.Request) (int64, *errs.CustomError) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		return 0, errs.NewError(errs.ErrInvalidRoom)
	}
	return roomID, nil
}

// HandleMe answers GET /api/v1/members/me. A token without a nickname belongs to an
// account that has not finished signing up.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)

		if payload.Nickname == "" {
			resp.RespondMessage(w, r, http.StatusOK, resp.MessageFirstLogin, nil)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"userId":       backend.FlexID(payload.ID),
			"nickname":     payload.Nickname,
			"profileImage": payload.ProfileImage,
		})
	}
}

// HandleJoin answers POST /api/v1/chat/rooms/{roomId}/members/me.
func HandleJoin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		u := identityUser(jwt.GetPayloadFromContext(r))
		entry := deps.Store.Join(roomID, u)

		logx.Info("Member joined room.", "room_id", roomID, "member_id", u.ID)
		resp.RespondSuccess(w, r, entry)
	}
}

// HandleEntry answers GET /api/v1/chat/rooms/{roomId}/entry.
func HandleEntry(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		entry, cerr := deps.Store.Entry(roomID, jwt.GetPayloadFromContext(r).ID)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		resp.RespondSuccess(w, r, entry)
	}
}

// HandleHistory answers GET /api/v1/chat/rooms/{roomId}/messages.
func HandleHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		msgs, cerr := deps.Store.History(roomID, jwt.GetPayloadFromContext(r).ID)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		resp.RespondSuccess(w, r, msgs)
	}
}

// HandleLocations answers GET /api/v1/chat/rooms/{roomId}/locations.
func HandleLocations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		snap, cerr := deps.Store.Locations(roomID, jwt.GetPayloadFromContext(r).ID)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		resp.RespondSuccess(w, r, snap)
	}
}

// HandleUpdateLocation answers PUT /api/v1/chat/rooms/{roomId}/locations and pushes a
// location frame to the room's subscribers when the room shares locations.
func HandleUpdateLocation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		var pos backend.LatLng
		if cerr := req.BindJSON(w, r, &pos); cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		if !validCoordinate(pos) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		u := identityUser(jwt.GetPayloadFromContext(r))
		sharing, cerr := deps.Store.UpdateLocation(roomID, u, pos)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		if sharing {
			body, err := json.Marshal(chat.LocationFrame{
				MemberID:         memberID(u.ID),
				Lat:              pos.Lat,
				Lng:              pos.Lng,
				Nickname:         u.Nickname,
				ProfileImagePath: u.ProfileImage,
			})
			if err != nil {
				logx.Error(err, "Error marshaling location frame", "room_id", roomID)
			} else {
				deps.Hub.Publish(roomID, randx.MessageID(), body)
			}
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleLeave answers DELETE /api/v1/chat/rooms/{roomId}/members/me. A caller who is
// not a member gets 404 NOT_MEMBER.
func HandleLeave(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		callerID := jwt.GetPayloadFromContext(r).ID
		if cerr := deps.Store.Leave(roomID, callerID); cerr != nil {
			if cerr.Code == errs.ErrNotParticipant {
				resp.RespondMessage(w, r, http.StatusNotFound, resp.MessageNotMember, nil)
				return
			}
			resp.RespondError(w, r, cerr)
			return
		}

		logx.Info("Member left room.", "room_id", roomID, "member_id", callerID)
		resp.RespondSuccess(w, r, nil)
	}
}

// HandleStomp upgrades GET /ws-stomp and runs one STOMP session on the connection.
// Authentication happens on CONNECT, so the upgrade itself is open.
func HandleStomp(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := jwt.BearerToken(r.Header.Get("Authorization"))

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := NewConn(deps.Hub, deps.Store, deps.Config.JWTSecret, ws, token)

		go conn.WritePump()

		conn.ReadPump()
	}
}

func validCoordinate(p backend.LatLng) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HandleSetSharing answers PUT /api/v1/chat/rooms/{roomId}/sharing, the room-level
// location sharing switch. Only the leader may flip it.
func HandleSetSharing(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, cerr := roomIDParam(r)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		var input struct {
			Enabled bool `json:"enabled"`
		}
		if cerr := req.BindJSON(w, r, &input); cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}

		callerID := jwt.GetPayloadFromContext(r).ID
		entry, cerr := deps.Store.Entry(roomID, callerID)
		if cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		if entry.LeaderID != memberID(callerID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotParticipant))
			return
		}

		if cerr := deps.Store.SetSharing(roomID, input.Enabled); cerr != nil {
			resp.RespondError(w, r, cerr)
			return
		}
		resp.RespondSuccess(w, r, map[string]bool{"isLocationSharingEnabled": input.Enabled})
	}
}
