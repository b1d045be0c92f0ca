package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EntryData is the answer of the entry check.
type EntryData struct {
	AccompanyPostID int64  `json:"accompanyPostId"`
	ChatRoomID      int64  `json:"chatRoomId"`
	LeaderID        int64  `json:"leaderId"`
	Status          string `json:"status"`
	IsPostExists    bool   `json:"isPostExists"`
}

// LatLng is a bare coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MemberLocation is one entry of the location snapshot. LastLocation is nil for
// members who never shared.
type MemberLocation struct {
	LastLocation     *LatLng `json:"lastLocation"`
	MemberID         int64   `json:"memberId"`
	Nickname         string  `json:"nickname"`
	ProfileImagePath string  `json:"profileImagePath"`
}

// LocationSnapshot is the room's location state at entry.
type LocationSnapshot struct {
	IsLocationSharingEnabled bool             `json:"isLocationSharingEnabled"`
	MemberLocations          []MemberLocation `json:"chatRoomMemberLocations"`
}

// FlexID decodes an id sent either as a JSON number or a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = FlexID(n.String())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("backend: id is neither number nor string: %s", data)
	}
	*id = FlexID(s)
	return nil
}

func (id FlexID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}
