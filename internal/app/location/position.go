/*
Package location shares the user's position with the room and keeps the roster of
companion locations.

This file defines device positioning and the map link embedded in location-share
messages.
*/
package location

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"accompany/internal/pkg/errs"
)

const mapLinkPrefix = "https://map.kakao.com/link/map/"

// Position is a device fix in WGS84 degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are within range.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Positioner provides the device's current position. Implementations report a
// missing capability with errs.ErrCapabilityUnavailable and a refusal with
// errs.ErrPermissionDenied.
type Positioner interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// StaticPositioner always reports the same fix. The CLI builds one from DEVICE_LAT/DEVICE_LNG.
type StaticPositioner struct {
	Fix Position
}

func (s StaticPositioner) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, errs.Wrap(errs.ErrCapabilityUnavailable, err)
	}
	return s.Fix, nil
}

// NoPositioner is used when the device has no positioning capability.
type NoPositioner struct{}

func (NoPositioner) CurrentPosition(context.Context) (Position, error) {
	return Position{}, errs.NewError(errs.ErrCapabilityUnavailable)
}

// DeniedPositioner models a user who refused the location permission.
type DeniedPositioner struct{}

func (DeniedPositioner) CurrentPosition(context.Context) (Position, error) {
	return Position{}, errs.NewError(errs.ErrPermissionDenied)
}

// MapLink builds the map link carried by a location-share message. The nickname is
// written verbatim, as every other client of the room does.
func MapLink(nickname string, p Position) string {
	return fmt.Sprintf("%s%s,%s,%s", mapLinkPrefix, nickname, formatCoord(p.Lat), formatCoord(p.Lng))
}

// ParseMapLink recovers the nickname and position from a map link.
func ParseMapLink(link string) (string, Position, bool) {
	rest, ok := strings.CutPrefix(link, mapLinkPrefix)
	if !ok {
		return "", Position{}, false
	}

	lngIdx := strings.LastIndexByte(rest, ',')
	if lngIdx <= 0 {
		return "", Position{}, false
	}
	latIdx := strings.LastIndexByte(rest[:lngIdx], ',')
	if latIdx <= 0 {
		return "", Position{}, false
	}

	// Links copied out of a browser arrive percent-encoded.
	nickname := rest[:latIdx]
	if unescaped, err := url.PathUnescape(nickname); err == nil {
		nickname = unescaped
	}
	if nickname == "" {
		return "", Position{}, false
	}
	lat, err := strconv.ParseFloat(rest[latIdx+1:lngIdx], 64)
	if err != nil {
		return "", Position{}, false
	}
	lng, err := strconv.ParseFloat(rest[lngIdx+1:], 64)
	if err != nil {
		return "", Position{}, false
	}

	p := Position{Lat: lat, Lng: lng}
	if !p.Valid() {
		return "", Position{}, false
	}
	return nickname, p, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
