package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JSON Web Token claims accepted by the development backend.
// It carries the member identity so the backend never has to look the caller up.
type Payload struct {
	// StandardClaims embeds the registered claims (exp, iat, iss).
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the backend member id; it travels as senderId on the live channel.
	ID string `json:"id"`

	// Nickname is the display name shown in chat rooms and on the map.
	Nickname string `json:"nickname"`

	// ProfileImage is the avatar URL, possibly empty.
	ProfileImage string `json:"profile_image,omitempty"`
}
