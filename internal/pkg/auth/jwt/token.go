package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// MemberAccessExpiration is how long a member token minted by `accompany token` stays valid.
	MemberAccessExpiration = 24 * time.Hour

	// TokenIssuer is stamped into every member token of the development backend.
	TokenIssuer = "accompany-devserver"
)

var (
	ErrSigningMethod = errors.New("member token is not HMAC signed")
	ErrTokenRejected = errors.New("member token rejected")
	ErrNoMemberID    = errors.New("member token carries no member id")
)

// GenerateToken signs a member token for payload, valid for ttl. The registered
// claims of payload are overwritten.
func GenerateToken(payload *Payload, secretKey string, ttl time.Duration) (string, error) {
	issuedAt := time.Now()
	payload.StandardClaims = jwt.StandardClaims{
		Issuer:    TokenIssuer,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: issuedAt.Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
}

// ParseToken verifies a member token presented on REST calls or in the STOMP
// CONNECT frame and returns the member it names.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	member := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, member, hmacKey(secretKey))
	switch {
	case err != nil:
		return nil, err
	case !token.Valid:
		return nil, ErrTokenRejected
	case member.ID == "":
		return nil, ErrNoMemberID
	}
	return member, nil
}

func hmacKey(secretKey string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSigningMethod
		}
		return []byte(secretKey), nil
	}
}
