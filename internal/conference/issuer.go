// Package conference mints join credentials for the external audio/video
// provider. The provider verifies them with the shared API secret.
package conference

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

var ErrNotConfigured = errors.New("conference credentials are not configured")

type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
}

type Claims struct {
	Name     string     `json:"name,omitempty"`
	Metadata string     `json:"metadata,omitempty"`
	Video    VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

type Credential struct {
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Issuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Issuer{apiKey: apiKey, apiSecret: []byte(apiSecret), ttl: ttl, now: time.Now}
}

// Issue signs a short-lived credential for one participant of one room.
// Instructors publish; everyone subscribes; moderators get room admin.
func (i *Issuer) Issue(room, userID, name string, role models.Role) (Credential, error) {
	if i.apiKey == "" || len(i.apiSecret) == 0 {
		return Credential{}, ErrNotConfigured
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Name: name,
		Video: VideoGrant{
			Room:           room,
			RoomJoin:       true,
			CanPublish:     role.CanPublish(),
			CanSubscribe:   true,
			CanPublishData: true,
			RoomAdmin:      role.CanModerate(),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   userID,
			ID:        userID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: tok, Room: room, Identity: userID, ExpiresAt: exp}, nil
}
