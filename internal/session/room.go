package session

import (
	"errors"
	"strings"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// Kind separates room namespaces so a regular class and a super class
// with the same entity id never share state.
type Kind string

const (
	KindRegular Kind = "regular"
	KindSuper   Kind = "super"
)

var ErrUnknownKind = errors.New("unknown room kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRegular, KindSuper:
		return k, nil
	}
	return "", ErrUnknownKind
}

// RoomID is "<kind>:<entityId>".
type RoomID string

func NewRoomID(kind Kind, entityID string) RoomID {
	return RoomID(string(kind) + ":" + entityID)
}

// ParseRoomID accepts either a full "<kind>:<id>" value or a bare entity id,
// which is placed in the regular namespace.
func ParseRoomID(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty room id")
	}
	kind, entity, ok := strings.Cut(s, ":")
	if !ok {
		return NewRoomID(KindRegular, s), nil
	}
	k, err := ParseKind(kind)
	if err != nil {
		return "", err
	}
	if entity == "" {
		return "", errors.New("empty room entity id")
	}
	return NewRoomID(k, entity), nil
}

func (id RoomID) Kind() Kind {
	kind, _, _ := strings.Cut(string(id), ":")
	return Kind(kind)
}

func (id RoomID) EntityID() string {
	_, entity, _ := strings.Cut(string(id), ":")
	return entity
}

// Participant is one roster entry. A user holding several connections
// appears once per connection.
type Participant struct {
	ConnectionID string      `json:"connectionId"`
	UserID       string      `json:"userId"`
	DisplayName  string      `json:"userName"`
	Role         models.Role `json:"role"`
}

// Snapshot is a consistent copy of a room taken under its lock.
type Snapshot struct {
	Room        RoomID        `json:"roomId"`
	Controls    Controls      `json:"controls"`
	Members     []Participant `json:"members"`
	RaisedHands []string      `json:"raisedHands"`
}

// ConnectionIDs lists every member connection, optionally skipping one.
func (s Snapshot) ConnectionIDs(except string) []string {
	out := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		if m.ConnectionID != except {
			out = append(out, m.ConnectionID)
		}
	}
	return out
}

// Moderators lists connections whose role may moderate the room.
func (s Snapshot) Moderators() []string {
	var out []string
	for _, m := range s.Members {
		if m.Role.CanModerate() {
			out = append(out, m.ConnectionID)
		}
	}
	return out
}

// UserConnections lists every connection held by userID in the room.
func (s Snapshot) UserConnections(userID string) []string {
	var out []string
	for _, m := range s.Members {
		if m.UserID == userID {
			out = append(out, m.ConnectionID)
		}
	}
	return out
}
