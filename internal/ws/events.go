package ws

import (
	"encoding/json"
	"time"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
)

// envelope is the frame format in both directions.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client events.
const (
	evJoinRoom                  = "join_room"
	evLeaveRoom                 = "leave_room"
	evChatMessage               = "chat_message"
	evReaction                  = "reaction"
	evRaiseHand                 = "raise_hand"
	evLowerHand                 = "lower_hand"
	evApproveHand               = "approve_hand"
	evLowerAllHands             = "lower_all_hands"
	evToggleChat                = "toggle_chat"
	evToggleAudio               = "toggle_audio"
	evToggleVideo               = "toggle_video"
	evToggleScreen              = "toggle_screen"
	evToggleWhiteboard          = "toggle_whiteboard_visibility"
	evToggleRecordingProtection = "toggle_recording_protection"
	evWhiteboardDraw            = "whiteboard_draw"
	evWhiteboardClear           = "whiteboard_clear"
	evScreenShareRequest        = "screen_share_request"
	evScreenShareApprove        = "screen_share_approve"
	evScreenShareStatus         = "screen_share_status"
	evModeratorMuteOne          = "moderator_mute_one"
	evModeratorMuteAll          = "moderator_mute_all"
	evModeratorUnlockAll        = "moderator_unlock_all"
	evGrantUnmute               = "grant_unmute"
	evRequestUnmute             = "request_unmute"
	evViolationReport           = "violation_report"
)

// Server events.
const (
	evCurrentMembers   = "current_members"
	evRoomState        = "room_state"
	evMemberJoined     = "member_joined"
	evMemberLeft       = "member_left"
	evHandRaised       = "hand_raised"
	evHandLowered      = "hand_lowered"
	evHandApproved     = "hand_approved"
	evAllHandsLowered  = "all_hands_lowered"
	evForceMuteStudent = "force_mute_student"
	evForceMuteAll     = "force_mute_all"
	evUnlockAllMics    = "unlock_all_mics"
	evUnmuteGranted    = "unmute_granted"
	evUnmuteRequested  = "unmute_requested"
	evScreenShareOK    = "screen_share_approved"
	evError            = "error"
)

// Error codes carried by the error event.
const (
	errNotJoined      = "not_joined"
	errInvalidPayload = "invalid_payload"
	errForbidden      = "forbidden"
	errChatLocked     = "chat_locked"
	errUnknownEvent   = "unknown_event"
	errIdentity       = "identity_mismatch"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type joinRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	UserID   string `json:"userId" validate:"required,max=64"`
	UserName string `json:"userName" validate:"required,max=128"`
	Role     string `json:"role" validate:"required"`
}

type memberPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

func memberOf(p session.Participant) memberPayload {
	return memberPayload{UserID: p.UserID, UserName: p.DisplayName, Role: string(p.Role)}
}

type roomStatePayload struct {
	RoomID      string           `json:"roomId"`
	Controls    session.Controls `json:"controls"`
	RaisedHands []string         `json:"raisedHands"`
}

type lockedPayload struct {
	Locked *bool `json:"locked" validate:"required"`
}

type showPayload struct {
	Show *bool `json:"show" validate:"required"`
}

type activePayload struct {
	Active *bool `json:"active" validate:"required"`
}

type chatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type chatPayload struct {
	memberPayload
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

type reactionPayload struct {
	memberPayload
	Emoji string `json:"emoji"`
}

type userTarget struct {
	UserID string `json:"userId" validate:"omitempty,max=64"`
}

type requiredUserTarget struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

type studentTarget struct {
	StudentID string `json:"studentId" validate:"required,max=64"`
}

type handPayload struct {
	UserID      string   `json:"userId,omitempty"`
	UserName    string   `json:"userName,omitempty"`
	RaisedHands []string `json:"raisedHands"`
}

type whiteboardPayload struct {
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type screenSharePayload struct {
	memberPayload
	Active *bool `json:"active,omitempty"`
}

type violationRequest struct {
	Type   string `json:"type" validate:"required,max=64"`
	Detail string `json:"detail" validate:"max=1000"`
}

type violationPayload struct {
	memberPayload
	Type       string    `json:"type"`
	Detail     string    `json:"detail,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// encode returns nil when data cannot be marshalled.
func encode(event string, data interface{}) []byte {
	b, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return nil
	}
	return b
}
