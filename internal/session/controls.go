package session

import "errors"

var ErrInvalidControlField = errors.New("invalid control field")

type ControlField string

const (
	FieldChat                ControlField = "chat"
	FieldAudio               ControlField = "audio"
	FieldVideo               ControlField = "video"
	FieldScreen              ControlField = "screen"
	FieldWhiteboardVisible   ControlField = "whiteboard_visibility"
	FieldRecordingProtection ControlField = "recording_protection"
)

func ParseControlField(s string) (ControlField, error) {
	switch f := ControlField(s); f {
	case FieldChat, FieldAudio, FieldVideo, FieldScreen, FieldWhiteboardVisible, FieldRecordingProtection:
		return f, nil
	}
	return "", ErrInvalidControlField
}

// Controls are the room-wide flags replayed to every late joiner.
type Controls struct {
	ChatLocked         bool `json:"chatLocked"`
	AudioLocked        bool `json:"audioLocked"`
	VideoLocked        bool `json:"videoLocked"`
	ScreenLocked       bool `json:"screenLocked"`
	WhiteboardVisible  bool `json:"whiteboardVisible"`
	RecordingProtected bool `json:"recordingProtected"`
}

func DefaultControls() Controls {
	return Controls{WhiteboardVisible: true}
}

func (c *Controls) Set(f ControlField, v bool) error {
	switch f {
	case FieldChat:
		c.ChatLocked = v
	case FieldAudio:
		c.AudioLocked = v
	case FieldVideo:
		c.VideoLocked = v
	case FieldScreen:
		c.ScreenLocked = v
	case FieldWhiteboardVisible:
		c.WhiteboardVisible = v
	case FieldRecordingProtection:
		c.RecordingProtected = v
	default:
		return ErrInvalidControlField
	}
	return nil
}

func (c Controls) Get(f ControlField) (bool, error) {
	switch f {
	case FieldChat:
		return c.ChatLocked, nil
	case FieldAudio:
		return c.AudioLocked, nil
	case FieldVideo:
		return c.VideoLocked, nil
	case FieldScreen:
		return c.ScreenLocked, nil
	case FieldWhiteboardVisible:
		return c.WhiteboardVisible, nil
	case FieldRecordingProtection:
		return c.RecordingProtected, nil
	}
	return false, ErrInvalidControlField
}
