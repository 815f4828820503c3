package ws

import (
	"encoding/json"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
)

type roomEvent struct {
	moderator bool
	fn        func(c *roomClient, event string, raw json.RawMessage)
}

var roomEvents map[string]roomEvent

func init() {
	roomEvents = map[string]roomEvent{
		evLeaveRoom:     {fn: (*roomClient).leave},
		evChatMessage:   {fn: (*roomClient).chat},
		evReaction:      {fn: (*roomClient).reaction},
		evRaiseHand:     {fn: (*roomClient).raiseHand},
		evLowerHand:     {fn: (*roomClient).lowerHand},
		evApproveHand:   {moderator: true, fn: (*roomClient).approveHand},
		evLowerAllHands: {moderator: true, fn: (*roomClient).lowerAllHands},

		evToggleChat:                {moderator: true, fn: lockToggle(session.FieldChat, "chat_status")},
		evToggleAudio:               {moderator: true, fn: lockToggle(session.FieldAudio, "audio_status")},
		evToggleVideo:               {moderator: true, fn: lockToggle(session.FieldVideo, "video_status")},
		evToggleScreen:              {moderator: true, fn: lockToggle(session.FieldScreen, "screen_status")},
		evToggleWhiteboard:          {moderator: true, fn: (*roomClient).toggleWhiteboard},
		evToggleRecordingProtection: {moderator: true, fn: (*roomClient).toggleRecording},

		evWhiteboardDraw:     {moderator: true, fn: (*roomClient).whiteboard},
		evWhiteboardClear:    {moderator: true, fn: (*roomClient).whiteboard},
		evScreenShareRequest: {fn: (*roomClient).screenShareRequest},
		evScreenShareApprove: {moderator: true, fn: (*roomClient).screenShareApprove},
		evScreenShareStatus:  {fn: (*roomClient).screenShareStatus},

		evModeratorMuteOne:   {moderator: true, fn: (*roomClient).muteOne},
		evModeratorMuteAll:   {moderator: true, fn: audioLockAll(true, evForceMuteAll)},
		evModeratorUnlockAll: {moderator: true, fn: audioLockAll(false, evUnlockAllMics)},
		evGrantUnmute:        {moderator: true, fn: (*roomClient).grantUnmute},
		evRequestUnmute:      {fn: (*roomClient).requestUnmute},
		evViolationReport:    {fn: (*roomClient).violation},
	}
}

// setControl applies one toggle and broadcasts status to the whole room.
func (c *roomClient) setControl(event string, field session.ControlField, status string, data interface{}) {
	g := c.gw
	err := g.rooms.SetControl(c.current, field, valueOf(data), func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(status, data))
	})
	if err != nil {
		c.fail(errInvalidPayload, err.Error(), event)
	}
}

func valueOf(data interface{}) bool {
	switch d := data.(type) {
	case lockedPayload:
		return *d.Locked
	case showPayload:
		return *d.Show
	case activePayload:
		return *d.Active
	}
	return false
}

func lockToggle(field session.ControlField, status string) func(*roomClient, string, json.RawMessage) {
	return func(c *roomClient, event string, raw json.RawMessage) {
		var req lockedPayload
		if c.decode(event, raw, &req) {
			c.setControl(event, field, status, req)
		}
	}
}

func (c *roomClient) toggleWhiteboard(event string, raw json.RawMessage) {
	var req showPayload
	if c.decode(event, raw, &req) {
		c.setControl(event, session.FieldWhiteboardVisible, "whiteboard_visibility", req)
	}
}

func (c *roomClient) toggleRecording(event string, raw json.RawMessage) {
	var req activePayload
	if c.decode(event, raw, &req) {
		c.setControl(event, session.FieldRecordingProtection, "recording_protection_status", req)
	}
}

// audioLockAll sets the audio lock, broadcasts the new status to everyone
// and tells every other connection to act on it.
func audioLockAll(locked bool, notice string) func(*roomClient, string, json.RawMessage) {
	return func(c *roomClient, event string, raw json.RawMessage) {
		g := c.gw
		v := locked
		err := g.rooms.SetControl(c.current, session.FieldAudio, locked, func(s session.Snapshot) {
			g.sendTo(s.ConnectionIDs(""), encode("audio_status", lockedPayload{Locked: &v}))
			g.sendTo(s.ConnectionIDs(c.id), encode(notice, memberOf(c.self)))
		})
		if err != nil {
			c.fail(errInvalidPayload, err.Error(), event)
		}
	}
}

func (c *roomClient) fanout(fn func(s session.Snapshot)) {
	if !c.gw.rooms.Fanout(c.current, fn) {
		c.fail(errNotJoined, "room no longer exists", "")
	}
}

func (c *roomClient) chat(event string, raw json.RawMessage) {
	var req chatRequest
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		if s.Controls.ChatLocked && !c.self.Role.CanModerate() {
			c.fail(errChatLocked, "chat is locked", event)
			return
		}
		g.sendTo(s.ConnectionIDs(""), encode(evChatMessage, chatPayload{memberPayload: memberOf(c.self), Message: req.Message, SentAt: g.now().UTC()}))
	})
}

func (c *roomClient) reaction(event string, raw json.RawMessage) {
	var req reactionRequest
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evReaction, reactionPayload{memberPayload: memberOf(c.self), Emoji: req.Emoji}))
	})
}

func (c *roomClient) raiseHand(event string, raw json.RawMessage) {
	g := c.gw
	g.rooms.RaiseHand(c.current, c.self.UserID, func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evHandRaised, handPayload{UserID: c.self.UserID, UserName: c.self.DisplayName, RaisedHands: s.RaisedHands}))
	})
}

// lowerHand lowers the caller's own hand, or another user's when a
// moderator names one.
func (c *roomClient) lowerHand(event string, raw json.RawMessage) {
	var req userTarget
	if !c.decode(event, raw, &req) {
		return
	}
	target := c.self.UserID
	if req.UserID != "" && req.UserID != target {
		if !c.self.Role.CanModerate() {
			c.fail(errForbidden, "only moderators lower other hands", event)
			return
		}
		target = req.UserID
	}
	g := c.gw
	g.rooms.LowerHand(c.current, target, func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evHandLowered, handPayload{UserID: target, RaisedHands: s.RaisedHands}))
	})
}

func (c *roomClient) approveHand(event string, raw json.RawMessage) {
	var req requiredUserTarget
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	g.rooms.LowerHand(c.current, req.UserID, func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evHandApproved, handPayload{UserID: req.UserID, RaisedHands: s.RaisedHands}))
	})
}

func (c *roomClient) lowerAllHands(event string, raw json.RawMessage) {
	g := c.gw
	g.rooms.LowerAllHands(c.current, func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evAllHandsLowered, handPayload{RaisedHands: s.RaisedHands}))
	})
}

// whiteboard relays strokes and clears to everyone but the sender.
func (c *roomClient) whiteboard(event string, raw json.RawMessage) {
	g := c.gw
	var data json.RawMessage
	if len(raw) > 0 && json.Valid(raw) {
		data = raw
	}
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(c.id), encode(event, whiteboardPayload{UserID: c.self.UserID, Data: data}))
	})
}

func (c *roomClient) screenShareRequest(event string, raw json.RawMessage) {
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.Moderators(), encode(event, screenSharePayload{memberPayload: memberOf(c.self)}))
	})
}

func (c *roomClient) screenShareApprove(event string, raw json.RawMessage) {
	var req requiredUserTarget
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evScreenShareOK, requiredUserTarget{UserID: req.UserID}))
	})
}

func (c *roomClient) screenShareStatus(event string, raw json.RawMessage) {
	var req activePayload
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(c.id), encode(event, screenSharePayload{memberPayload: memberOf(c.self), Active: req.Active}))
	})
}

func (c *roomClient) muteOne(event string, raw json.RawMessage) {
	var req studentTarget
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evForceMuteStudent, req))
	})
}

func (c *roomClient) grantUnmute(event string, raw json.RawMessage) {
	var req studentTarget
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.UserConnections(req.StudentID), encode(evUnmuteGranted, req))
	})
}

func (c *roomClient) requestUnmute(event string, raw json.RawMessage) {
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.Moderators(), encode(evUnmuteRequested, memberOf(c.self)))
	})
}

func (c *roomClient) violation(event string, raw json.RawMessage) {
	var req violationRequest
	if !c.decode(event, raw, &req) {
		return
	}
	g := c.gw
	c.fanout(func(s session.Snapshot) {
		g.sendTo(s.Moderators(), encode(event, violationPayload{
			memberPayload: memberOf(c.self),
			Type:          req.Type,
			Detail:        req.Detail,
			ReportedAt:    g.now().UTC(),
		}))
	})
}
