// Package proto defines the frames exchanged with the audio backend.
// Wire format: one JSON object per websocket text message.
package proto

import (
	"encoding/json"
	"time"
)

// Frame types.
const (
	TypeRequest  = "request"  // client → backend
	TypeResponse = "response" // backend → client, matches a request ID
	TypeEvent    = "event"    // backend → client, unsolicited notification
)

// Backend commands.
const (
	CmdGetAllSessions    = "get_all_sessions"
	CmdGetSession        = "get_session"
	CmdSetSessionVolume  = "set_session_volume"
	CmdToggleSessionMute = "toggle_session_mute"
	CmdGetConfig         = "get_config"
	CmdSetConfig         = "set_config"
)

// Frame is the single envelope for every message. Fields not relevant to
// the frame type are omitted.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`      // uuid4, request/response only
	Command string          `json:"command,omitempty"` // request only
	Args    json.RawMessage `json:"args,omitempty"`    // request only
	Result  json.RawMessage `json:"result,omitempty"`  // response only
	Error   string          `json:"error,omitempty"`   // response only, empty on success
	Event   string          `json:"event,omitempty"`   // event only
	Payload json.RawMessage `json:"payload,omitempty"` // event only
	TS      int64           `json:"ts,omitempty"`
}

// SessionArgs addresses one session by name.
type SessionArgs struct {
	SessionName string `json:"sessionName"`
}

// VolumeArgs carries a set_session_volume request.
type VolumeArgs struct {
	SessionName string `json:"sessionName"`
	Volume      int    `json:"volume"`
}

// ConfigArgs wraps a set_config request.
type ConfigArgs struct {
	Config json.RawMessage `json:"config"`
}

// NewRequest builds a request frame, marshalling args when non-nil.
func NewRequest(id, command string, args any) (Frame, error) {
	f := Frame{Type: TypeRequest, ID: id, Command: command, TS: NowMillis()}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return Frame{}, err
		}
		f.Args = b
	}
	return f, nil
}

// NewResponse builds a response frame for request id.
func NewResponse(id string, result any, err error) (Frame, error) {
	f := Frame{Type: TypeResponse, ID: id, TS: NowMillis()}
	if err != nil {
		f.Error = err.Error()
		return f, nil
	}
	if result != nil {
		b, mErr := json.Marshal(result)
		if mErr != nil {
			return Frame{}, mErr
		}
		f.Result = b
	}
	return f, nil
}

// NewEvent builds an event frame around an already-encoded payload.
func NewEvent(name string, payload json.RawMessage) Frame {
	return Frame{Type: TypeEvent, Event: name, Payload: payload, TS: NowMillis()}
}

func NowMillis() int64 { return time.Now().UnixMilli() }
