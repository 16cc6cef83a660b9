package core

import (
	"encoding/json"
	"maps"

	"github.com/dkeye/cbradio/internal/domain"
)

// Outbound event type tags.
const (
	TypeChannelCreated   = "channel-created"
	TypeChannelJoined    = "channel-joined"
	TypePeerJoined       = "peer-joined"
	TypePeerLeft         = "peer-left"
	TypePeerTransmitting = "peer-transmitting"
	TypeChannelInfo      = "channel-info"
	TypeError            = "error"
)

// Error codes carried by error frames.
const (
	CodeWrongPassword = "WRONG_PASSWORD"
	CodeChannelExists = "CHANNEL_EXISTS"
)

type ChannelCreated struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type ChannelJoined struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
	Peers     []domain.UserID  `json:"peers"`
	IsPrivate bool             `json:"isPrivate"`
}

type PeerJoined struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
}

type PeerLeft struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
}

type PeerTransmitting struct {
	Type         string        `json:"type"`
	UserID       domain.UserID `json:"userId"`
	Transmitting bool          `json:"transmitting"`
}

type ChannelInfo struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	IsPrivate bool             `json:"isPrivate"`
	Exists    bool             `json:"exists"`
	UserCount int              `json:"userCount"`
}

type ErrorEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

func NewChannelInfo(info domain.ChannelInfo) ChannelInfo {
	return ChannelInfo{
		Type:      TypeChannelInfo,
		ChannelID: info.ID,
		IsPrivate: info.IsPrivate,
		Exists:    info.Exists,
		UserCount: info.UserCount,
	}
}

func NewError(message, code string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message, ErrorCode: code}
}

// Encode marshals an outbound event into a frame.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

// SignalPayload is an opaque signaling message (offer, answer, ICE candidate).
// Only the "from" key is touched by the relay.
type SignalPayload map[string]json.RawMessage

// WithFrom returns a copy of p with "from" set to the sender.
func (p SignalPayload) WithFrom(from domain.UserID) (SignalPayload, error) {
	raw, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	out := make(SignalPayload, len(p)+1)
	maps.Copy(out, p)
	out["from"] = raw
	return out, nil
}
