package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventCreatePrivateChannel EventType = "create-private-channel"
	EventJoinChannel          EventType = "join-channel"
	EventLeaveChannel         EventType = "leave-channel"
	EventOffer                EventType = "offer"
	EventAnswer               EventType = "answer"
	EventICECandidate         EventType = "ice-candidate"
	EventStartTransmission    EventType = "start-transmission"
	EventStopTransmission     EventType = "stop-transmission"
	EventCheckChannel         EventType = "check-channel"
)

// Event is one decoded inbound frame. The concrete types below are the
// only implementations.
type Event interface {
	Type() EventType
}

type CreatePrivateChannel struct {
	Channel  domain.ChannelID `json:"channel" validate:"required"`
	Password string           `json:"password" validate:"required"`
}

type JoinChannel struct {
	Channel  domain.ChannelID `json:"channel" validate:"required"`
	Password *string          `json:"password,omitempty"`
}

type LeaveChannel struct{}

// Signal is an offer, answer or ICE candidate. The payload is relayed as is.
type Signal struct {
	Kind    EventType
	Payload core.SignalPayload
}

type Transmission struct {
	Transmitting bool
}

type CheckChannel struct {
	Channel domain.ChannelID `json:"channel" validate:"required"`
}

func (CreatePrivateChannel) Type() EventType { return EventCreatePrivateChannel }
func (JoinChannel) Type() EventType          { return EventJoinChannel }
func (LeaveChannel) Type() EventType         { return EventLeaveChannel }
func (s Signal) Type() EventType             { return s.Kind }
func (t Transmission) Type() EventType {
	if t.Transmitting {
		return EventStartTransmission
	}
	return EventStopTransmission
}
func (CheckChannel) Type() EventType { return EventCheckChannel }

// Decoder turns raw frames into Events. Anything that does not decode
// returns an error wrapping domain.ErrMalformedInput or domain.ErrUnknownEvent.
type Decoder struct {
	validate       *validator.Validate
	maxChannelLen  int
	maxPasswordLen int
}

func NewDecoder(maxChannelLen, maxPasswordLen int) *Decoder {
	return &Decoder{
		validate:       validator.New(),
		maxChannelLen:  maxChannelLen,
		maxPasswordLen: maxPasswordLen,
	}
}

func (d *Decoder) Decode(data []byte) (Event, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w: %v", domain.ErrMalformedInput, err)
	}

	switch env.Type {
	case EventCreatePrivateChannel:
		var e CreatePrivateChannel
		if err := d.decodeInto(data, &e); err != nil {
			return nil, err
		}
		if err := d.checkLen(string(e.Channel), d.maxChannelLen, "channel"); err != nil {
			return nil, err
		}
		if err := d.checkLen(e.Password, d.maxPasswordLen, "password"); err != nil {
			return nil, err
		}
		return e, nil
	case EventJoinChannel:
		var e JoinChannel
		if err := d.decodeInto(data, &e); err != nil {
			return nil, err
		}
		if err := d.checkLen(string(e.Channel), d.maxChannelLen, "channel"); err != nil {
			return nil, err
		}
		if e.Password != nil {
			if *e.Password == "" {
				e.Password = nil
			} else if err := d.checkLen(*e.Password, d.maxPasswordLen, "password"); err != nil {
				return nil, err
			}
		}
		return e, nil
	case EventLeaveChannel:
		return LeaveChannel{}, nil
	case EventOffer, EventAnswer, EventICECandidate:
		var p core.SignalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", env.Type, domain.ErrMalformedInput, err)
		}
		return Signal{Kind: env.Type, Payload: p}, nil
	case EventStartTransmission:
		return Transmission{Transmitting: true}, nil
	case EventStopTransmission:
		return Transmission{Transmitting: false}, nil
	case EventCheckChannel:
		var e CheckChannel
		if err := d.decodeInto(data, &e); err != nil {
			return nil, err
		}
		if err := d.checkLen(string(e.Channel), d.maxChannelLen, "channel"); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%q: %w", env.Type, domain.ErrUnknownEvent)
	}
}

func (d *Decoder) decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return nil
}

func (d *Decoder) checkLen(s string, limit int, field string) error {
	if limit <= 0 {
		return nil
	}
	if err := d.validate.Var(s, fmt.Sprintf("max=%d", limit)); err != nil {
		return fmt.Errorf("%s too long: %w", field, domain.ErrMalformedInput)
	}
	return nil
}
