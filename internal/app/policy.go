package app

import (
	"fmt"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
)

// BackpressureAction is what the registry does with a member whose send
// queue is full.
type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop"
	case KickMember:
		return "kick"
	}
	return fmt.Sprintf("BackpressureAction(%d)", int(a))
}

func ParseBackpressureAction(s string) (BackpressureAction, error) {
	switch s {
	case "", "drop":
		return DropFrame, nil
	case "kick":
		return KickMember, nil
	}
	return DropFrame, fmt.Errorf("unknown backpressure action %q", s)
}

type Policy interface {
	OnBackPressure(channel domain.ChannelID, member core.Member) BackpressureAction
}

// SimplePolicy applies the same action to every congested member.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.ChannelID, core.Member) BackpressureAction {
	return p.Action
}
