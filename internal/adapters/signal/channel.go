package signal

import (
	"errors"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
)

func (ctl *SignalWSController) handleCreate(s *session, e CreatePrivateChannel) {
	res, err := ctl.Channels.CreatePrivate(e.Channel, e.Password, s.member(), s.channel)
	if err != nil {
		ctl.reject(s, err)
		return
	}
	s.channel = res.ChannelID
	s.logger.Info().Str("channel", string(res.ChannelID)).Msg("created private channel")
}

func (ctl *SignalWSController) handleJoin(s *session, e JoinChannel) {
	res, err := ctl.Channels.Join(e.Channel, s.member(), e.Password, s.channel)
	if err != nil {
		ctl.reject(s, err)
		return
	}
	s.channel = res.ChannelID
	s.logger.Info().Str("channel", string(res.ChannelID)).Int("peers", len(res.Peers)).Msg("join")
}

// handleLeave drops the current channel; the connection stays open.
func (ctl *SignalWSController) handleLeave(s *session) {
	if s.channel == "" {
		return
	}
	ctl.Channels.Leave(s.channel, s.user)
	s.logger.Info().Str("channel", string(s.channel)).Msg("leave")
	s.channel = ""
}

func (ctl *SignalWSController) handleCheck(s *session, e CheckChannel) {
	ctl.sendJSON(s, core.NewChannelInfo(ctl.Channels.Inspect(e.Channel)))
}

func (ctl *SignalWSController) reject(s *session, err error) {
	var ev core.ErrorEvent
	switch {
	case errors.Is(err, domain.ErrWrongPassword):
		ev = core.NewError("wrong password", core.CodeWrongPassword)
	case errors.Is(err, domain.ErrChannelExists):
		ev = core.NewError("channel already exists", core.CodeChannelExists)
	default:
		ev = core.NewError("request failed", "")
	}
	ctl.Metrics.Rejected.WithLabelValues(ev.ErrorCode).Inc()
	s.logger.Info().Err(err).Msg("request rejected")
	ctl.sendJSON(s, ev)
}
