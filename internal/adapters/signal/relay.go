package signal

func (ctl *SignalWSController) handleRelay(s *session, e Signal) {
	if s.channel == "" {
		return
	}
	n, err := ctl.Channels.Relay(s.channel, s.user, e.Payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(e.Kind)).Msg("relay")
		return
	}
	ctl.Metrics.Relayed.Add(float64(n))
}

func (ctl *SignalWSController) handleTransmission(s *session, e Transmission) {
	if s.channel == "" {
		return
	}
	ctl.Channels.BroadcastPresence(s.channel, s.user, e.Transmitting)
}
