package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/gorilla/websocket"
)

func (ctl *SignalWSController) writePump(ctx context.Context, s *session) {
	c := s.conn
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				s.logger.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				s.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *session) {
	stop := context.AfterFunc(ctx, s.conn.Close)
	defer func() {
		stop()
		s.logger.Debug().Msg("readPump closing")
		ctl.closeSession(s)
	}()

	for {
		_, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("readPump read error")
			} else {
				s.logger.Debug().Err(err).Msg("readPump done")
			}
			return
		}
		ctl.handleSignal(s, data)
	}
}

// handleSignal decodes one frame and dispatches it. Frames that fail to
// decode are logged and dropped; the connection stays open.
func (ctl *SignalWSController) handleSignal(s *session, data []byte) {
	ev, err := ctl.decoder.Decode(data)
	if err != nil {
		ctl.Metrics.Malformed.Inc()
		if errors.Is(err, domain.ErrUnknownEvent) {
			s.logger.Warn().Err(err).Msg("unknown signal")
		} else {
			s.logger.Warn().Err(err).Msg("bad frame")
		}
		return
	}
	ctl.Metrics.FramesIn.WithLabelValues(string(ev.Type())).Inc()

	switch e := ev.(type) {
	case CreatePrivateChannel:
		ctl.handleCreate(s, e)
	case JoinChannel:
		ctl.handleJoin(s, e)
	case LeaveChannel:
		ctl.handleLeave(s)
	case Signal:
		ctl.handleRelay(s, e)
	case Transmission:
		ctl.handleTransmission(s, e)
	case CheckChannel:
		ctl.handleCheck(s, e)
	}
}

func (ctl *SignalWSController) sendJSON(s *session, v any) {
	f, err := core.Encode(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("sendJSON marshal")
		return
	}
	if err := s.conn.TrySend(f); err != nil {
		s.logger.Debug().Err(err).Msg("sendJSON dropped")
	}
}
