package signal

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/cbradio/internal/app"
	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/dkeye/cbradio/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit      int64
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxChannelLen  int
	MaxPasswordLen int
	AllowedOrigins []string
}

type SignalWSController struct {
	Channels *app.Registry
	Sessions *app.Sessions
	Sweeper  *app.Sweeper
	Metrics  *metrics.Metrics

	opts     Options
	decoder  *Decoder
	upgrader websocket.Upgrader
}

func NewSignalWSController(
	channels *app.Registry,
	sessions *app.Sessions,
	sweeper *app.Sweeper,
	m *metrics.Metrics,
	opts Options,
) *SignalWSController {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	origins := newOriginPolicy(opts.AllowedOrigins)
	return &SignalWSController{
		Channels: channels,
		Sessions: sessions,
		Sweeper:  sweeper,
		Metrics:  m,
		opts:     opts,
		decoder:  NewDecoder(opts.MaxChannelLen, opts.MaxPasswordLen),
		upgrader: websocket.Upgrader{CheckOrigin: origins.check},
	}
}

// WsSignalConn is the transport side of one session.
// Frames queue on send and are written by the write pump.
type WsSignalConn struct {
	conn         *websocket.Conn
	send         chan core.Frame
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int, writeTimeout time.Duration) *WsSignalConn {
	return &WsSignalConn{
		conn:         ws,
		send:         make(chan core.Frame, buffer),
		writeTimeout: writeTimeout,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Ping sends a websocket ping. WriteControl is safe alongside the write pump.
func (c *WsSignalConn) Ping() error {
	if !c.IsOpen() {
		return core.ErrConnClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Terminate drops the connection; the read pump then runs the close path.
func (c *WsSignalConn) Terminate() { c.Close() }

// session is owned by its read pump goroutine; nothing else touches channel.
type session struct {
	sid     core.SessionID
	user    domain.UserID
	conn    *WsSignalConn
	channel domain.ChannelID
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

func (s *session) member() core.Member {
	return core.Member{UserID: s.user, Conn: s.conn}
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	client := c.GetString("client_token")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer, ctl.opts.WriteTimeout)

	ctx, cancel := context.WithCancel(ctx)
	uid, err := ctl.Sessions.Bind(sid, cancel)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bind session")
		cancel()
		conn.Close()
		return
	}

	s := &session{
		sid:    sid,
		user:   uid,
		conn:   conn,
		cancel: cancel,
		logger: log.With().Str("module", "signal").Str("sid", string(sid)).Str("user", string(uid)).Str("client", client).Logger(),
	}
	s.logger.Info().Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	ws.SetPongHandler(func(string) error {
		ctl.Sweeper.Ack(sid)
		return nil
	})
	ctl.Sweeper.Track(sid, conn)

	go ctl.writePump(ctx, s)
	go ctl.readPump(ctx, s)
}

// closeSession runs once per session, from the read pump.
func (ctl *SignalWSController) closeSession(s *session) {
	if s.channel != "" {
		ctl.Channels.Leave(s.channel, s.user)
		s.channel = ""
	}
	ctl.Sweeper.Forget(s.sid)
	ctl.Sessions.Unbind(s.sid)
	s.conn.Close()
	s.cancel()
	s.logger.Info().Msg("session closed")
}
