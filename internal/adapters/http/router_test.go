package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/cbradio/internal/adapters/signal"
	"github.com/dkeye/cbradio/internal/app"
	"github.com/dkeye/cbradio/internal/config"
	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	channels *app.Registry
	sessions *app.Sessions
	sweeper  *app.Sweeper
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>cb</html>"), 0o644))

	cfg := &config.Config{
		Mode:           gin.TestMode,
		StaticPath:     static,
		ReadLimit:      65536,
		WriteTimeout:   time.Second,
		SendBuffer:     32,
		Secret:         "test-secret",
		MaxChannelLen:  64,
		MaxPasswordLen: 128,
		ICEServers:     []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	channels := app.NewRegistry()
	sessions := app.NewSessions()
	sweeper := app.NewSweeper(time.Hour)
	m := metrics.New(channels, sessions)
	sweeper.OnEvict = func(core.SessionID) { m.Evictions.Inc() }
	ctl := signal.NewSignalWSController(channels, sessions, sweeper, m, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout,
		SendBuffer:     cfg.SendBuffer,
		MaxChannelLen:  cfg.MaxChannelLen,
		MaxPasswordLen: cfg.MaxPasswordLen,
	})

	srv := httptest.NewServer(SetupRouter(ctx, cfg, Deps{
		Signal:   ctl,
		Channels: channels,
		Sessions: sessions,
		Metrics:  m,
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{Server: srv, channels: channels, sessions: sessions, sweeper: sweeper, metrics: m}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T, path string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *client) next() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

func (c *client) expect(typ string) map[string]any {
	c.t.Helper()
	msg := c.next()
	require.Equal(c.t, typ, msg["type"], "got %v", msg)
	return msg
}

func (ts *testServer) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSignal_PrivateChannelFlow(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "/ws")
	b := ts.dial(t, "/api/ws/signal")

	a.send(`{"type":"create-private-channel","channel":7,"password":"x"}`)
	joined := a.expect(core.TypeChannelJoined)
	require.Equal(t, "7", joined["channelId"])
	require.Equal(t, true, joined["isPrivate"])
	require.Empty(t, joined["peers"])
	userA := joined["userId"].(string)
	require.Len(t, userA, 12)
	a.expect(core.TypeChannelCreated)

	b.send(`{"type":"join-channel","channel":"7","password":"y"}`)
	rejected := b.expect(core.TypeError)
	require.Equal(t, core.CodeWrongPassword, rejected["errorCode"])

	b.send(`{"type":"join-channel","channel":"7","password":"x"}`)
	joined = b.expect(core.TypeChannelJoined)
	require.Equal(t, []any{userA}, joined["peers"])
	userB := joined["userId"].(string)
	require.NotEqual(t, userA, userB)

	peer := a.expect(core.TypePeerJoined)
	require.Equal(t, userB, peer["userId"])

	b.send(`{"type":"create-private-channel","channel":"7","password":"z"}`)
	exists := b.expect(core.TypeError)
	require.Equal(t, core.CodeChannelExists, exists["errorCode"])

	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Rejected.WithLabelValues(core.CodeWrongPassword)))
}

func TestSignal_PresenceRelayAndDisconnect(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "/ws")
	b := ts.dial(t, "/ws")

	a.send(`{"type":"join-channel","channel":19}`)
	userA := a.expect(core.TypeChannelJoined)["userId"].(string)
	b.send(`{"type":"join-channel","channel":"19"}`)
	userB := b.expect(core.TypeChannelJoined)["userId"].(string)
	a.expect(core.TypePeerJoined)

	a.send(`{"type":"start-transmission"}`)
	tx := b.expect(core.TypePeerTransmitting)
	require.Equal(t, userA, tx["userId"])
	require.Equal(t, true, tx["transmitting"])

	a.send(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0"},"to":"` + userB + `","from":"spoofed"}`)
	offer := b.expect("offer")
	require.Equal(t, userA, offer["from"])
	require.Equal(t, userB, offer["to"])

	var info core.ChannelInfo
	ts.getJSON(t, "/api/channels/19", &info)
	require.True(t, info.Exists)
	require.Equal(t, 2, info.UserCount)

	require.NoError(t, a.conn.Close())
	left := b.expect(core.TypePeerLeft)
	require.Equal(t, userA, left["userId"])

	require.NoError(t, b.conn.Close())
	require.Eventually(t, func() bool {
		return !ts.channels.Inspect("19").Exists && ts.sessions.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	ts.getJSON(t, "/api/channels/19", &info)
	require.False(t, info.Exists)
	require.Zero(t, info.UserCount)

	var health struct {
		Status      string `json:"status"`
		Channels    int    `json:"channels"`
		TotalUsers  int    `json:"totalUsers"`
		Connections int    `json:"connections"`
		Version     string `json:"version"`
	}
	ts.getJSON(t, "/health", &health)
	require.Equal(t, "ok", health.Status)
	require.Zero(t, health.Channels)
	require.Zero(t, health.TotalUsers)
	require.Zero(t, health.Connections)
	require.Equal(t, Version, health.Version)
}

func TestSignal_MalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "/ws")

	a.send(`garbage`)
	a.send(`{"type":"teleport"}`)
	a.send(`{"type":"check-channel","channel":"nowhere"}`)

	info := a.expect(core.TypeChannelInfo)
	require.Equal(t, "nowhere", info["channelId"])
	require.Equal(t, false, info["exists"])
	require.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.Malformed))
}

func TestSignal_LeaveKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "/ws")

	a.send(`{"type":"join-channel","channel":"3"}`)
	a.expect(core.TypeChannelJoined)
	a.send(`{"type":"leave-channel"}`)
	a.send(`{"type":"check-channel","channel":"3"}`)

	info := a.expect(core.TypeChannelInfo)
	require.Equal(t, false, info["exists"])
	require.Equal(t, 1, ts.sessions.Count())
}

func TestSignal_SilentConnectionIsEvicted(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "/ws")

	a.send(`{"type":"join-channel","channel":"42"}`)
	require.Eventually(t, func() bool {
		return ts.channels.Inspect("42").Exists && ts.sweeper.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The client never reads, so the ping goes unanswered.
	require.Empty(t, ts.sweeper.Tick())
	require.Len(t, ts.sweeper.Tick(), 1)

	require.Eventually(t, func() bool {
		return !ts.channels.Inspect("42").Exists && ts.sessions.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.Evictions))
}

func TestRouter_HTTPEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "cb")
	require.Equal(t, "microphone=*, camera=*", resp.Header.Get("Permissions-Policy"))

	var ice struct {
		IceServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	ts.getJSON(t, "/api/ice-servers", &ice)
	require.Len(t, ice.IceServers, 1)
	require.Equal(t, []string{"stun:stun.l.google.com:19302"}, ice.IceServers[0].URLs)

	a := ts.dial(t, "/")
	a.send(`{"type":"join-channel","channel":"5"}`)
	a.expect(core.TypeChannelJoined)

	var list struct {
		Channels []app.ChannelSummary `json:"channels"`
	}
	ts.getJSON(t, "/channels", &list)
	require.Equal(t, []app.ChannelSummary{{ID: "5", UserCount: 1}}, list.Channels)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Contains(t, string(body), "cbradio_channels 1")

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/health", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
