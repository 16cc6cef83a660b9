package http

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/dkeye/cbradio/internal/adapters/signal"
	"github.com/dkeye/cbradio/internal/app"
	"github.com/dkeye/cbradio/internal/config"
	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/dkeye/cbradio/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const Version = "2.0"

type Deps struct {
	Signal   *signal.SignalWSController
	Channels *app.Registry
	Sessions *app.Sessions
	Metrics  *metrics.Metrics
}

type healthResponse struct {
	Status string `json:"status"`
	domain.Stats
	Connections int    `json:"connections"`
	Version     string `json:"version"`
}

// ClientTokenMiddleware gives each browser a stable token kept in the cookie
// session. It only correlates logs across reconnects; peers never see it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// BrowserHeaders lets the page use the microphone and be fetched cross-origin.
func BrowserHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Permissions-Policy", "microphone=*, camera=*")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == gin.ReleaseMode || cfg.Mode == gin.DebugMode || cfg.Mode == gin.TestMode {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	if cfg.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(BrowserHeaders())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CBRadioSessions", store))
	r.Use(ClientTokenMiddleware())

	signalHandler := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	}

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		// The browser client dials the bare host.
		if websocket.IsWebSocketUpgrade(c.Request) {
			signalHandler(c)
			return
		}
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.GET("/ws", signalHandler)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:      "ok",
			Stats:       d.Channels.Stats(),
			Connections: d.Sessions.Count(),
			Version:     Version,
		})
	})
	r.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": d.Channels.List()})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api")
	api.GET("/ws/signal", signalHandler)
	api.GET("/channels/:id", func(c *gin.Context) {
		info := d.Channels.Inspect(domain.ChannelID(c.Param("id")))
		c.JSON(http.StatusOK, core.NewChannelInfo(info))
	})
	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.WebRTCICEServers()})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
