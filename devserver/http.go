package devserver

import (
	"net/http"
	"sort"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luma/lantern/protocol"
)

// Varz is the body of GET /varz.
type Varz struct {
	Info        protocol.ServerInfo `json:"info"`
	Connections int                 `json:"connections"`
	Uptime      string              `json:"uptime"`
}

// ConnInfo is one entry of GET /connz.
type ConnInfo struct {
	CID           uint64 `json:"cid"`
	Remote        string `json:"remote"`
	Name          string `json:"name,omitempty"`
	Lang          string `json:"lang,omitempty"`
	Version       string `json:"version,omitempty"`
	Subscriptions int    `json:"subscriptions"`
}

// NewRouter builds the monitoring endpoints for s.
func NewRouter(s *Server, debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	started := time.Now()
	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/varz", func(c *gin.Context) {
		c.JSON(http.StatusOK, Varz{
			Info:        s.Info(),
			Connections: s.NumConns(),
			Uptime:      time.Since(started).Round(time.Second).String(),
		})
	})

	r.GET("/connz", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Connections())
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	return r
}

// Connections lists the open connections ordered by id.
func (s *Server) Connections() []ConnInfo {
	conns := make([]ConnInfo, 0, s.conns.Size())

	s.conns.Range(func(id uint64, c *Conn) bool {
		c.mu.Lock()
		conns = append(conns, ConnInfo{
			CID:           id,
			Remote:        c.conn.RemoteAddr().String(),
			Name:          c.options.Name,
			Lang:          c.options.Lang,
			Version:       c.options.Version,
			Subscriptions: len(c.subs),
		})
		c.mu.Unlock()

		return true
	})

	sort.Slice(conns, func(i, j int) bool { return conns[i].CID < conns[j].CID })

	return conns
}
