package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pitchtrack/internal/api/handlers"
	"github.com/your-org/pitchtrack/internal/api/ws"
	"github.com/your-org/pitchtrack/internal/auth"
)

type RouterConfig struct {
	APIKey      string
	DB          handlers.Store
	MinIO       handlers.ObjectStore
	Producer    handlers.ControlPublisher
	Hub         *ws.Hub
	DefaultFPS  int
	PitchLength float64
	PitchWidth  float64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Matches
	matchH := handlers.NewMatchHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.DefaultFPS)
	v1.POST("/matches", matchH.Create)
	v1.GET("/matches", matchH.List)
	v1.GET("/matches/:id", matchH.Get)
	v1.POST("/matches/:id/start", matchH.Start)
	v1.POST("/matches/:id/stop", matchH.Stop)
	v1.DELETE("/matches/:id", matchH.Delete)

	// Tracks
	trackH := handlers.NewTrackHandler(cfg.DB)
	v1.GET("/matches/:id/tracks", trackH.List)

	// Pitch projection and xT
	analysisH := handlers.NewAnalysisHandler(cfg.DB, cfg.PitchLength, cfg.PitchWidth)
	v1.PUT("/matches/:id/homography", analysisH.PutHomography)
	v1.GET("/matches/:id/homography", analysisH.GetHomography)
	v1.POST("/matches/:id/xt", analysisH.ComputeXT)
	v1.GET("/matches/:id/xt", analysisH.GetXT)

	return r
}
