package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pantheonhq/pantheon/internal/action"
	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	"github.com/pantheonhq/pantheon/internal/auth"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/authorization"
	"github.com/pantheonhq/pantheon/internal/bundle"
	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
	"github.com/pantheonhq/pantheon/internal/cloudmetrics"
	"github.com/pantheonhq/pantheon/internal/config"
	"github.com/pantheonhq/pantheon/internal/identity"
	"github.com/pantheonhq/pantheon/internal/observability"
	obsmiddleware "github.com/pantheonhq/pantheon/internal/observability/logger"
	obsmetrics "github.com/pantheonhq/pantheon/internal/observability/metrics"
	obstracing "github.com/pantheonhq/pantheon/internal/observability/tracing"
	"github.com/pantheonhq/pantheon/internal/oracle"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	"github.com/pantheonhq/pantheon/internal/player"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	"github.com/pantheonhq/pantheon/internal/ratelimit"
)

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	auth.Module,
	identity.Module,
	player.Module,
	oracle.Module,
	action.Module,
	bundle.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	authSvc       authdomain.Service
	identitySvc   identity.Service
	authzSvc      authorization.Service
	playerSvc     playerdomain.Service
	oracleSvc     oracledomain.Service
	actionSvc     actiondomain.Service
	bundleSvc     bundledomain.Service
	obsMetrics    *obsmetrics.Metrics
	actionLimiter *ratelimit.ActionIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AuthSvc       authdomain.Service
	IdentitySvc   identity.Service
	AuthzSvc      authorization.Service
	PlayerSvc     playerdomain.Service
	OracleSvc     oracledomain.Service
	ActionSvc     actiondomain.Service
	BundleSvc     bundledomain.Service
	ObsMetrics    *obsmetrics.Metrics            `optional:"true"`
	ActionLimiter *ratelimit.ActionIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		authSvc:       p.AuthSvc,
		identitySvc:   p.IdentitySvc,
		authzSvc:      p.AuthzSvc,
		playerSvc:     p.PlayerSvc,
		oracleSvc:     p.OracleSvc,
		actionSvc:     p.ActionSvc,
		bundleSvc:     p.BundleSvc,
		obsMetrics:    p.ObsMetrics,
		actionLimiter: p.ActionLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerGPTRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
}

func (s *Server) registerGPTRoutes() {
	gpt := s.engine.Group("/gpt")

	gpt.Use(s.AuthRequired())

	// -------- Player account --------
	gpt.POST("/player-account", s.UpsertPlayerAccount)
	gpt.GET("/player-account", s.GetPlayerAccount)

	// -------- Oracle profiles --------
	gpt.POST("/oracle", s.UpsertOracle)
	gpt.GET("/my-oracles", s.ListMyOracles)

	// -------- Action ledger --------
	gpt.POST("/oracle-action", s.ActionIngestRateLimit(), s.RecordOracleAction)
	gpt.POST("/oracle-actions/bulk", s.ActionIngestRateLimit(), s.RecordOracleActionsBulk)
	gpt.GET("/oracle-actions", s.ListOracleActions)
	gpt.GET("/oracle-action-stats", s.GetOracleActionStats)

	// -------- Combined view --------
	gpt.GET("/sync", s.SyncBundle)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.Use(s.ServiceTokenRequired())
	admin.Use(s.AuthRequired())

	admin.POST("/purge-user", s.authorizeAction(authorization.ObjectBundle, authorization.ActionBundlePurge), s.PurgeUserBundle)
}
