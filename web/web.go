// Package web assembles the panel's HTTP server: routing, middleware,
// streaming endpoints and background job scheduling.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/config"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/web/controller"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/web/session"
	"github.com/modix-panel/modix/web/stream"
	"github.com/modix-panel/modix/workload"
	"github.com/modix-panel/modix/workload/docker"
	"github.com/modix-panel/modix/workload/locator"
	"github.com/modix-panel/modix/workload/process"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// auditRetentionDays is how long audit entries are kept before the
// daily cleanup removes them.
const auditRetentionDays = 90

// Server is the panel's web server: controllers, services and the cron
// scheduler behind them.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	seed   *database.Seed
	tokens *session.Manager
	driver workload.Driver

	userService      service.UserService
	roleService      service.RoleService
	containerService service.ContainerService
	auditService     service.AuditService
	serverService    service.ServerService

	registry *process.Registry
	hub      *stream.Hub
	status   *stream.Broadcaster

	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds the server around a loaded seed configuration and a
// connected workload driver.
func NewServer(seed *database.Seed, driver workload.Driver) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		seed:     seed,
		driver:   driver,
		tokens:   session.NewManager(seed.Secret, seed.TokenMinutes),
		registry: process.NewRegistry(),
		status:   stream.NewBroadcaster(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Server) initRouter() (*gin.Engine, error) {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/ws/", "/server-logs-stream", "/server-status-stream", "/terminal/log-stream"})))

	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNotFound)
	})

	authService := &service.AuthService{
		UserService:  s.userService,
		AuditService: s.auditService,
		Tokens:       s.tokens,
	}
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": config.GetName(), "version": config.GetVersion()})
	})
	controller.NewAuthController(engine.Group(""), authService)

	engineAccess := &access.Engine{
		DB:             database.GetDB(),
		RootPrincipals: s.seed.RootPrincipals,
	}
	gate := &middleware.Gate{
		Engine:     engineAccess,
		Audit:      &s.auditService,
		Containers: &s.containerService,
	}

	s.hub = stream.NewHub(func(ctx context.Context, workloadID string) (io.ReadCloser, error) {
		return s.driver.Logs(ctx, workloadID, 100, true)
	})

	loc := &locator.Locator{Inspector: s.driver, EnableRootFS: s.seed.EnableRootFS}

	api := engine.Group("", middleware.TokenAuth(s.tokens, &s.userService))
	{
		api.GET("/me", controller.Me)
		controller.NewUserController(api, gate, &s.userService, s.tokens)
		controller.NewRoleController(api, gate, &s.roleService)
		controller.NewContainerController(api, gate, &s.containerService, s.driver)
		controller.NewProcessController(api, gate, s.registry)
		controller.NewFtpController(api, gate, loc)
		controller.NewTerminalController(api, gate, s.driver, s.hub)
		controller.NewStreamController(api, gate, s.hub, s.status)
		controller.NewAuditController(api, gate, &s.auditService)
	}

	return engine, nil
}

// startTask schedules the recurring jobs: audit retention and host
// status sampling.
func (s *Server) startTask() {
	s.cron.AddFunc("@daily", func() {
		if err := s.auditService.CleanOldLogs(auditRetentionDays); err != nil {
			logger.Warning("audit cleanup failed:", err)
		}
	})

	s.cron.AddFunc("@every 10s", func() {
		s.status.Publish(s.serverService.GetStatus())
	})
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	s.cron = cron.New(cron.WithSeconds())
	s.cron.Start()

	engine, err := s.initRouter()
	if err != nil {
		return err
	}

	listenAddr := net.JoinHostPort(config.GetListen(), strconv.Itoa(config.GetPort()))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	logger.Info("web server running on", listener.Addr())

	s.listener = listener
	s.httpServer = &http.Server{Handler: engine}

	go func() {
		_ = s.httpServer.Serve(listener)
	}()

	s.startTask()
	return nil
}

// Stop shuts the server down: scheduler first, then the HTTP side, then
// every still-registered bare-metal process.
func (s *Server) Stop() error {
	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}

	var err1, err2 error
	if s.httpServer != nil {
		err1 = s.httpServer.Shutdown(s.ctx)
	}
	if s.listener != nil {
		err2 = s.listener.Close()
	}

	for _, title := range s.registry.Titles() {
		if err := s.registry.Unregister(title); err != nil {
			logger.Warningf("stop %s: %v", title, err)
		}
	}
	return common.Combine(err1, err2)
}

// GetCtx returns the server's context.
func (s *Server) GetCtx() context.Context { return s.ctx }

// NewDockerDriver connects the default workload driver.
func NewDockerDriver() (workload.Driver, error) {
	return docker.New()
}
