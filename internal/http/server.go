package http

import (
	"context"
	stdhttp "net/http"

	"key-service/internal/auth"
	"key-service/internal/config"
	"key-service/internal/http/handler"
	"key-service/internal/http/middleware"
	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"
	"key-service/pkg/metrics"
	"key-service/pkg/profiling"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

const (
	jsonKeyStatus    = "status"
	jsonKeyMemory    = "memory"
	statusOK         = "ok"
	requestBodyLimit = "1M"
)

// ServerDependencies are the services behind the HTTP API. Stream and
// Archiver may be nil when the feature is disabled.
type ServerDependencies struct {
	Config         *config.Config
	Checker        *rbac.Checker
	AuthMiddleware *auth.Middleware
	Metrics        *metrics.Metrics
	Keys           handler.KeyService
	Assignments    handler.AssignmentReader
	Delegations    handler.DelegationReader
	Overdue        handler.OverdueLister
	Transactions   handler.TransactionQuerier
	Stream         handler.TransactionStreamer
	Archiver       handler.TransactionArchiver
	Dispatcher     handler.OperationDispatcher
}

type Server struct {
	echo *echo.Echo
	deps *ServerDependencies
}

func NewServer(deps *ServerDependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Server.ReadTimeout = deps.Config.Server.ReadTimeout
	e.Server.WriteTimeout = deps.Config.Server.WriteTimeout

	// Request ID first so every log line carries it.
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(deps.Metrics.Middleware())
	e.Use(echomiddleware.BodyLimit(requestBodyLimit))

	requestLimiter := middleware.NewRateLimiter(deps.Config.Server.RateLimit, deps.Config.Server.RateBurst)
	stationLimiter := middleware.NewRateLimiter(deps.Config.Station.RateLimit, deps.Config.Station.RateBurst)
	authz := deps.AuthMiddleware

	keyHandler := handler.NewKeyHandler(deps.Keys)
	assignmentHandler := handler.NewAssignmentHandler(deps.Assignments, deps.Delegations, deps.Overdue, deps.Checker)
	transactionHandler := handler.NewTransactionHandler(deps.Transactions, deps.Stream, deps.Archiver)
	operationHandler := handler.NewOperationHandler(deps.Dispatcher)

	e.GET("/health", healthCheck)
	deps.Metrics.RegisterRoutes(e.Group("/metrics", requestLimiter.Middleware()),
		authz.RequireJWT(), authz.Require(presets.ResourceTransaction, presets.ActionManage))
	if deps.Config.Server.Profiling {
		profiling.RegisterPprofRoutes(e.Group("/debug/pprof",
			authz.RequireJWT(), authz.Require(presets.ResourceTransaction, presets.ActionManage)))
	}

	api := e.Group("/api")
	api.Use(authz.RequireJWT())
	api.Use(requestLimiter.Middleware())

	api.GET("/keys", keyHandler.ListKeys, authz.Require(presets.ResourceKey, presets.ActionRead))
	api.POST("/keys", keyHandler.CreateKey, authz.Require(presets.ResourceKey, presets.ActionManage))
	api.GET("/keys/:id", keyHandler.GetKey, authz.Require(presets.ResourceKey, presets.ActionRead))
	api.PUT("/keys/:id/status", keyHandler.SetKeyStatus, authz.Require(presets.ResourceKey, presets.ActionManage))
	api.DELETE("/keys/:id", keyHandler.RetireKey, authz.Require(presets.ResourceKey, presets.ActionManage))

	api.GET("/assignments", assignmentHandler.ListAssignments, authz.Require(presets.ResourceAssignment, presets.ActionRead))
	api.GET("/assignments/:id", assignmentHandler.GetAssignment, authz.Require(presets.ResourceAssignment, presets.ActionRead))
	api.GET("/assignments/:id/delegations", assignmentHandler.ListAssignmentDelegations, authz.Require(presets.ResourceDelegation, presets.ActionRead))
	api.GET("/delegations/:id", assignmentHandler.GetDelegation, authz.Require(presets.ResourceDelegation, presets.ActionRead))
	api.GET("/overdue", assignmentHandler.ListOverdue, authz.Require(presets.ResourceReminder, presets.ActionManage))

	api.GET("/transactions", transactionHandler.ListTransactions, authz.Require(presets.ResourceTransaction, presets.ActionRead))
	api.GET("/transactions/stream", transactionHandler.Stream, authz.Require(presets.ResourceTransaction, presets.ActionRead))
	api.POST("/transactions/archive", transactionHandler.Archive, authz.Require(presets.ResourceTransaction, presets.ActionManage))

	api.POST("/operations/:operation", operationHandler.Run)

	// Security-desk stations only hold the handover permission, so the
	// dispatcher limits them to collect and deposit.
	station := e.Group("/station")
	station.Use(authz.RequireStation())
	station.Use(stationLimiter.Middleware())
	station.POST("/operations/:operation", operationHandler.Run)

	return &Server{
		echo: e,
		deps: deps,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() stdhttp.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func healthCheck(c echo.Context) error {
	return c.JSON(stdhttp.StatusOK, map[string]any{
		jsonKeyStatus: statusOK,
		jsonKeyMemory: profiling.GetMemoryStats(),
	})
}
