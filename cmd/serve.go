package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/sparqlfed/auth"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"service"},
	Short:   "Start the federation API server",
	Long: `Start the HTTP API of the federation gateway.

Endpoints:
  - GET|POST /v1/api/projects/:project/sparql: federated query over all endpoints
  - GET|POST /v1/api/projects/:project/endpoints/:ids/sparql: over the endpoints
    whose identifiers are joined by "+"
  - /v1/api/projects[/:project[/endpoints[/:id]]]: project management
  - DELETE /v1/api/projects/:project/cache: flush cached responses
  - GET /health, GET /metrics

Requests are authenticated with the x-api-key header when server.api_key or
server.api_key_hash is set, and with Bearer tokens when server.jwt_secret is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default server.port)")
	serveCmd.Flags().String("api-key", "", "API key for endpoint protection")
	serveCmd.Flags().Bool("debug", false, "Log outbound endpoint requests")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.api_key", serveCmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("client.debug", serveCmd.Flags().Lookup("debug"))
}

// newServer builds the echo instance with all routes registered.
func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(a.settings.BodyLimit))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "x-api-key"},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))

	h := &handlers{app: a}
	keys := auth.NewKeyChecker(a.settings.APIKey, a.settings.APIKeyHash)
	admin := AdminOnlyMiddleware()
	project := ProjectAccessMiddleware()

	// Public endpoints
	e.GET("/health", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	api := e.Group("/v1/api", AuthMiddleware(keys, a.settings.JWTSecret))
	api.GET("/projects", h.listProjects)
	api.POST("/projects", h.createProject, admin)
	api.GET("/audit", h.auditLog, admin)

	api.GET("/projects/:project", h.getProject, project)
	api.DELETE("/projects/:project", h.deleteProject, admin)
	api.GET("/projects/:project/endpoints", h.listEndpoints, project)
	api.POST("/projects/:project/endpoints", h.addEndpoint, admin)
	api.DELETE("/projects/:project/endpoints/:id", h.removeEndpoint, admin)
	api.DELETE("/projects/:project/cache", h.flushCache, admin)

	api.GET("/projects/:project/sparql", h.sparql, project)
	api.POST("/projects/:project/sparql", h.sparql, project)
	api.GET("/projects/:project/endpoints/:ids/sparql", h.sparql, project)
	api.POST("/projects/:project/endpoints/:ids/sparql", h.sparql, project)

	return e
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("failed to close cache")
		}
	}()

	s := a.settings
	logger.WithFields(logrus.Fields{
		"port":         s.Port,
		"data_dir":     s.DataDir,
		"cache":        s.Cache.Backend,
		"auth_mode":    auth.ModeFor(auth.NewKeyChecker(s.APIKey, s.APIKeyHash).Configured(), s.JWTSecret != ""),
		"pool_size":    s.Federation.PoolSize,
		"call_timeout": s.Federation.CallTimeout.String(),
	}).Info("configuration loaded")

	e := newServer(a)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", fmt.Sprintf(":%d", s.Port)).Info("starting HTTP server")
		if err := e.Start(fmt.Sprintf(":%d", s.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
