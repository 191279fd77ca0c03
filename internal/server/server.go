// Package server assembles the HTTP application and the gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	_ "github.com/FCJuventus/DoPi-demo/docs" // swagger spec registration
	"github.com/FCJuventus/DoPi-demo/handlers"
	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/middleware"
	"github.com/FCJuventus/DoPi-demo/utils"
)

const shutdownTimeout = 10 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the pieces the HTTP application is assembled from.
type Deps struct {
	Handler        *handlers.ApplicationHandler
	Sessions       *middleware.Sessions
	Metrics        *metrics.Collector
	Store          Pinger
	Logger         logrus.FieldLogger
	AllowedOrigins []string
}

// NewApp builds the fiber application with every route mounted.
func NewApp(d Deps) *fiber.App {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app := fiber.New(fiber.Config{
		AppName:      "DoPi",
		ErrorHandler: errorHandler(logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger, d.Metrics))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(d.AllowedOrigins, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, " + middleware.RequestIDHeader,
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
		AllowCredentials: true,
		ExposeHeaders:    middleware.RequestIDHeader,
	}))
	app.Use(d.Sessions.Load())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Hello, World!"})
	})
	app.Get("/healthz", healthz(d.Store))
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	app.Get("/swagger/*", fiberSwagger.WrapHandler)

	d.Handler.Register(app)
	return app
}

func healthz(store Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}
}

// errorHandler renders errors that escaped the handlers, including
// recovered panics, in the common error envelope.
func errorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if !errors.As(err, &fe) {
			logger.WithError(err).WithField("request_id", c.Locals("requestid")).Error("Unhandled error")
		}
		return utils.RespondWithAppError(c, err)
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, app *fiber.App, addr string, logger logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("HTTP server started")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server")
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
