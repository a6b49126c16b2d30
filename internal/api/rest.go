package api

import (
	"context"
	"sync"

	"github.com/DINO060/mediasink/internal/api/acquisitions"
	"github.com/DINO060/mediasink/internal/api/sources"
	"github.com/DINO060/mediasink/internal/api/users"
	"github.com/DINO060/mediasink/internal/http/websocket"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// ArtifactStore is the durable artifact record store shared by the
	// controllers that read acquisition history.
	ArtifactStore interface {
		acquisitions.ArtifactFinder
		users.ArtifactStore
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router.
	// Its sole responsibility is to create the routes the server
	// exposes, manage ongoing web socket connections, and push task
	// activity out to connected clients.
	RestGateway struct {
		*broadcaster
		config                 *RestConfig
		ec                     *echo.Echo
		socket                 *websocket.SocketHub
		acquisitionsController controller
		usersController        controller
		sourcesController      controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all
// the routes defined by the various controllers.
func NewRestGateway(
	config *RestConfig,
	acquireService acquisitions.Service,
	limiter acquisitions.SubmissionLimiter,
	quotaStore users.QuotaStore,
	artifactStore ArtifactStore,
	registry sources.Registry,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:            newBroadcaster(socket, acquireService),
		config:                 config,
		ec:                     ec,
		socket:                 socket,
		acquisitionsController: acquisitions.New(validate, acquireService, limiter, artifactStore),
		usersController:        users.New(validate, quotaStore, artifactStore),
		sourcesController:      sources.New(registry),
	}

	socket.WithConnectionCallback(gateway.welcomePayload)
	socket.BindCommand("ACQUISITION_STATUS", gateway.handleStatusCommand)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/mediasink/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	acqs := ec.Group("/api/mediasink/v1/acquisitions")
	gateway.acquisitionsController.SetRoutes(acqs)

	usrs := ec.Group("/api/mediasink/v1/users")
	gateway.usersController.SetRoutes(usrs)

	srcs := ec.Group("/api/mediasink/v1/sources")
	gateway.sourcesController.SetRoutes(srcs)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
