package sources

import (
	"net/http"

	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/labstack/echo/v4"
)

type (
	Dto struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Priority    int    `json:"priority"`
	}

	// Registry is where this controller reads the installed source
	// handlers from.
	Registry interface {
		Handlers() []plugin.Info
	}

	Controller struct {
		registry Registry
	}
)

func New(registry Registry) *Controller {
	return &Controller{registry: registry}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
}

// list returns the installed source handlers in resolution order.
func (controller *Controller) list(ec echo.Context) error {
	infos := controller.registry.Handlers()
	dtos := make([]Dto, len(infos))
	for k, v := range infos {
		dtos[k] = Dto{Name: v.Name, Version: v.Version, Description: v.Description, Priority: v.Priority}
	}

	return ec.JSON(http.StatusOK, dtos)
}
