package acquisitions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/DINO060/mediasink/internal/acquire"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	// SubmitRequest is the request body accepted when creating a new
	// acquisition.
	SubmitRequest struct {
		URL          string         `json:"url" validate:"required,url"`
		UserID       int64          `json:"user_id" validate:"required,gt=0"`
		MediaKind    string         `json:"media_kind" validate:"omitempty,oneof=video audio image document"`
		ForceRefresh bool           `json:"force_refresh"`
		Options      map[string]any `json:"options"`
	}

	// Service is where this controller submits and retrieves
	// acquisition tasks; this is typically the acquire service.
	Service interface {
		Submit(request acquire.Request) (*acquire.Task, error)
		Task(id uuid.UUID) *acquire.Task
		AllTasks() []*acquire.Task
		CancelTask(id uuid.UUID) error
	}

	// SubmissionLimiter gates how frequently a single user may submit
	// new acquisitions.
	SubmissionLimiter interface {
		Check(ctx context.Context, key string) (bool, error)
	}

	// ArtifactFinder answers whether a URL was previously acquired,
	// from the durable artifact records rather than the cache.
	ArtifactFinder interface {
		LatestByFingerprint(fingerprint string) (*media.Artifact, error)
	}

	Controller struct {
		service  Service
		limiter  SubmissionLimiter
		finder   ArtifactFinder
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, service Service, limiter SubmissionLimiter, finder ArtifactFinder) *Controller {
	return &Controller{service: service, limiter: limiter, finder: finder, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.GET("/lookup/", controller.lookup)
	eg.GET("/:id/", controller.get)
	eg.GET("/:id/result/", controller.getResult)
	eg.DELETE("/:id/", controller.delete)
}

// create validates and rate-limits the submission before handing the
// request to the acquire service. The accepted task is returned
// immediately; its progress is observed via polling or the activity
// socket.
func (controller *Controller) create(ec echo.Context) error {
	var submitRequest SubmitRequest
	if err := ec.Bind(&submitRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(submitRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	allowed, err := controller.limiter.Check(ec.Request().Context(), fmt.Sprintf("user:%d:submit", submitRequest.UserID))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to check submission rate: %s", err.Error()))
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Submission rate limit exceeded, try again later")
	}

	task, err := controller.service.Submit(acquire.Request{
		URL:       submitRequest.URL,
		UserID:    submitRequest.UserID,
		MediaKind: submitRequest.MediaKind,
		Options: acquire.Options{
			ForceRefresh: submitRequest.ForceRefresh,
			Extra:        submitRequest.Options,
		},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Failed to accept acquisition: %s", err.Error()))
	}

	return ec.JSON(http.StatusCreated, NewDto(task))
}

// list returns all the tasks - represented as DTOs - known to the
// underlying service.
func (controller *Controller) list(ec echo.Context) error {
	tasks := controller.service.AllTasks()
	dtos := make([]*Dto, len(tasks))
	for k, v := range tasks {
		dtos[k] = NewDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// lookup reports the most recent recorded acquisition of the 'url'
// query param, keyed by its fingerprint. This consults the durable
// records, so it answers even after the cache entry has lapsed.
func (controller *Controller) lookup(ec echo.Context) error {
	fingerprint, err := acquire.Fingerprint(ec.QueryParam("url"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid url: %s", err.Error()))
	}

	artifact, err := controller.finder.LatestByFingerprint(fingerprint)
	if err != nil {
		if errors.Is(err, media.ErrArtifactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No recorded acquisition for this URL")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to look up acquisition record: %s", err.Error()))
	}

	return ec.JSON(http.StatusOK, NewArtifactDto(artifact))
}

// get uses the 'id' path param from the context and retrieves the task
// from the underlying service. If found, a DTO representing the task
// is returned.
func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Acquisition ID is not a valid UUID")
	}

	task := controller.service.Task(id)
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Acquisition with ID %s does not exist", id))
	}

	return ec.JSON(http.StatusOK, NewDto(task))
}

// getResult returns the payload of a completed task. A task that has
// not yet reached a terminal state answers with a conflict, prompting
// the client to keep polling.
func (controller *Controller) getResult(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Acquisition ID is not a valid UUID")
	}

	task := controller.service.Task(id)
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Acquisition with ID %s does not exist", id))
	}

	if !task.Status().Terminal() {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("Acquisition %s is still %s", id, task.Status()))
	}

	result := task.Result()
	if result == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Acquisition %s finished without a result: %s", id, failureMessage(task)))
	}

	return ec.JSON(http.StatusOK, NewResultDto(result))
}

// delete cancels the task with the 'id' path param. Only a task that
// has not yet been claimed by a worker can be cancelled.
func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Acquisition ID is not a valid UUID")
	}

	if err := controller.service.CancelTask(id); err != nil {
		switch {
		case err == acquire.ErrTaskNotFound:
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Acquisition with ID %s does not exist", id))
		case acquire.KindOf(err) == acquire.CancellationDenied:
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return ec.NoContent(http.StatusOK)
}

func failureMessage(task *acquire.Task) string {
	if cause := task.FailureCause(); cause != nil {
		return cause.Error()
	}

	return task.Status().String()
}
