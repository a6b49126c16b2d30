package api

import (
	"fmt"

	"github.com/DINO060/mediasink/internal/api/acquisitions"
	"github.com/DINO060/mediasink/internal/http/websocket"
	"github.com/google/uuid"
)

const (
	TitleTaskUpdate   = "ACQUISITION_UPDATE"
	TitleTaskProgress = "ACQUISITION_PROGRESS"
	TitleTaskComplete = "ACQUISITION_COMPLETE"
)

type (
	TaskUpdate struct {
		TaskID uuid.UUID         `json:"task_id"`
		Task   *acquisitions.Dto `json:"task"`
	}

	TaskCompletion struct {
		TaskID uuid.UUID               `json:"task_id"`
		Task   *acquisitions.Dto       `json:"task"`
		Result *acquisitions.ResultDto `json:"result,omitempty"`
	}

	// broadcaster pushes task lifecycle changes out on the activity
	// socket. Its methods are invoked by the composition layer, which
	// subscribes them to the internal event bus.
	broadcaster struct {
		socketHub      *websocket.SocketHub
		acquireService acquisitions.Service
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, acquireService acquisitions.Service) *broadcaster {
	return &broadcaster{socketHub: socketHub, acquireService: acquireService}
}

func (hub *broadcaster) BroadcastTaskUpdate(id uuid.UUID) error {
	task := hub.acquireService.Task(id)
	if task == nil {
		return fmt.Errorf("cannot broadcast update for unknown task %s", id)
	}

	hub.broadcast(TitleTaskUpdate, TaskUpdate{TaskID: id, Task: acquisitions.NewDto(task)})
	return nil
}

func (hub *broadcaster) BroadcastTaskProgress(id uuid.UUID) error {
	task := hub.acquireService.Task(id)
	if task == nil {
		return fmt.Errorf("cannot broadcast progress for unknown task %s", id)
	}

	hub.broadcast(TitleTaskProgress, TaskUpdate{TaskID: id, Task: acquisitions.NewDto(task)})
	return nil
}

func (hub *broadcaster) BroadcastTaskComplete(id uuid.UUID) error {
	task := hub.acquireService.Task(id)
	if task == nil {
		return fmt.Errorf("cannot broadcast completion for unknown task %s", id)
	}

	completion := TaskCompletion{TaskID: id, Task: acquisitions.NewDto(task)}
	if result := task.Result(); result != nil {
		completion.Result = acquisitions.NewResultDto(result)
	}

	hub.broadcast(TitleTaskComplete, completion)
	return nil
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}

// welcomePayload composes the state a freshly-connected socket client
// is furnished with.
func (gateway *RestGateway) welcomePayload() map[string]interface{} {
	tasks := gateway.acquireService.AllTasks()
	dtos := make([]*acquisitions.Dto, len(tasks))
	for k, v := range tasks {
		dtos[k] = acquisitions.NewDto(v)
	}

	return map[string]interface{}{"acquisitions": dtos}
}

// handleStatusCommand answers a client's ACQUISITION_STATUS command
// with the current DTO of the named task.
func (gateway *RestGateway) handleStatusCommand(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	if err := message.ValidateArguments(map[string]string{"id": "string"}); err != nil {
		return err
	}

	id, err := uuid.Parse(fmt.Sprintf("%v", message.Body["id"]))
	if err != nil {
		return fmt.Errorf("'id' is not a valid UUID")
	}

	task := gateway.acquireService.Task(id)
	if task == nil {
		return fmt.Errorf("no acquisition with ID %s", id)
	}

	hub.Send(message.FormReply(TitleTaskUpdate, map[string]interface{}{"task": acquisitions.NewDto(task)}, websocket.Response))
	return nil
}
