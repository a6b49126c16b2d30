package websocket

import (
	"fmt"

	"github.com/google/uuid"
)

type SocketMessageType int

const (
	Update SocketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is the envelope for all traffic on the activity
// socket. The Id field allows a reply to be correlated with the
// message it answers; Origin/Target identify the client a message
// came from or is destined for (a nil Target means broadcast).
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Id     int                    `json:"id"`
	Type   SocketMessageType      `json:"type"`
	Origin *uuid.UUID             `json:"-"`
	Target *uuid.UUID             `json:"-"`
}

// ValidateArguments checks the message body contains each of the
// required keys, with a value loosely matching the named primitive
// type. JSON numbers arrive as float64.
func (message *SocketMessage) ValidateArguments(required map[string]string) error {
	const errFmt = "failed to validate key '%v' with type '%v' - %#v"

	for key, wantType := range required {
		v, ok := message.Body[key]
		if !ok {
			return fmt.Errorf("failed to validate key '%v' - key is missing", key)
		}

		switch wantType {
		case "number", "int":
			if _, ok := v.(float64); !ok {
				return fmt.Errorf(errFmt, key, wantType, v)
			}
		case "string":
			if fmt.Sprintf("%v", v) == "" {
				return fmt.Errorf(errFmt, key, wantType, v)
			}
		default:
			return fmt.Errorf(errFmt, key, wantType, "unknown type")
		}
	}

	return nil
}

// FormReply builds a new message carrying the same id as the original
// and targeted back at its origin.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]interface{}, replyType SocketMessageType) *SocketMessage {
	if replyBody != nil {
		replyBody["command"] = message.Body
	}

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
