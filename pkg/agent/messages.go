package agent

import (
	"encoding/json"
	"fmt"
)

// Wire events understood by the client. The agent service frames every
// message as {"event": ..., "data": {...}}.
const (
	eventLogin            = "login"
	eventLoginResponse    = "login_response"
	eventAgentRequest     = "agent_request"
	eventRequestReceived  = "agent_request_received"
	eventAgentResponse    = "agent_response"
	eventError            = "error"
	eventCancelRequest    = "cancel_request"
	eventRequestCancelled = "request_cancelled"
	eventTaskCancelled    = "task_cancelled"
	eventLogout           = "logout"
	eventLogoutResponse   = "logout_response"
	eventToolCall         = "tool_call"
	eventToolResult       = "tool_result"
	eventAgentOutput      = "agent_output"
)

const loginStatusSuccess = "success"

type clientMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type agentRequestData struct {
	Message string `json:"message"`
}

type taskRefData struct {
	TaskID string `json:"task_id"`
}

type loginResponseData struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

type agentResponseData struct {
	TaskID   string `json:"task_id"`
	Response string `json:"response"`
}

type serverErrorData struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

type toolEventData struct {
	TaskID     string `json:"task_id"`
	ToolName   string `json:"tool_name"`
	ToolOutput string `json:"tool_output"`
}

// serverMessage is the decoded form of one inbound frame. Exactly one of
// the payload fields is non-nil, discriminated by Event.
type serverMessage struct {
	Event string

	Login     *loginResponseData
	Received  *taskRefData
	Response  *agentResponseData
	Err       *serverErrorData
	Cancelled *taskRefData
	Logout    *struct{}
	Tool      *toolEventData
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeServerMessage parses a raw frame into its typed variant. Unknown
// events and malformed payloads return an error instead of leaking into
// handler code.
func decodeServerMessage(raw []byte) (*serverMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("agent: malformed frame: %w", err)
	}

	msg := &serverMessage{Event: env.Event}
	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	var err error
	switch env.Event {
	case eventLoginResponse:
		msg.Login = &loginResponseData{}
		err = json.Unmarshal(data, msg.Login)
	case eventRequestReceived:
		msg.Received = &taskRefData{}
		err = json.Unmarshal(data, msg.Received)
	case eventAgentResponse:
		msg.Response = &agentResponseData{}
		err = json.Unmarshal(data, msg.Response)
	case eventError:
		msg.Err = &serverErrorData{}
		err = json.Unmarshal(data, msg.Err)
	case eventRequestCancelled, eventTaskCancelled:
		msg.Cancelled = &taskRefData{}
		err = json.Unmarshal(data, msg.Cancelled)
	case eventLogoutResponse:
		msg.Logout = &struct{}{}
	case eventToolCall, eventToolResult, eventAgentOutput:
		msg.Tool = &toolEventData{}
		err = json.Unmarshal(data, msg.Tool)
	default:
		return nil, fmt.Errorf("agent: unknown event %q", env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("agent: malformed %s payload: %w", env.Event, err)
	}
	return msg, nil
}
