package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeServerMessage(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, msg *serverMessage)
	}{
		{
			name: "login response",
			raw:  `{"event":"login_response","data":{"status":"success","session_id":"s-1"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Login)
				assert.Equal(t, "success", msg.Login.Status)
				assert.Equal(t, "s-1", msg.Login.SessionID)
			},
		},
		{
			name: "request received",
			raw:  `{"event":"agent_request_received","data":{"task_id":"t-9"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Received)
				assert.Equal(t, "t-9", msg.Received.TaskID)
			},
		},
		{
			name: "agent response",
			raw:  `{"event":"agent_response","data":{"task_id":"t-9","response":"готово"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Response)
				assert.Equal(t, "готово", msg.Response.Response)
			},
		},
		{
			name: "error without task id",
			raw:  `{"event":"error","data":{"message":"not logged in"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Err)
				assert.Empty(t, msg.Err.TaskID)
				assert.Equal(t, "not logged in", msg.Err.Message)
			},
		},
		{
			name: "task cancelled",
			raw:  `{"event":"task_cancelled","data":{"task_id":"t-2"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Cancelled)
				assert.Equal(t, "t-2", msg.Cancelled.TaskID)
			},
		},
		{
			name: "logout response with no data",
			raw:  `{"event":"logout_response"}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Logout)
			},
		},
		{
			name: "tool call",
			raw:  `{"event":"tool_call","data":{"task_id":"t-3","tool_name":"search"}}`,
			check: func(t *testing.T, msg *serverMessage) {
				require.NotNil(t, msg.Tool)
				assert.Equal(t, "search", msg.Tool.ToolName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeServerMessage([]byte(tt.raw))
			require.NoError(t, err)
			tt.check(t, msg)
		})
	}
}

func TestDecodeServerMessageErrors(t *testing.T) {
	_, err := decodeServerMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodeServerMessage([]byte(`{"event":"made_up","data":{}}`))
	assert.Error(t, err)

	_, err = decodeServerMessage([]byte(`{"event":"agent_response","data":[1,2]}`))
	assert.Error(t, err)
}
