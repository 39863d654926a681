package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskrouter/internal/actions"
	"github.com/randalmurphal/taskrouter/internal/agent"
	"github.com/randalmurphal/taskrouter/internal/llm"
	"github.com/randalmurphal/taskrouter/internal/logging"
	"github.com/randalmurphal/taskrouter/internal/server"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
)

func newRouterServer(t *testing.T) *httptest.Server {
	t.Helper()
	vehicle := actions.VehicleActions()
	compiled, err := agent.Compile(agent.Deps{
		Classifier: agent.DefaultClassifier(),
		Responder:  llm.StaticResponder("晴天"),
		Planner:    actions.NewKeywordPlanner(vehicle...),
		Executor:   actions.NewRegistry(logging.NewNop(), vehicle...),
	}, flowgraph.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	srv := httptest.NewServer(server.NewHandler(agent.NewService(compiled, logging.NewNop()),
		server.WithLogger(logging.NewNop())))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_QueryAndResume(t *testing.T) {
	srv := newRouterServer(t)
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	res, err := c.Query(ctx, "", "关闭车辆")
	require.NoError(t, err)
	require.True(t, res.Interrupt)
	assert.Equal(t, actions.StopVehicle, res.Function)
	require.NotEmpty(t, res.SessionID)

	res, err = c.Resume(ctx, res.SessionID, "y")
	require.NoError(t, err)
	assert.False(t, res.Interrupt)
	assert.Equal(t, actions.VehicleStopped, res.Text)
}

func TestClient_APIError(t *testing.T) {
	srv := newRouterServer(t)
	c := New(srv.URL, nil)

	_, err := c.Resume(context.Background(), "ghost", "yes")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "409")
}

func TestChat_Conversation(t *testing.T) {
	srv := newRouterServer(t)
	c := New(srv.URL, nil)

	in := strings.NewReader("帮我启动车辆\nyes\n今天天气怎么样\nexit\n")
	var out bytes.Buffer
	require.NoError(t, c.Chat(context.Background(), in, &out, true))

	got := out.String()
	assert.Contains(t, got, "Client is ready.")
	assert.Contains(t, got, "系统提示: "+agent.ApprovalQuestion)
	assert.Contains(t, got, "工具调用: start_vehicle")
	assert.Contains(t, got, "请输入审批意见: ")
	assert.Contains(t, got, "Answer: "+actions.VehicleStarted)
	assert.Contains(t, got, "Answer: 晴天")
}

func TestChat_KeepsSession(t *testing.T) {
	srv := newRouterServer(t)
	c := New(srv.URL, nil)

	in := strings.NewReader("启动\nno\n")
	var out bytes.Buffer
	require.NoError(t, c.Chat(context.Background(), in, &out, false))

	assert.Contains(t, out.String(), "Answer: Action start_vehicle was not approved.")
	assert.NotContains(t, out.String(), "Query: ")
}

func TestChat_EndOfInput(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	var out bytes.Buffer

	require.NoError(t, c.Chat(context.Background(), strings.NewReader(""), &out, true))
	assert.Contains(t, out.String(), "Exiting.")
}

func TestChat_ServerErrorContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()
	c := New(srv.URL, nil)

	var out bytes.Buffer
	require.NoError(t, c.Chat(context.Background(), strings.NewReader("hi\nexit\n"), &out, false))
	assert.Contains(t, out.String(), "Error: server returned status 500: boom")
}
