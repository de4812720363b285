package dash_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-mail-relay/pkg/dash"
	"github.com/illmade-knight/go-mail-relay/pkg/history"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

func newTestServer(t *testing.T) (*dash.Server, *history.TaskLog) {
	t.Helper()
	tasks := history.NewTaskLog(10)
	matcher, err := rules.NewMatcher([]rules.ForwardRule{
		{Tag: "[PHOTO]", Recipients: []string{"a@x.com"}},
	})
	require.NoError(t, err)

	server, err := dash.NewServer(dash.Config{Addr: "127.0.0.1:0"}, tasks, matcher, zerolog.Nop())
	require.NoError(t, err)
	return server, tasks
}

func get(t *testing.T, server *dash.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	server, _ := newTestServer(t)

	rec := get(t, server, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_TasksSnapshot(t *testing.T) {
	// Arrange
	server, tasks := newTestServer(t)
	tasks.Append(history.ForwardTask{Subject: "older", Status: history.StatusSuccess})
	tasks.Append(history.ForwardTask{Subject: "newer", Status: history.StatusFailed, ErrorSummary: "1/2 failed"})

	// Act
	rec := get(t, server, "/api/v1/tasks")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var decoded []history.ForwardTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "newer", decoded[0].Subject)
	assert.Equal(t, "1/2 failed", decoded[0].ErrorSummary)
	assert.Equal(t, "older", decoded[1].Subject)
}

func TestServer_RuleList(t *testing.T) {
	server, _ := newTestServer(t)

	rec := get(t, server, "/api/v1/rules")

	require.Equal(t, http.StatusOK, rec.Code)
	var decoded []rules.ForwardRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "[PHOTO]", decoded[0].Tag)
	assert.Equal(t, []string{"a@x.com"}, decoded[0].Recipients)
}

func TestServer_Metrics(t *testing.T) {
	server, _ := newTestServer(t)

	rec := get(t, server, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServer_Validation(t *testing.T) {
	matcher, err := rules.NewMatcher([]rules.ForwardRule{{Tag: "[T]", Recipients: []string{"a@x.com"}}})
	require.NoError(t, err)

	_, err = dash.NewServer(dash.Config{}, history.NewTaskLog(1), matcher, zerolog.Nop())
	require.Error(t, err)

	_, err = dash.NewServer(dash.Config{Addr: ":0"}, nil, matcher, zerolog.Nop())
	require.Error(t, err)

	_, err = dash.NewServer(dash.Config{Addr: ":0"}, history.NewTaskLog(1), nil, zerolog.Nop())
	require.Error(t, err)
}
