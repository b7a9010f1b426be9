package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/api"
	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory store for handler tests.
type Env struct {
	T       *testing.T
	Runtime *app.Runtime
	Router  *gin.Engine
}

// NewEnv provisions a fresh handler test environment. Options adjust the
// default configuration before the runtime is built.
func NewEnv(t *testing.T, opts ...func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Store.Backend = "memory"
	cfg.Store.MaxConflictRetries = 500
	for _, opt := range opts {
		opt(cfg)
	}

	rt, err := app.NewRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	router, err := api.NewRouter(rt)
	require.NoError(t, err)

	return &Env{T: t, Runtime: rt, Router: router}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, JSON-encoding body when present.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RequireError asserts that w carries an error envelope with the given status and code.
func (e *Env) RequireError(w *httptest.ResponseRecorder, status int, code string) {
	e.T.Helper()
	require.Equal(e.T, status, w.Code, w.Body.String())
	resp := DecodeResponse(e.T, w)
	require.False(e.T, resp.Success)
	require.NotNil(e.T, resp.Error)
	require.Equal(e.T, code, resp.Error.Code)
}

// Insert adds a member through the API and returns its id and position.
func (e *Env) Insert(id, email string) (string, int) {
	e.T.Helper()
	w := e.Request(http.MethodPost, "/api/waitlist/members", map[string]any{"id": id, "email": email})
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		ID       string `json:"id"`
		Position int    `json:"position"`
	}
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &out)
	return out.ID, out.Position
}
