package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/handlers/testutil"
)

type cutoffPayload struct {
	Cutoff int `json:"cutoff"`
}

type signupPayload struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	CanSignUp bool   `json:"can_sign_up"`
	Marked    bool   `json:"marked"`
}

func TestSignupHandler_CutoffLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	for _, id := range []string{"a", "b", "c"} {
		env.Insert(id, id+"@example.com")
	}

	w := env.Request(http.MethodGet, "/api/signup/cutoff", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cutoff cutoffPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &cutoff)
	require.Equal(t, -1, cutoff.Cutoff)

	w = env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{"cutoff": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &cutoff)
	require.Equal(t, 3, cutoff.Cutoff)

	env.RequireError(env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{"cutoff": 2}), http.StatusForbidden, "CUTOFF_DECREASE")
	env.RequireError(env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{"cutoff": -5}), http.StatusBadRequest, "CUTOFF_INVALID")
	env.RequireError(env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{}), http.StatusBadRequest, "BAD_REQUEST")

	w = env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{"cutoff": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &cutoff)
	require.Equal(t, 0, cutoff.Cutoff)
}

func TestSignupHandler_MarkSignedUp(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Insert("a", "a@example.com")
	env.Insert("b", "b@example.com")

	w := env.Request(http.MethodPost, "/api/waitlist/members/a/signup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var state signupPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &state)
	require.False(t, state.Marked)
	require.Equal(t, "not_eligible", state.State)

	w = env.Request(http.MethodPut, "/api/signup/cutoff", map[string]any{"cutoff": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/waitlist/members/a/signup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &state)
	require.True(t, state.CanSignUp)

	w = env.Request(http.MethodPost, "/api/waitlist/members/a/signup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &state)
	require.True(t, state.Marked)
	require.Equal(t, "signed_up", state.State)
	require.False(t, state.CanSignUp)

	env.RequireError(env.Request(http.MethodPost, "/api/waitlist/members/a/move", map[string]any{"position": 2}), http.StatusForbidden, "FORBIDDEN_SIGNED_UP")
	env.RequireError(env.Request(http.MethodDelete, "/api/waitlist/members/a", nil), http.StatusForbidden, "FORBIDDEN_SIGNED_UP")
	env.RequireError(env.Request(http.MethodPost, "/api/waitlist/members/b/move", map[string]any{"position": 1}), http.StatusForbidden, "FORBIDDEN_CUTOFF_BOUNDARY")
	env.RequireError(env.Request(http.MethodGet, "/api/waitlist/members/zz/signup", nil), http.StatusNotFound, "MEMBER_NOT_FOUND")
}
