package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/services"
	appErrors "github.com/charlesng35/waitlist/pkg/errors"
	"github.com/charlesng35/waitlist/pkg/response"
)

// SignupHandler exposes the signup gate.
type SignupHandler struct {
	signup *services.SignupService
}

// NewSignupHandler constructs a SignupHandler.
func NewSignupHandler(signup *services.SignupService) (*SignupHandler, error) {
	if signup == nil {
		return nil, appErrors.ErrInternalServer.WithInternal(errMissingService("signup"))
	}
	return &SignupHandler{signup: signup}, nil
}

type setCutoffRequest struct {
	Cutoff *int `json:"cutoff" validate:"required"`
}

type cutoffResponse struct {
	Cutoff int `json:"cutoff"`
}

type signupStateResponse struct {
	ID        string             `json:"id"`
	State     models.SignupState `json:"state"`
	CanSignUp bool               `json:"can_sign_up"`
	Marked    bool               `json:"marked,omitempty"`
}

// GetCutoff GET /api/signup/cutoff
func (h *SignupHandler) GetCutoff(c *gin.Context) {
	cutoff, err := h.signup.Cutoff(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cutoffResponse{Cutoff: cutoff})
}

// SetCutoff PUT /api/signup/cutoff
func (h *SignupHandler) SetCutoff(c *gin.Context) {
	var req setCutoffRequest
	if !bindAndValidate(c, &req) {
		return
	}

	stored, err := h.signup.SetCutoff(c.Request.Context(), *req.Cutoff)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cutoffResponse{Cutoff: stored})
}

// State GET /api/waitlist/members/:id/signup
func (h *SignupHandler) State(c *gin.Context) {
	id := c.Param("id")
	state, err := h.signup.State(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, signupStateResponse{
		ID:        id,
		State:     state,
		CanSignUp: state == models.SignupEligible,
	})
}

// MarkSignedUp POST /api/waitlist/members/:id/signup
func (h *SignupHandler) MarkSignedUp(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	marked, err := h.signup.MarkSignedUp(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	state, err := h.signup.State(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, signupStateResponse{
		ID:        id,
		State:     state,
		CanSignUp: state == models.SignupEligible,
		Marked:    marked,
	})
}
