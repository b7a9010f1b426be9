package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/models"
	"github.com/charlesng35/waitlist/internal/services"
	appErrors "github.com/charlesng35/waitlist/pkg/errors"
	"github.com/charlesng35/waitlist/pkg/response"
)

// InviteCodeHandler exposes single-use invite codes.
type InviteCodeHandler struct {
	invites *services.InviteCodeService
}

// NewInviteCodeHandler constructs an InviteCodeHandler.
func NewInviteCodeHandler(invites *services.InviteCodeService) (*InviteCodeHandler, error) {
	if invites == nil {
		return nil, appErrors.ErrInternalServer.WithInternal(errMissingService("invite code"))
	}
	return &InviteCodeHandler{invites: invites}, nil
}

type createInviteCodeRequest struct {
	CreatorID string `json:"creator_id" validate:"required,code"`
	MinBump   *int   `json:"min_bump" validate:"omitempty,gte=0"`
}

type useInviteCodeRequest struct {
	ID       string         `json:"id" validate:"omitempty,code"`
	Email    string         `json:"email" validate:"omitempty,max=320"`
	Phone    string         `json:"phone" validate:"omitempty,max=32"`
	Metadata map[string]any `json:"metadata"`
	Bump     int            `json:"bump" validate:"gte=0"`
}

type inviteCodeResponse struct {
	models.InviteCode
	// PreviewPosition is where the creator would land after a use with the
	// code's minimum bump. Absent when the code can no longer be used.
	PreviewPosition *int `json:"preview_position,omitempty"`
}

// Create POST /api/invite-codes
func (h *InviteCodeHandler) Create(c *gin.Context) {
	var req createInviteCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	minBump := h.invites.DefaultMinBump()
	if req.MinBump != nil {
		minBump = *req.MinBump
	}

	invite, err := h.invites.Create(c.Request.Context(), req.CreatorID, minBump)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invite)
}

// Get GET /api/invite-codes/:code
func (h *InviteCodeHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	invite, err := h.invites.Get(ctx, code)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := inviteCodeResponse{InviteCode: invite}
	pos, ok, err := h.invites.Preview(ctx, code)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ok {
		resp.PreviewPosition = &pos
	}
	response.Success(c, http.StatusOK, resp)
}

// Use POST /api/invite-codes/:code/use
func (h *InviteCodeHandler) Use(c *gin.Context) {
	var req useInviteCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.Use(c.Request.Context(), c.Param("code"), services.InsertRequest{
		ID:       req.ID,
		Email:    req.Email,
		Phone:    req.Phone,
		Metadata: req.Metadata,
	}, req.Bump)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// ListByCreator GET /api/waitlist/members/:id/invite-codes
func (h *InviteCodeHandler) ListByCreator(c *gin.Context) {
	invites, err := h.invites.ListByCreator(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if invites == nil {
		invites = []models.InviteCode{}
	}
	response.SuccessWithMeta(c, http.StatusOK, invites, &response.Meta{Total: len(invites)})
}
