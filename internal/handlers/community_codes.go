package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/services"
	appErrors "github.com/charlesng35/waitlist/pkg/errors"
	"github.com/charlesng35/waitlist/pkg/response"
)

// CommunityCodeHandler exposes usage-capped community codes.
type CommunityCodeHandler struct {
	community *services.CommunityCodeService
}

// NewCommunityCodeHandler constructs a CommunityCodeHandler.
func NewCommunityCodeHandler(community *services.CommunityCodeService) (*CommunityCodeHandler, error) {
	if community == nil {
		return nil, appErrors.ErrInternalServer.WithInternal(errMissingService("community code"))
	}
	return &CommunityCodeHandler{community: community}, nil
}

type createCommunityCodeRequest struct {
	Code    string `json:"code" validate:"required,code"`
	MaxUses int    `json:"max_uses" validate:"required,gte=1"`
}

type communityCodeResponse struct {
	Code        string `json:"code"`
	MaxUses     int    `json:"max_uses"`
	CurrentUses int    `json:"current_uses"`
	Remaining   int    `json:"remaining"`
}

// Create POST /api/community-codes
func (h *CommunityCodeHandler) Create(c *gin.Context) {
	var req createCommunityCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	community, err := h.community.Create(c.Request.Context(), req.Code, req.MaxUses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, community)
}

// Get GET /api/community-codes/:code
func (h *CommunityCodeHandler) Get(c *gin.Context) {
	community, err := h.community.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, communityCodeResponse{
		Code:        community.Code,
		MaxUses:     community.MaxUses,
		CurrentUses: community.CurrentUses,
		Remaining:   community.Remaining(),
	})
}

// Use POST /api/community-codes/:code/use
func (h *CommunityCodeHandler) Use(c *gin.Context) {
	var req contactRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.community.Use(c.Request.Context(), c.Param("code"), req.contact())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Delete DELETE /api/community-codes/:code
func (h *CommunityCodeHandler) Delete(c *gin.Context) {
	code := c.Param("code")
	removed, err := h.community.Delete(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !removed {
		response.Error(c, services.ErrCommunityCodeNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"code": services.NormaliseCode(code), "deleted": true})
}
