package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/services"
	appErrors "github.com/charlesng35/waitlist/pkg/errors"
	"github.com/charlesng35/waitlist/pkg/response"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// WaitlistHandler exposes the ordered membership operations.
type WaitlistHandler struct {
	waitlist *services.WaitlistService
}

// NewWaitlistHandler constructs a WaitlistHandler.
func NewWaitlistHandler(waitlist *services.WaitlistService) (*WaitlistHandler, error) {
	if waitlist == nil {
		return nil, appErrors.ErrInternalServer.WithInternal(errMissingService("waitlist"))
	}
	return &WaitlistHandler{waitlist: waitlist}, nil
}

type insertMemberRequest struct {
	ID       string         `json:"id" validate:"omitempty,code"`
	Email    string         `json:"email" validate:"omitempty,max=320"`
	Phone    string         `json:"phone" validate:"omitempty,max=32"`
	Metadata map[string]any `json:"metadata"`
}

type insertMemberResponse struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	Duplicate bool   `json:"duplicate"`
}

type moveMemberRequest struct {
	Position *int `json:"position" validate:"required"`
}

type placementResponse struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

type contactRequest struct {
	Email string `json:"email" validate:"omitempty,max=320"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

func (r contactRequest) contact() services.Contact {
	return services.Contact{Email: r.Email, Phone: r.Phone}
}

func queryContact(c *gin.Context) services.Contact {
	return services.Contact{Email: c.Query("email"), Phone: c.Query("phone")}
}

// Insert POST /api/waitlist/members
func (h *WaitlistHandler) Insert(c *gin.Context) {
	var req insertMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.waitlist.Insert(c.Request.Context(), services.InsertRequest{
		ID:       req.ID,
		Email:    req.Email,
		Phone:    req.Phone,
		Metadata: req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	response.Success(c, status, insertMemberResponse{
		ID:        result.ID,
		Position:  result.Position,
		Duplicate: result.Duplicate,
	})
}

// List GET /api/waitlist/members?offset=&limit=
func (h *WaitlistHandler) List(c *gin.Context) {
	offset := parseIntQuery(c, "offset", 0)
	limit := parseIntQuery(c, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	placements, total, err := h.waitlist.List(c.Request.Context(), offset, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, placements, &response.Meta{Total: total, Offset: offset, Limit: limit})
}

// Get GET /api/waitlist/members/:id
func (h *WaitlistHandler) Get(c *gin.Context) {
	status, err := h.waitlist.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Lookup GET /api/waitlist/lookup?email=|phone=
func (h *WaitlistHandler) Lookup(c *gin.Context) {
	status, err := h.waitlist.Lookup(c.Request.Context(), queryContact(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Move POST /api/waitlist/members/:id/move
func (h *WaitlistHandler) Move(c *gin.Context) {
	var req moveMemberRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	pos, err := h.waitlist.MoveTo(c.Request.Context(), id, *req.Position)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, placementResponse{ID: id, Position: pos})
}

// AttachContact PUT /api/waitlist/members/:id/contact
func (h *WaitlistHandler) AttachContact(c *gin.Context) {
	var req contactRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.waitlist.AttachContact(c.Request.Context(), c.Param("id"), req.contact())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// Delete DELETE /api/waitlist/members/:id
func (h *WaitlistHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.waitlist.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// DeleteByContact DELETE /api/waitlist/contacts?email=|phone=
func (h *WaitlistHandler) DeleteByContact(c *gin.Context) {
	id, err := h.waitlist.DeleteByContact(c.Request.Context(), queryContact(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}
