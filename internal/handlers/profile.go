package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/pkg/response"
)

type ProfileHandler struct {
	profileService *services.ProfileService
}

func NewProfileHandler(profileService *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// Get returns a user's profile
// GET /api/users/:id/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profileService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// Update edits the caller's own profile, creating it on first use
// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	profile, err := h.profileService.Update(c.Request.Context(), userID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// Skills lists known skills
// GET /api/skills
func (h *ProfileHandler) Skills(c *gin.Context) {
	var req services.LabelListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	skills, err := h.profileService.Skills(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, skills)
}

// Interests lists known interests
// GET /api/interests
func (h *ProfileHandler) Interests(c *gin.Context) {
	var req services.LabelListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	interests, err := h.profileService.Interests(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, interests)
}
