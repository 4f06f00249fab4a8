package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/pkg/response"
)

type MembershipHandler struct {
	membershipService *services.MembershipService
	requestService    *services.RequestService
}

func NewMembershipHandler(membershipService *services.MembershipService, requestService *services.RequestService) *MembershipHandler {
	return &MembershipHandler{
		membershipService: membershipService,
		requestService:    requestService,
	}
}

// Join adds the caller to a project that allows direct joins
// POST /api/projects/:id/join
func (h *MembershipHandler) Join(c *gin.Context) {
	membership, err := h.membershipService.Join(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, membership)
}

// Leave revokes the caller's own membership
// POST /api/projects/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	left, err := h.membershipService.Leave(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"left": left})
}

// ListMembers returns the project's collaborators
// GET /api/projects/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	var req services.MemberListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	members, err := h.membershipService.ListMembers(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, members)
}

// Revoke revokes a collaborator's membership
// POST /api/memberships/:id/revoke
func (h *MembershipHandler) Revoke(c *gin.Context) {
	membership, err := h.membershipService.Revoke(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, membership)
}

// SubmitRequest asks the project owner for membership
// POST /api/projects/:id/membership-requests
func (h *MembershipHandler) SubmitRequest(c *gin.Context) {
	var req services.SubmitRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	request, err := h.requestService.Submit(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, request)
}

// ListRequests returns the project's membership requests, pending by default
// GET /api/projects/:id/membership-requests
func (h *MembershipHandler) ListRequests(c *gin.Context) {
	var req services.RequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	requests, err := h.requestService.List(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, requests)
}

// AcceptRequest accepts a pending request and admits the requester
// POST /api/membership-requests/:id/accept
func (h *MembershipHandler) AcceptRequest(c *gin.Context) {
	request, membership, err := h.requestService.Accept(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"request":    request,
		"membership": membership,
	})
}

// RejectRequest rejects a pending request
// POST /api/membership-requests/:id/reject
func (h *MembershipHandler) RejectRequest(c *gin.Context) {
	request, err := h.requestService.Reject(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, request)
}
