package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// MembershipHandler exposes join/leave, member administration, invitations
// and block list endpoints.
type MembershipHandler struct {
	svc    *service.MembershipService
	auth   *Authenticator
	logger *zap.Logger
}

// NewMembershipHandler creates a new MembershipHandler.
func NewMembershipHandler(svc *service.MembershipService, auth *Authenticator, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the membership routes on the given router group.
func (h *MembershipHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/join", h.auth.Required(), h.Join)
	rg.POST("/leave", h.auth.Required(), h.Leave)

	rings := rg.Group("/rings/:slug")
	{
		rings.GET("/members", h.auth.Optional(), h.ListMembers)
		rings.GET("/membership-info", h.Info)
		rings.PUT("/members/:did", h.auth.Required(), h.UpdateRole)
		rings.DELETE("/members/:did", h.auth.Required(), h.Remove)
		rings.POST("/members/:did/approve", h.auth.Required(), h.Approve)
		rings.POST("/members/:did/decline", h.auth.Required(), h.Decline)
		rings.POST("/invite", h.auth.Required(), h.Invite)
		rings.GET("/blocks", h.auth.Required(), h.ListBlocks)
		rings.POST("/blocks", h.auth.Required(), h.CreateBlock)
		rings.DELETE("/blocks/:id", h.auth.Required(), h.DeleteBlock)
	}

	my := rg.Group("/my", h.auth.Required())
	{
		my.GET("/memberships", h.MyMemberships)
		my.GET("/invitations", h.MyInvitations)
	}
}

// Join handles POST /join. Depending on the ring's join policy the result is
// an active membership or a pending application.
func (h *MembershipHandler) Join(c *gin.Context) {
	var req model.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Join(c.Request.Context(), IdentityFromCtx(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Leave handles POST /leave.
func (h *MembershipHandler) Leave(c *gin.Context) {
	var req model.LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Leave(c.Request.Context(), IdentityFromCtx(c), &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /rings/:slug/members. The status query defaults to
// ACTIVE; other statuses require the manage_members permission.
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	status := model.MembershipStatus(c.Query("status"))
	limit, offset := parseLimitOffset(c, 50, 200)

	members, err := h.svc.ListMembers(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), status, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if members == nil {
		members = []*model.Membership{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

// Info handles GET /rings/:slug/membership-info.
func (h *MembershipHandler) Info(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// UpdateRole handles PUT /rings/:slug/members/:did.
func (h *MembershipHandler) UpdateRole(c *gin.Context) {
	var req model.RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.svc.UpdateRole(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), c.Param("did"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Remove handles DELETE /rings/:slug/members/:did. Owner only.
func (h *MembershipHandler) Remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), c.Param("did")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Approve handles POST /rings/:slug/members/:did/approve.
func (h *MembershipHandler) Approve(c *gin.Context) {
	m, err := h.svc.Approve(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), c.Param("did"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Decline handles POST /rings/:slug/members/:did/decline.
func (h *MembershipHandler) Decline(c *gin.Context) {
	if err := h.svc.Decline(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), c.Param("did")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Invite handles POST /rings/:slug/invite.
func (h *MembershipHandler) Invite(c *gin.Context) {
	var req model.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.svc.Invite(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// ListBlocks handles GET /rings/:slug/blocks.
func (h *MembershipHandler) ListBlocks(c *gin.Context) {
	blocks, err := h.svc.ListBlocks(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if blocks == nil {
		blocks = []*model.Block{}
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "count": len(blocks)})
}

// CreateBlock handles POST /rings/:slug/blocks.
func (h *MembershipHandler) CreateBlock(c *gin.Context) {
	var req model.CreateBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	block, err := h.svc.CreateBlock(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}

// DeleteBlock handles DELETE /rings/:slug/blocks/:id.
func (h *MembershipHandler) DeleteBlock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block ID"})
		return
	}

	if err := h.svc.DeleteBlock(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyMemberships handles GET /my/memberships.
func (h *MembershipHandler) MyMemberships(c *gin.Context) {
	status := model.MembershipStatus(c.Query("status"))

	memberships, err := h.svc.MyMemberships(c.Request.Context(), IdentityFromCtx(c), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if memberships == nil {
		memberships = []*model.MembershipWithRing{}
	}
	c.JSON(http.StatusOK, gin.H{"memberships": memberships, "count": len(memberships)})
}

// MyInvitations handles GET /my/invitations.
func (h *MembershipHandler) MyInvitations(c *gin.Context) {
	status := model.InvitationStatus(c.Query("status"))

	invitations, err := h.svc.MyInvitations(c.Request.Context(), IdentityFromCtx(c), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if invitations == nil {
		invitations = []*model.Invitation{}
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations, "count": len(invitations)})
}
