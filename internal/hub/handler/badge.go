package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// BadgeHandler exposes membership badge retrieval and verification
// endpoints.
type BadgeHandler struct {
	svc    *service.BadgeService
	auth   *Authenticator
	logger *zap.Logger
}

// NewBadgeHandler creates a new BadgeHandler.
func NewBadgeHandler(svc *service.BadgeService, auth *Authenticator, logger *zap.Logger) *BadgeHandler {
	return &BadgeHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the badge routes on the given router group.
func (h *BadgeHandler) Register(rg *gin.RouterGroup) {
	badges := rg.Group("/badges")
	{
		badges.GET("/:id", h.auth.Optional(), h.Get)
		badges.POST("/:id/verify", h.Verify)
	}
	rg.GET("/actors/:did/badges", h.auth.Optional(), h.ListByActor)
	rg.PUT("/rings/:slug/badge", h.auth.Required(), h.UpdateRingBadge)
}

// Get handles GET /badges/:id.
func (h *BadgeHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid badge ID"})
		return
	}

	b, err := h.svc.Get(c.Request.Context(), IdentityFromCtx(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Verify handles POST /badges/:id/verify. With an empty body the stored
// credential is checked; a body credential is checked against the same id.
func (h *BadgeHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid badge ID"})
		return
	}

	var req model.VerifyBadgeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.svc.Verify(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListByActor handles GET /actors/:did/badges. The status query narrows to
// active, revoked or all.
func (h *BadgeHandler) ListByActor(c *gin.Context) {
	filter := model.BadgeStatusFilter(c.Query("status"))

	badges, err := h.svc.ListByActor(c.Request.Context(), IdentityFromCtx(c), c.Param("did"), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if badges == nil {
		badges = []*model.Badge{}
	}
	c.JSON(http.StatusOK, gin.H{"badges": badges, "count": len(badges)})
}

// UpdateRingBadge handles PUT /rings/:slug/badge. Owner only.
func (h *BadgeHandler) UpdateRingBadge(c *gin.Context) {
	var req model.UpdateRingBadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.UpdateRingBadge(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
