package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// ChallengeHandler exposes ring challenge endpoints.
type ChallengeHandler struct {
	svc    *service.ChallengeService
	auth   *Authenticator
	logger *zap.Logger
}

// NewChallengeHandler creates a new ChallengeHandler.
func NewChallengeHandler(svc *service.ChallengeService, auth *Authenticator, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the challenge routes on the given router group.
func (h *ChallengeHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/rings/:slug/challenges")
	{
		ch.GET("", h.auth.Optional(), h.List)
		ch.POST("", h.auth.Required(), h.Create)
		ch.POST("/:id/deactivate", h.auth.Required(), h.Deactivate)
	}
}

// List handles GET /rings/:slug/challenges. activeOnly=true narrows to
// currently running challenges.
func (h *ChallengeHandler) List(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("activeOnly", "false"))

	challenges, err := h.svc.List(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), activeOnly)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if challenges == nil {
		challenges = []*model.Challenge{}
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges, "count": len(challenges)})
}

// Create handles POST /rings/:slug/challenges.
func (h *ChallengeHandler) Create(c *gin.Context) {
	var req model.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := h.svc.Create(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, challenge)
}

// Deactivate handles POST /rings/:slug/challenges/:id/deactivate.
func (h *ChallengeHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge ID"})
		return
	}

	challenge, err := h.svc.Deactivate(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}
