package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/service"
)

// ActorHandler exposes actor-facing profile endpoints.
type ActorHandler struct {
	svc    *service.ProfileService
	auth   *Authenticator
	logger *zap.Logger
}

// NewActorHandler creates a new ActorHandler.
func NewActorHandler(svc *service.ProfileService, auth *Authenticator, logger *zap.Logger) *ActorHandler {
	return &ActorHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the actor routes on the given router group.
func (h *ActorHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/actors/:did/profile-updated", h.auth.Required(), h.ProfileUpdated)
}

// ProfileUpdated handles POST /actors/:did/profile-updated. The refresh runs
// out of band, so the response is 202 regardless of whether the DID document
// turns out to be resolvable.
func (h *ActorHandler) ProfileUpdated(c *gin.Context) {
	queued, err := h.svc.NotifyUpdated(c.Request.Context(), IdentityFromCtx(c), c.Param("did"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "queued": queued})
}
