package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// AdminHandler exposes hub operator endpoints. Every route requires admin
// identity, either a signed request from an admin actor or an operator
// bearer token.
type AdminHandler struct {
	svc    *service.AdminService
	auth   *Authenticator
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *service.AdminService, auth *Authenticator, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	admin := rg.Group("/admin", h.auth.Admin())
	{
		admin.GET("/flagged", h.ListFlagged)
		admin.GET("/actors/:did/reputation", h.GetReputation)
		admin.POST("/actors/:did/clear-violations", h.ClearViolations)
		admin.POST("/actors/:did/cooldown", h.ApplyCooldown)
		admin.POST("/actors/:did/grant-admin", h.GrantAdmin)
		admin.POST("/actors/:did/revoke-admin", h.RevokeAdmin)
		admin.POST("/actors/:did/trust", h.Trust)
		admin.POST("/actors/:did/untrust", h.Untrust)
		admin.GET("/rings/:slug/audit/verify", h.VerifyAuditChain)
	}
}

// ListFlagged handles GET /admin/flagged.
func (h *AdminHandler) ListFlagged(c *gin.Context) {
	limit, offset := parseLimitOffset(c, 50, 200)

	flagged, err := h.svc.ListFlagged(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if flagged == nil {
		flagged = []*model.ActorReputation{}
	}
	c.JSON(http.StatusOK, gin.H{"flagged": flagged, "count": len(flagged)})
}

// GetReputation handles GET /admin/actors/:did/reputation.
func (h *AdminHandler) GetReputation(c *gin.Context) {
	rep, err := h.svc.GetReputation(c.Request.Context(), c.Param("did"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ClearViolations handles POST /admin/actors/:did/clear-violations.
func (h *AdminHandler) ClearViolations(c *gin.Context) {
	rep, err := h.svc.ClearViolations(c.Request.Context(), IdentityFromCtx(c), c.Param("did"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ApplyCooldown handles POST /admin/actors/:did/cooldown.
func (h *AdminHandler) ApplyCooldown(c *gin.Context) {
	var req model.CooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := h.svc.ApplyCooldown(c.Request.Context(), IdentityFromCtx(c), c.Param("did"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GrantAdmin handles POST /admin/actors/:did/grant-admin.
func (h *AdminHandler) GrantAdmin(c *gin.Context) {
	if err := h.svc.GrantAdmin(c.Request.Context(), IdentityFromCtx(c), c.Param("did")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

// RevokeAdmin handles POST /admin/actors/:did/revoke-admin.
func (h *AdminHandler) RevokeAdmin(c *gin.Context) {
	if err := h.svc.RevokeAdmin(c.Request.Context(), IdentityFromCtx(c), c.Param("did")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Trust handles POST /admin/actors/:did/trust. Trusted actors skip
// reputation rate checks.
func (h *AdminHandler) Trust(c *gin.Context) {
	if err := h.svc.SetTrusted(c.Request.Context(), IdentityFromCtx(c), c.Param("did"), true); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "trusted"})
}

// Untrust handles POST /admin/actors/:did/untrust.
func (h *AdminHandler) Untrust(c *gin.Context) {
	if err := h.svc.SetTrusted(c.Request.Context(), IdentityFromCtx(c), c.Param("did"), false); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "untrusted"})
}

// VerifyAuditChain handles GET /admin/rings/:slug/audit/verify. Walks the
// ring's full hash chain and reports integrity.
func (h *AdminHandler) VerifyAuditChain(c *gin.Context) {
	out, err := h.svc.VerifyAuditChain(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
