package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// RingHandler exposes ring lifecycle and discovery endpoints.
type RingHandler struct {
	svc    *service.RingService
	auth   *Authenticator
	logger *zap.Logger
}

// NewRingHandler creates a new RingHandler.
func NewRingHandler(svc *service.RingService, auth *Authenticator, logger *zap.Logger) *RingHandler {
	return &RingHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the ring routes on the given router group.
func (h *RingHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Stats)
	rg.GET("/root", h.Root)
	rg.POST("/fork", h.auth.Required(), h.Fork)

	rings := rg.Group("/rings")
	{
		rings.GET("", h.auth.Optional(), h.List)
		rings.POST("", h.auth.Required(), h.Create)
		rings.GET("/trending", h.Trending)
		rings.GET("/check-availability/:slug", h.CheckSlug)
		rings.GET("/:slug", h.auth.Optional(), h.Get)
		rings.PUT("/:slug", h.auth.Required(), h.Update)
		rings.DELETE("/:slug", h.auth.Required(), h.Delete)
		rings.GET("/:slug/lineage", h.auth.Optional(), h.Lineage)
		rings.GET("/:slug/audit", h.auth.Required(), h.AuditLog)
	}
}

// Stats handles GET /stats. Hub-wide counters, no auth required.
func (h *RingHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Root handles GET /root. Returns the hub's root ring.
func (h *RingHandler) Root(c *gin.Context) {
	ring, err := h.svc.Root(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ring)
}

// List handles GET /rings with optional search, visibility and memberDid
// filters. Anonymous callers only see public rings.
func (h *RingHandler) List(c *gin.Context) {
	f := model.RingFilter{
		Search:     c.Query("search"),
		Visibility: model.Visibility(c.Query("visibility")),
		MemberDID:  c.Query("memberDid"),
	}
	f.Limit, f.Offset = parseLimitOffset(c, 50, 200)

	rings, err := h.svc.List(c.Request.Context(), IdentityFromCtx(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if rings == nil {
		rings = []*model.Ring{}
	}
	c.JSON(http.StatusOK, gin.H{"rings": rings, "count": len(rings)})
}

// Trending handles GET /rings/trending. The window query selects the
// activity interval (hour, day, week, month).
func (h *RingHandler) Trending(c *gin.Context) {
	window := model.TimeWindow(c.DefaultQuery("window", string(model.WindowDay)))
	limit, _ := parseLimitOffset(c, 10, 50)

	rings, err := h.svc.Trending(c.Request.Context(), window, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if rings == nil {
		rings = []*model.Ring{}
	}
	c.JSON(http.StatusOK, gin.H{"rings": rings, "window": window, "count": len(rings)})
}

// CheckSlug handles GET /rings/check-availability/:slug.
func (h *RingHandler) CheckSlug(c *gin.Context) {
	out, err := h.svc.CheckSlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Create handles POST /rings.
func (h *RingHandler) Create(c *gin.Context) {
	var req model.CreateRingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ring, err := h.svc.Create(c.Request.Context(), IdentityFromCtx(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ring)
}

// Get handles GET /rings/:slug.
func (h *RingHandler) Get(c *gin.Context) {
	ring, err := h.svc.Get(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ring)
}

// Update handles PUT /rings/:slug.
func (h *RingHandler) Update(c *gin.Context) {
	var req model.UpdateRingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ring, err := h.svc.Update(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ring)
}

// Delete handles DELETE /rings/:slug.
func (h *RingHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), IdentityFromCtx(c), c.Param("slug")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Fork handles POST /fork. Creates a child ring under an existing parent.
func (h *RingHandler) Fork(c *gin.Context) {
	var req model.ForkRingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ring, err := h.svc.Fork(c.Request.Context(), IdentityFromCtx(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ring)
}

// Lineage handles GET /rings/:slug/lineage.
func (h *RingHandler) Lineage(c *gin.Context) {
	lineage, err := h.svc.Lineage(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lineage)
}

// AuditLog handles GET /rings/:slug/audit. Entries come back newest first;
// action, actorDid, targetDid, since and until narrow the result.
func (h *RingHandler) AuditLog(c *gin.Context) {
	f := auditlog.Filter{
		Action:    c.Query("action"),
		ActorDID:  c.Query("actorDid"),
		TargetDID: c.Query("targetDid"),
	}
	f.Limit, f.Offset = parseLimitOffset(c, 50, 200)

	var ok bool
	if f.Since, ok = queryTime(c, "since"); !ok {
		return
	}
	if f.Until, ok = queryTime(c, "until"); !ok {
		return
	}

	entries, err := h.svc.AuditLog(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*auditlog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// queryTime parses an RFC 3339 query parameter. A false return means the
// value was malformed and a 400 has already been written.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an RFC 3339 timestamp"})
		return nil, false
	}
	return &t, true
}
