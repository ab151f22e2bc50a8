package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/service"
)

// ContentHandler exposes content reference submission, feeds and curation
// endpoints.
type ContentHandler struct {
	svc    *service.ContentService
	auth   *Authenticator
	logger *zap.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(svc *service.ContentService, auth *Authenticator, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the content routes on the given router group.
func (h *ContentHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/submit", h.auth.Required(), h.Submit)
	rg.POST("/curate", h.auth.Required(), h.Curate)
	rg.GET("/rings/:slug/feed", h.auth.Optional(), h.Feed)
	rg.GET("/rings/:slug/queue", h.auth.Required(), h.Queue)
	rg.GET("/my/feed", h.auth.Required(), h.MyFeed)
	rg.GET("/trending/feed", h.TrendingFeed)
}

// Submit handles POST /submit.
func (h *ContentHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.svc.Submit(c.Request.Context(), IdentityFromCtx(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// Curate handles POST /curate. Moderators accept, reject, pin, unpin and
// remove single references; authors may remove their own reference, which
// cascades across every ring carrying it.
func (h *ContentHandler) Curate(c *gin.Context) {
	var req model.CurateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Curate(c.Request.Context(), IdentityFromCtx(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Feed handles GET /rings/:slug/feed. Non-members only see ACCEPTED
// references; scope widens the feed to related rings.
func (h *ContentHandler) Feed(c *gin.Context) {
	f, ok := feedFilter(c)
	if !ok {
		return
	}

	posts, err := h.svc.Feed(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondPosts(c, posts)
}

// Queue handles GET /rings/:slug/queue. Pending references, oldest first.
func (h *ContentHandler) Queue(c *gin.Context) {
	limit, offset := parseLimitOffset(c, model.FeedDefaultLimit, model.FeedMaxLimit)

	posts, err := h.svc.Queue(c.Request.Context(), IdentityFromCtx(c), c.Param("slug"), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondPosts(c, posts)
}

// MyFeed handles GET /my/feed. Aggregates the caller's active rings.
func (h *ContentHandler) MyFeed(c *gin.Context) {
	f, ok := feedFilter(c)
	if !ok {
		return
	}

	posts, err := h.svc.MyFeed(c.Request.Context(), IdentityFromCtx(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondPosts(c, posts)
}

// TrendingFeed handles GET /trending/feed. Accepted references across
// public rings.
func (h *ContentHandler) TrendingFeed(c *gin.Context) {
	f, ok := feedFilter(c)
	if !ok {
		return
	}

	posts, err := h.svc.TrendingFeed(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondPosts(c, posts)
}

func respondPosts(c *gin.Context, posts []*model.PostRef) {
	if posts == nil {
		posts = []*model.PostRef{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// feedFilter builds a FeedFilter from query parameters. A false return means
// a 400 has already been written.
func feedFilter(c *gin.Context) (model.FeedFilter, bool) {
	f := model.FeedFilter{
		Scope:    model.FeedScope(c.Query("scope")),
		ActorDID: c.Query("actorDid"),
	}
	f.Limit, f.Offset = parseLimitOffset(c, model.FeedDefaultLimit, model.FeedMaxLimit)

	if raw := c.Query("status"); raw != "" {
		status := model.PostStatus(raw)
		f.Status = &status
	}
	if raw := c.Query("pinned"); raw != "" {
		pinned, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pinned must be true or false"})
			return f, false
		}
		f.Pinned = &pinned
	}

	var ok bool
	if f.Since, ok = queryTime(c, "since"); !ok {
		return f, false
	}
	if f.Until, ok = queryTime(c, "until"); !ok {
		return f, false
	}
	return f, true
}
