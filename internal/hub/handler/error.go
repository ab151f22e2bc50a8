package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
)

// respondError translates a service error into its HTTP response. Every
// handler funnels failures through here so the status mapping stays in one
// place. Hidden and missing resources share one indistinguishable 404.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		valErr  *model.ErrValidation
		forbErr *model.ErrForbidden
		confErr *model.ErrConflict
		dupPost *model.ErrDuplicatePost
		dupMem  *model.ErrDuplicateMembership
		rateErr *model.ErrRateLimited
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
	case errors.As(err, &forbErr):
		c.JSON(http.StatusForbidden, gin.H{"error": forbErr.Msg})
	case errors.As(err, &dupPost):
		c.JSON(http.StatusConflict, gin.H{"error": dupPost.Error(), "existing": dupPost.Existing})
	case errors.As(err, &dupMem):
		c.JSON(http.StatusConflict, gin.H{"error": dupMem.Error(), "existing": dupMem.Existing})
	case errors.As(err, &confErr):
		c.JSON(http.StatusConflict, gin.H{"error": confErr.Msg})
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "resource already exists"})
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
		resp := gin.H{"error": rateErr.Error(), "action": rateErr.Action, "tier": rateErr.Tier}
		if rateErr.Window != "" {
			resp["window"] = rateErr.Window
		}
		c.JSON(http.StatusTooManyRequests, resp)
	case errors.Is(err, badge.ErrNoSigningKey):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "badge signing is not configured on this hub"})
	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseLimitOffset reads pagination query params with bounds.
func parseLimitOffset(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
