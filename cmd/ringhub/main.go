package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/internal/config"
	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/internal/health"
	"github.com/threadring/ringhub/internal/hub/handler"
	"github.com/threadring/ringhub/internal/hub/service"
	"github.com/threadring/ringhub/internal/notify"
	"github.com/threadring/ringhub/internal/profile"
	"github.com/threadring/ringhub/internal/reputation"
	"github.com/threadring/ringhub/pkg/did"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("hub exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hubDID, err := did.FromWebURL(cfg.Hub.URL)
	if err != nil {
		return fmt.Errorf("derive hub DID from %q: %w", cfg.Hub.URL, err)
	}

	// ── Database ─────────────────────────────────────────────────────────────
	db, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres")

	auditLog := auditlog.NewPostgresLog(db, logger)

	// ── Badge signing key ────────────────────────────────────────────────────
	var keys *badge.KeyManager
	switch {
	case cfg.Badge.SigningKey != "":
		keys, err = badge.FromBase64(cfg.Badge.SigningKey)
		if err != nil {
			return fmt.Errorf("load badge signing key: %w", err)
		}
		logger.Info("badge signing key loaded from config")
	case cfg.Badge.KeyDir != "":
		keys, err = badge.LoadOrCreate(cfg.Badge.KeyDir)
		if err != nil {
			return fmt.Errorf("load badge signing key: %w", err)
		}
		logger.Info("badge signing key ready", zap.String("dir", cfg.Badge.KeyDir))
	default:
		logger.Warn("no badge signing key configured, badge issuance disabled")
	}

	var signer *badge.Signer
	if keys != nil {
		signer = badge.NewSigner(keys, cfg.Hub.URL, cfg.Hub.Name)
	}

	// ── DID resolution ───────────────────────────────────────────────────────
	var docCache didresolver.DocumentCache = didresolver.NewMemoryCache(cfg.DID.CacheTTL)
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to in-memory DID cache", zap.Error(err))
			rdb = nil
		} else {
			docCache = didresolver.NewRedisCache(rdb, cfg.DID.CacheTTL, logger)
			logger.Info("redis DID cache enabled", zap.String("addr", cfg.Redis.Addr()))
		}
	}
	resolver := didresolver.NewResolver(docCache, logger)

	// ── Operator notifications ───────────────────────────────────────────────
	var sender notify.Sender
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		logger.Info("SMTP notifications configured", zap.String("host", cfg.SMTP.Host))
	} else {
		sender = notify.NewNoopSender(logger)
		logger.Info("notifications: noop (set notify.smtp_host to enable SMTP)")
	}
	notifier := notify.NewNotifier(sender, cfg.Hub.OperatorEmail, cfg.Hub.Name, logger)

	// ── Wire up layers ───────────────────────────────────────────────────────
	repos := service.NewRepos(db)

	limiter := service.NewRateLimiter(repos, reputation.NewRuleBasedScorer(), logger)
	limiter.SetNotifier(notifier)

	profileSvc := service.NewProfileService(repos, resolver, logger)
	profileSvc.SetTTL(cfg.Profile.TTL)
	profileSvc.SetRateLimiter(limiter)
	refresher := profile.NewRefresher(resolver, profileSvc, logger)
	profileSvc.SetRefresher(refresher)

	badgeSvc := service.NewBadgeService(db, repos, signer, auditLog, logger)

	ringSvc := service.NewRingService(db, repos, auditLog, cfg.Hub.RootSlug, logger)
	ringSvc.SetBadgeService(badgeSvc)
	ringSvc.SetRateLimiter(limiter)

	memberSvc := service.NewMembershipService(db, repos, auditLog, logger)
	memberSvc.SetBadgeService(badgeSvc)
	memberSvc.SetProfileService(profileSvc)
	memberSvc.SetInviteTTL(cfg.Invitation.TTL)

	contentSvc := service.NewContentService(db, repos, auditLog, logger)
	challengeSvc := service.NewChallengeService(db, repos, auditLog, logger)

	adminSvc := service.NewAdminService(db, repos, auditLog, cfg.Hub.RootSlug, logger)
	adminSvc.SetRateLimiter(limiter)

	// ── Root ring ────────────────────────────────────────────────────────────
	startCtx := context.Background()
	root, err := ringSvc.EnsureRoot(startCtx, hubDID.String(), "The Spool", "The root ring every ring on this hub descends from.")
	if err != nil {
		return fmt.Errorf("ensure root ring: %w", err)
	}
	logger.Info("root ring ready", zap.String("slug", root.Slug), zap.String("owner", root.OwnerDID))

	if err := auditLog.Verify(startCtx, root.ID); err != nil {
		logger.Warn("audit chain integrity check FAILED", zap.String("ring", root.Slug), zap.Error(err))
	} else {
		tip, _ := auditLog.Tip(startCtx, root.ID)
		logger.Info("audit chain verified", zap.String("ring", root.Slug), zap.String("tip", tip))
	}

	// ── Authentication ───────────────────────────────────────────────────────
	auth := handler.NewAuthenticator(resolver, repos.Actors, logger)
	if cfg.Security.JWTSecret != "" {
		tokens, err := handler.NewAdminTokens(cfg.Security.JWTSecret, cfg.Hub.URL)
		if err != nil {
			return fmt.Errorf("operator tokens: %w", err)
		}
		auth.SetAdminTokens(tokens)
		logger.Info("operator bearer tokens enabled")
	}
	if cfg.Security.AllowAdminSignatureBypass {
		auth.SetAdminBypass(db, repos.Rings, auditLog, cfg.Hub.RootSlug)
		logger.Warn("admin signature bypass ENABLED, do not use in production")
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	ringHandler := handler.NewRingHandler(ringSvc, auth, logger)
	membershipHandler := handler.NewMembershipHandler(memberSvc, auth, logger)
	contentHandler := handler.NewContentHandler(contentSvc, auth, logger)
	badgeHandler := handler.NewBadgeHandler(badgeSvc, auth, logger)
	challengeHandler := handler.NewChallengeHandler(challengeSvc, auth, logger)
	actorHandler := handler.NewActorHandler(profileSvc, auth, logger)
	adminHandler := handler.NewAdminHandler(adminSvc, auth, logger)
	wkHandler := handler.NewWellKnownHandler(keys, cfg.Hub.URL, cfg.Hub.Name, version, logger)

	probes := []health.Probe{health.Postgres(db)}
	if rdb != nil {
		probes = append(probes, health.Redis(rdb))
	}
	if keys != nil {
		probes = append(probes, health.ProbeFunc("signing_key", func(context.Context) error {
			_, err := keys.PublicMultibase()
			return err
		}))
	}
	healthHandler := handler.NewHealthHandler(health.New(logger, probes...))

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := cfg.Hub.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Date", "Digest", "Signature"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	if rps := cfg.Hub.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Outside the protocol prefix: probes, discovery, metrics
	healthHandler.Register(router)
	router.GET("/docs", wkHandler.ServeDocs)
	router.GET("/.well-known/did.json", wkHandler.ServeDIDDocument)
	router.GET("/metrics", handler.MetricsHandler())

	trp := router.Group("/trp")
	ringHandler.Register(trp)
	membershipHandler.Register(trp)
	contentHandler.Register(trp)
	badgeHandler.Register(trp)
	challengeHandler.Register(trp)
	actorHandler.Register(trp)
	adminHandler.Register(trp)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	// ── Background: profile refresh worker ───────────────────────────────────
	go refresher.Start(done)

	// ── Background: periodic maintenance ─────────────────────────────────────
	go func() {
		expiry := time.NewTicker(10 * time.Minute)
		defer expiry.Stop()
		prune := time.NewTicker(time.Hour)
		defer prune.Stop()
		gauges := time.NewTicker(time.Minute)
		defer gauges.Stop()

		updateGauges(ringSvc, logger)
		for {
			select {
			case <-expiry.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if n, err := memberSvc.ExpireInvitations(ctx); err != nil {
					logger.Warn("invitation expiry error", zap.Error(err))
				} else if n > 0 {
					logger.Info("invitations expired", zap.Int("count", n))
				}
				if n, err := challengeSvc.ExpireStale(ctx); err != nil {
					logger.Warn("challenge expiry error", zap.Error(err))
				} else if n > 0 {
					logger.Info("challenges expired", zap.Int("count", n))
				}
				cancel()
			case <-prune.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if n, err := limiter.PruneEvents(ctx); err != nil {
					logger.Warn("rate event prune error", zap.Error(err))
				} else if n > 0 {
					logger.Debug("rate events pruned", zap.Int("count", n))
				}
				cancel()
			case <-gauges.C:
				updateGauges(ringSvc, logger)
			case <-done:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Hub.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("hub HTTP listening",
			zap.Int("port", cfg.Hub.Port),
			zap.String("url", cfg.Hub.URL),
			zap.String("did", hubDID.String()),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down hub...")
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("hub stopped")
	return nil
}

// updateGauges refreshes the ring and actor count metrics.
func updateGauges(rings *service.RingService, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := rings.Stats(ctx)
	if err != nil {
		logger.Warn("stats gauge refresh error", zap.Error(err))
		return
	}
	handler.SetRingsGauge("public", float64(stats.Rings.Public))
	handler.SetRingsGauge("unlisted", float64(stats.Rings.Unlisted))
	handler.SetRingsGauge("private", float64(stats.Rings.Private))
	handler.SetActorsGauge(float64(stats.Actors.Total))
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
