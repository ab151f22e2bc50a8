package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
)

// AuditVerification is the chain-check verdict for a ring's audit log.
type AuditVerification struct {
	RingSlug   string    `json:"ringSlug"`
	Valid      bool      `json:"valid"`
	Error      string    `json:"error,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// AdminService owns hub-operator actions: flag review, reputation controls,
// manual cooldowns, admin and trust grants, and audit chain verification.
// Hub-level actions audit against the root ring, the only log that outlives
// every other ring.
type AdminService struct {
	db       hubDB
	actors   *repository.ActorRepository
	reps     *repository.ReputationRepository
	rings    *repository.RingRepository
	audit    auditlog.Log
	limiter  *RateLimiter // nil = reputation reads skip recomputation
	rootSlug string
	logger   *zap.Logger
}

// NewAdminService builds an AdminService.
func NewAdminService(db hubDB, r *Repos, audit auditlog.Log, rootSlug string, logger *zap.Logger) *AdminService {
	return &AdminService{
		db:       db,
		actors:   r.Actors,
		reps:     r.Reputation,
		rings:    r.Rings,
		audit:    audit,
		rootSlug: rootSlug,
		logger:   logger,
	}
}

// SetRateLimiter lets reputation reads recompute counters on demand.
func (s *AdminService) SetRateLimiter(l *RateLimiter) { s.limiter = l }

// ListFlagged lists reputations marked for operator review.
func (s *AdminService) ListFlagged(ctx context.Context, limit, offset int) ([]*model.ActorReputation, error) {
	return s.reps.ListFlagged(ctx, limit, offset)
}

// GetReputation returns an actor's reputation, freshly recomputed when the
// rate limiter is wired.
func (s *AdminService) GetReputation(ctx context.Context, actorDID string) (*model.ActorReputation, error) {
	if s.limiter != nil {
		return s.limiter.Reputation(ctx, actorDID)
	}
	return s.reps.Get(ctx, actorDID)
}

// ClearViolations resets an actor's violation count, cooldown, and review
// flag.
func (s *AdminService) ClearViolations(ctx context.Context, ident *model.Identity, actorDID string) (*model.ActorReputation, error) {
	rep, err := s.reps.Get(ctx, actorDID)
	if err != nil {
		return nil, err
	}
	rep.ViolationCount = 0
	rep.LastViolationAt = nil
	rep.CooldownUntil = nil
	rep.FlaggedForReview = false

	err = s.auditedHubAction(ctx, ident, auditlog.ActionAdminViolationsCleared, actorDID, nil, func(tx pgx.Tx) error {
		return s.reps.WithTx(tx).Upsert(ctx, rep)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("violations cleared",
		zap.String("actor", actorDID), zap.String("admin", ident.DID))
	return rep, nil
}

// ApplyCooldown places an actor in a manual cooldown of 1 to 168 hours.
func (s *AdminService) ApplyCooldown(ctx context.Context, ident *model.Identity, actorDID string, req *model.CooldownRequest) (*model.ActorReputation, error) {
	if req.Hours < 1 || req.Hours > model.MaxCooldownHours {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("hours must be between 1 and %d", model.MaxCooldownHours)}
	}

	rep, err := s.reps.Get(ctx, actorDID)
	if errors.Is(err, repository.ErrNotFound) {
		rep = &model.ActorReputation{ActorDID: actorDID, Tier: model.TierNew}
	} else if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	until := now.Add(time.Duration(req.Hours) * time.Hour)
	rep.CooldownUntil = &until
	if rep.LastCalculatedAt.IsZero() {
		rep.LastCalculatedAt = now
	}

	meta := map[string]any{"hours": req.Hours}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	err = s.auditedHubAction(ctx, ident, auditlog.ActionAdminCooldownApplied, actorDID, meta, func(tx pgx.Tx) error {
		return s.reps.WithTx(tx).Upsert(ctx, rep)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cooldown applied",
		zap.String("actor", actorDID),
		zap.Int("hours", req.Hours),
		zap.String("admin", ident.DID))
	return rep, nil
}

// GrantAdmin marks an actor as a hub admin. The actor must have been seen
// before.
func (s *AdminService) GrantAdmin(ctx context.Context, ident *model.Identity, actorDID string) error {
	err := s.auditedHubAction(ctx, ident, auditlog.ActionAdminGranted, actorDID, nil, func(tx pgx.Tx) error {
		return s.actors.WithTx(tx).SetAdmin(ctx, actorDID, true)
	})
	if err != nil {
		return err
	}
	s.logger.Info("admin granted",
		zap.String("actor", actorDID), zap.String("by", ident.DID))
	return nil
}

// RevokeAdmin removes an actor's admin flag. Callers cannot revoke their
// own.
func (s *AdminService) RevokeAdmin(ctx context.Context, ident *model.Identity, actorDID string) error {
	if ident.DID == actorDID {
		return &model.ErrValidation{Msg: "you cannot revoke your own admin"}
	}
	err := s.auditedHubAction(ctx, ident, auditlog.ActionAdminRevoked, actorDID, nil, func(tx pgx.Tx) error {
		return s.actors.WithTx(tx).SetAdmin(ctx, actorDID, false)
	})
	if err != nil {
		return err
	}
	s.logger.Info("admin revoked",
		zap.String("actor", actorDID), zap.String("by", ident.DID))
	return nil
}

// SetTrusted grants or revokes the trusted flag, which bypasses all rate
// limit caps.
func (s *AdminService) SetTrusted(ctx context.Context, ident *model.Identity, actorDID string, trusted bool) error {
	action := auditlog.ActionAdminTrustGranted
	if !trusted {
		action = auditlog.ActionAdminTrustRevoked
	}
	err := s.auditedHubAction(ctx, ident, action, actorDID, nil, func(tx pgx.Tx) error {
		return s.actors.WithTx(tx).SetTrusted(ctx, actorDID, trusted)
	})
	if err != nil {
		return err
	}
	s.logger.Info("trust flag changed",
		zap.String("actor", actorDID),
		zap.Bool("trusted", trusted),
		zap.String("by", ident.DID))
	return nil
}

// VerifyAuditChain recomputes a ring's audit hash chain and reports the
// verdict.
func (s *AdminService) VerifyAuditChain(ctx context.Context, slug string) (*AuditVerification, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := &AuditVerification{RingSlug: ring.Slug, VerifiedAt: time.Now().UTC()}
	if err := s.audit.Verify(ctx, ring.ID); err != nil {
		out.Error = err.Error()
		return out, nil
	}
	out.Valid = true
	return out, nil
}

// auditedHubAction runs fn in a transaction alongside a root-ring audit
// entry for the hub-level action.
func (s *AdminService) auditedHubAction(ctx context.Context, ident *model.Identity, action, targetDID string, meta map[string]any, fn func(tx pgx.Tx) error) error {
	root, err := s.rings.GetBySlug(ctx, s.rootSlug)
	if err != nil {
		return fmt.Errorf("resolve root ring: %w", err)
	}
	return withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    root.ID,
			Action:    action,
			ActorDID:  ident.DID,
			TargetDID: targetDID,
			Metadata:  meta,
		})
		return err
	})
}
