package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
)

// ChallengeService manages ring challenges: themed prompts that ring
// managers open for members to post around.
type ChallengeService struct {
	db         hubDB
	rings      *repository.RingRepository
	roles      *repository.RoleRepository
	members    *repository.MembershipRepository
	challenges *repository.ChallengeRepository
	audit      auditlog.Log
	logger     *zap.Logger
}

// NewChallengeService builds a ChallengeService.
func NewChallengeService(db hubDB, r *Repos, audit auditlog.Log, logger *zap.Logger) *ChallengeService {
	return &ChallengeService{
		db:         db,
		rings:      r.Rings,
		roles:      r.Roles,
		members:    r.Members,
		challenges: r.Challenges,
		audit:      audit,
		logger:     logger,
	}
}

// Create opens a challenge on the ring. Requires the manage_ring
// permission.
func (s *ChallengeService) Create(ctx context.Context, ident *model.Identity, slug string, req *model.CreateChallengeRequest) (*model.Challenge, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageRing); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	prompt := strings.TrimSpace(req.Prompt)
	if title == "" {
		return nil, &model.ErrValidation{Msg: "title is required"}
	}
	if prompt == "" {
		return nil, &model.ErrValidation{Msg: "prompt is required"}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now().UTC()) {
		return nil, &model.ErrValidation{Msg: "expiresAt must be in the future"}
	}

	ch := &model.Challenge{
		RingID:    ring.ID,
		Title:     title,
		Prompt:    prompt,
		CreatedBy: ident.DID,
		ExpiresAt: req.ExpiresAt,
		Active:    true,
		Metadata:  req.Metadata,
	}
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.challenges.WithTx(tx).Create(ctx, ch); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   auditlog.ActionChallengeCreated,
			ActorDID: ident.DID,
			Metadata: map[string]any{"title": ch.Title},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("challenge created",
		zap.String("ring", ring.Slug),
		zap.String("title", ch.Title),
		zap.String("by", ident.DID))
	return ch, nil
}

// List returns the ring's challenges, newest first. activeOnly narrows to
// open ones.
func (s *ChallengeService) List(ctx context.Context, ident *model.Identity, slug string, activeOnly bool) ([]*model.Challenge, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	visible, err := canSeeRing(ctx, s.members, ident, ring)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, repository.ErrNotFound
	}
	return s.challenges.ListByRing(ctx, ring.ID, activeOnly)
}

// Deactivate closes a challenge early. Requires the manage_ring
// permission.
func (s *ChallengeService) Deactivate(ctx context.Context, ident *model.Identity, slug string, id uuid.UUID) (*model.Challenge, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageRing); err != nil {
		return nil, err
	}

	ch, err := s.challenges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.RingID != ring.ID {
		return nil, repository.ErrNotFound
	}
	if !ch.Active {
		return nil, &model.ErrValidation{Msg: "challenge is not active"}
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.challenges.WithTx(tx).SetActive(ctx, id, false); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   auditlog.ActionChallengeDeactivated,
			ActorDID: ident.DID,
			Metadata: map[string]any{"title": ch.Title},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	ch.Active = false

	s.logger.Info("challenge deactivated",
		zap.String("ring", ring.Slug),
		zap.String("title", ch.Title),
		zap.String("by", ident.DID))
	return ch, nil
}

// ExpireStale deactivates challenges past their deadline. Run periodically.
func (s *ChallengeService) ExpireStale(ctx context.Context) (int, error) {
	return s.challenges.DeactivateExpired(ctx, time.Now().UTC())
}
