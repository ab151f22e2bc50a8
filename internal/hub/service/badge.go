package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/pkg/vc"
)

// BadgeService issues, verifies, revokes, and regenerates membership badges.
// Issuance requires a persistent signing key; without one every issue call
// reports badge.ErrNoSigningKey and callers degrade to an audit entry.
type BadgeService struct {
	db      hubDB
	badges  *repository.BadgeRepository
	members *repository.MembershipRepository
	rings   *repository.RingRepository
	signer  *badge.Signer // nil = issuance and verification refused
	audit   auditlog.Log
	logger  *zap.Logger
}

// NewBadgeService creates a BadgeService. signer may be nil when no
// persistent key is configured.
func NewBadgeService(db hubDB, r *Repos, signer *badge.Signer, audit auditlog.Log, logger *zap.Logger) *BadgeService {
	return &BadgeService{
		db:      db,
		badges:  r.Badges,
		members: r.Members,
		rings:   r.Rings,
		signer:  signer,
		audit:   audit,
		logger:  logger,
	}
}

// CanIssue reports whether badge issuance is possible.
func (s *BadgeService) CanIssue() bool {
	return s.signer != nil && s.signer.CanIssue()
}

// IssueForMembership signs and persists the badge for an active membership.
// A membership carries at most one badge row: re-issuing rewrites the stored
// credential in place and clears any prior revocation.
func (s *BadgeService) IssueForMembership(ctx context.Context, ring *model.Ring, m *model.Membership, roleName string) (*model.Badge, error) {
	if !s.CanIssue() {
		return nil, badge.ErrNoSigningKey
	}

	existing, err := s.badges.GetByMembership(ctx, m.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load badge: %w", err)
	}
	reissue := existing != nil
	badgeID := uuid.New()
	if reissue {
		badgeID = existing.ID
	}

	cred, err := s.signer.Issue(badge.IssueParams{
		BadgeID:         badgeID.String(),
		ActorDID:        m.ActorDID,
		ActorName:       m.ActorName,
		RingSlug:        ring.Slug,
		RingName:        ring.Name,
		RingDescription: ring.Description,
		RoleName:        roleName,
		ImageURL:        ring.BadgeImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("sign badge: %w", err)
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}

	now := time.Now().UTC()
	b := &model.Badge{ID: badgeID, MembershipID: m.ID, BadgeData: data, IssuedAt: now}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if reissue {
			if err := s.badges.WithTx(tx).UpdateData(ctx, badgeID, data, now); err != nil {
				return err
			}
		} else if err := s.badges.WithTx(tx).Create(ctx, b); err != nil {
			return err
		}
		if err := s.members.WithTx(tx).SetBadge(ctx, m.ID, badgeID); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionBadgeIssued,
			ActorDID:  m.ActorDID,
			TargetDID: m.ActorDID,
			Metadata:  map[string]any{"badgeId": badgeID.String(), "role": roleName, "reissued": reissue},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.BadgeID = &badgeID

	s.logger.Info("badge issued",
		zap.String("ring", ring.Slug),
		zap.String("actor", m.ActorDID),
		zap.String("badge_id", badgeID.String()),
	)
	return b, nil
}

// IssueNonFatal issues a badge for a freshly activated membership. Failures
// are logged and audited as badge.issue_failed; they never fail the
// enclosing join, approval, or ring creation.
func (s *BadgeService) IssueNonFatal(ctx context.Context, ring *model.Ring, m *model.Membership, roleName string) {
	if _, err := s.IssueForMembership(ctx, ring, m, roleName); err != nil {
		s.logger.Error("badge issuance failed (non-fatal)",
			zap.String("ring", ring.Slug),
			zap.String("actor", m.ActorDID),
			zap.Error(err),
		)
		if _, aerr := s.audit.Append(ctx, s.db, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionBadgeIssueFailed,
			ActorDID:  m.ActorDID,
			TargetDID: m.ActorDID,
			Metadata:  map[string]any{"error": err.Error()},
		}); aerr != nil {
			s.logger.Error("audit append failed (non-fatal)", zap.Error(aerr))
		}
	}
}

// revokeForMembership revokes the badge of a membership on the caller's
// transaction, appending a badge.revoked audit entry. A membership without a
// live badge is a no-op.
func (s *BadgeService) revokeForMembership(ctx context.Context, q repository.Querier, ring *model.Ring, m *model.Membership, actorDID, reason string, at time.Time) error {
	b, err := s.badges.WithTx(q).GetByMembership(ctx, m.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load badge: %w", err)
	}
	if b.Revoked() {
		return nil
	}
	if err := s.badges.WithTx(q).Revoke(ctx, b.ID, reason, at); err != nil {
		return fmt.Errorf("revoke badge: %w", err)
	}
	_, err = s.audit.Append(ctx, q, auditlog.Record{
		RingID:    ring.ID,
		Action:    auditlog.ActionBadgeRevoked,
		ActorDID:  actorDID,
		TargetDID: m.ActorDID,
		Metadata:  map[string]any{"badgeId": b.ID.String(), "reason": reason},
	})
	return err
}

// Get returns a badge. Badges of PRIVATE rings are hidden from everyone but
// active members and admins.
func (s *BadgeService) Get(ctx context.Context, ident *model.Identity, id uuid.UUID) (*model.Badge, error) {
	b, err := s.badges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.members.GetByID(ctx, b.MembershipID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	ring, err := s.rings.GetByID(ctx, m.RingID)
	if err != nil {
		return nil, fmt.Errorf("load ring: %w", err)
	}
	visible, err := canSeeRing(ctx, s.members, ident, ring)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

// Verify checks a stored badge, or a full credential supplied by the caller,
// against the hub's current key and revocation state.
func (s *BadgeService) Verify(ctx context.Context, id uuid.UUID, req *model.VerifyBadgeRequest) (*model.VerifyBadgeResult, error) {
	if s.signer == nil {
		return nil, badge.ErrNoSigningKey
	}

	stored, err := s.badges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Revoked() {
		return &model.VerifyBadgeResult{Valid: false, Reason: "badge has been revoked"}, nil
	}

	raw := stored.BadgeData
	if req != nil && len(req.Badge) > 0 {
		raw = req.Badge
	}
	var cred vc.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return &model.VerifyBadgeResult{Valid: false, Reason: "credential is not valid JSON"}, nil
	}
	if req != nil && len(req.Badge) > 0 {
		// A supplied credential must be the one the id addresses.
		if credID, ok := badgeIDFromCredential(cred.ID); !ok || credID != id {
			return &model.VerifyBadgeResult{Valid: false, Reason: "credential id does not match badge"}, nil
		}
	}

	switch err := s.signer.Verify(&cred); {
	case err == nil:
		return &model.VerifyBadgeResult{Valid: true}, nil
	case errors.Is(err, badge.ErrNoProof), errors.Is(err, badge.ErrInvalidProof):
		return &model.VerifyBadgeResult{Valid: false, Reason: err.Error()}, nil
	default:
		return nil, err
	}
}

// badgeIDFromCredential parses the badge uuid out of a credential id of the
// form <hubUrl>/badges/<uuid>.
func badgeIDFromCredential(credID string) (uuid.UUID, bool) {
	idx := strings.LastIndex(credID, "/")
	if idx < 0 || idx == len(credID)-1 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(credID[idx+1:])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ListByActor returns an actor's badges. Private-ring badges are filtered
// out for unauthenticated callers.
func (s *BadgeService) ListByActor(ctx context.Context, ident *model.Identity, did string, filter model.BadgeStatusFilter) ([]*model.Badge, error) {
	switch filter {
	case "":
		filter = model.BadgeFilterAll
	case model.BadgeFilterActive, model.BadgeFilterRevoked, model.BadgeFilterAll:
	default:
		return nil, &model.ErrValidation{Msg: "status must be one of active, revoked, all"}
	}
	includePrivate := ident != nil
	return s.badges.ListByActor(ctx, did, filter, includePrivate)
}

// UpdateRingBadge updates a ring's badge artwork and, when asked, rewrites
// every active member's credential to carry it. Regeneration is per badge:
// one bad row does not stop the rest.
func (s *BadgeService) UpdateRingBadge(ctx context.Context, ident *model.Identity, slug string, req *model.UpdateRingBadgeRequest) (*model.BadgeRegenerationResult, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ring.OwnerDID != ident.DID && !ident.IsAdmin {
		return nil, &model.ErrForbidden{Msg: "only the ring owner may update the badge"}
	}

	ring.BadgeImageURL = req.BadgeImageURL
	ring.BadgeImageHighResURL = req.BadgeImageHighResURL

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.rings.WithTx(tx).Update(ctx, ring); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   auditlog.ActionRingBadgeUpdated,
			ActorDID: ident.DID,
			Metadata: map[string]any{
				"badgeImageUrl":        req.BadgeImageURL,
				"updateExistingBadges": req.UpdateExistingBadges,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &model.BadgeRegenerationResult{}
	if !req.UpdateExistingBadges {
		return result, nil
	}
	if !s.CanIssue() {
		return nil, badge.ErrNoSigningKey
	}

	badges, err := s.badges.ListByRing(ctx, ring.ID)
	if err != nil {
		return nil, fmt.Errorf("list ring badges: %w", err)
	}
	for _, b := range badges {
		if err := s.regenerate(ctx, ring, b); err != nil {
			result.Failed++
			s.logger.Warn("badge regeneration failed",
				zap.String("ring", ring.Slug),
				zap.String("badge_id", b.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Updated++
	}

	s.logger.Info("ring badges regenerated",
		zap.String("ring", ring.Slug),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// regenerate re-signs one badge with the ring's current descriptors.
func (s *BadgeService) regenerate(ctx context.Context, ring *model.Ring, b *model.Badge) error {
	m, err := s.members.GetByID(ctx, b.MembershipID)
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	cred, err := s.signer.Issue(badge.IssueParams{
		BadgeID:         b.ID.String(),
		ActorDID:        m.ActorDID,
		ActorName:       m.ActorName,
		RingSlug:        ring.Slug,
		RingName:        ring.Name,
		RingDescription: ring.Description,
		RoleName:        m.RoleName,
		ImageURL:        ring.BadgeImageURL,
	})
	if err != nil {
		return fmt.Errorf("sign badge: %w", err)
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.badges.UpdateData(ctx, b.ID, data, time.Now().UTC())
}
