package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/pkg/did"
)

// MembershipService owns the join and leave lifecycle, application approval,
// role assignment, invitations, and ring blocks.
type MembershipService struct {
	db        hubDB
	rings     *repository.RingRepository
	roles     *repository.RoleRepository
	members   *repository.MembershipRepository
	invites   *repository.InvitationRepository
	blocks    *repository.BlockRepository
	actors    *repository.ActorRepository
	audit     auditlog.Log
	badges    *BadgeService   // nil = no badge issuance or revocation
	profiles  *ProfileService // nil = the profile gate on join is skipped
	inviteTTL time.Duration
	logger    *zap.Logger
}

// NewMembershipService builds a MembershipService.
func NewMembershipService(db hubDB, r *Repos, audit auditlog.Log, logger *zap.Logger) *MembershipService {
	return &MembershipService{
		db:        db,
		rings:     r.Rings,
		roles:     r.Roles,
		members:   r.Members,
		invites:   r.Invites,
		blocks:    r.Blocks,
		actors:    r.Actors,
		audit:     audit,
		inviteTTL: model.DefaultInvitationTTL,
		logger:    logger,
	}
}

// SetBadgeService enables badge issuance and revocation on membership
// transitions.
func (s *MembershipService) SetBadgeService(b *BadgeService) { s.badges = b }

// SetProfileService enables the profile gate: joins require the actor's DID
// document to expose a profile service.
func (s *MembershipService) SetProfileService(p *ProfileService) { s.profiles = p }

// SetInviteTTL overrides the default invitation lifetime.
func (s *MembershipService) SetInviteTTL(d time.Duration) {
	if d > 0 {
		s.inviteTTL = d
	}
}

// Join adds the caller to a ring under its join policy. A revoked membership
// row is revived in place, keeping its history. Duplicate joins come back as
// *model.ErrDuplicateMembership with the existing row embedded.
func (s *MembershipService) Join(ctx context.Context, ident *model.Identity, req *model.JoinRequest) (*model.JoinResult, error) {
	ring, err := s.rings.GetBySlug(ctx, req.RingSlug)
	if err != nil {
		return nil, err
	}

	blocked, err := s.blocks.IsBlocked(ctx, ring.ID, ident.DID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, &model.ErrForbidden{Msg: "you are blocked from this ring"}
	}

	existing, err := s.members.GetByRingAndActor(ctx, ring.ID, ident.DID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case model.MembershipActive, model.MembershipPending:
			return nil, &model.ErrDuplicateMembership{Existing: existing}
		case model.MembershipSuspended:
			return nil, &model.ErrForbidden{Msg: "your membership in this ring is suspended"}
		}
	}

	actor, err := s.resolveJoiner(ctx, ident)
	if err != nil {
		return nil, err
	}

	role, err := s.joinRole(ctx, ring.ID)
	if err != nil {
		return nil, err
	}
	roleName := ""
	var roleID *uuid.UUID
	if role != nil {
		roleName = role.Name
		roleID = &role.ID
	}

	now := time.Now().UTC()
	status := model.MembershipActive
	joinedAt := &now
	var invitation *model.Invitation

	switch ring.JoinPolicy {
	case model.JoinPolicyOpen:
	case model.JoinPolicyApplication:
		status = model.MembershipPending
		joinedAt = nil
	case model.JoinPolicyInvitation:
		inv, err := s.invites.GetPending(ctx, ring.ID, ident.DID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &model.ErrForbidden{Msg: "an invitation is required to join this ring"}
		}
		if err != nil {
			return nil, err
		}
		if !inv.Redeemable(now) {
			return nil, &model.ErrForbidden{Msg: "your invitation has expired"}
		}
		invitation = inv
	case model.JoinPolicyClosed:
		return nil, &model.ErrForbidden{Msg: "this ring is not accepting new members"}
	default:
		return nil, fmt.Errorf("unknown join policy %q", ring.JoinPolicy)
	}

	var m *model.Membership
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		members := s.members.WithTx(tx)
		if existing != nil {
			existing.RoleID = roleID
			existing.Status = status
			existing.JoinedAt = joinedAt
			existing.LeftAt = nil
			existing.LeaveReason = ""
			existing.ApplicationMessage = req.ApplicationMessage
			if err := members.Update(ctx, existing); err != nil {
				return fmt.Errorf("revive membership: %w", err)
			}
			m = existing
		} else {
			m = &model.Membership{
				RingID:             ring.ID,
				ActorDID:           ident.DID,
				RoleID:             roleID,
				Status:             status,
				JoinedAt:           joinedAt,
				ApplicationMessage: req.ApplicationMessage,
			}
			copyProfile(m, actor)
			if err := members.Create(ctx, m); err != nil {
				return err
			}
		}
		m.RoleName = roleName

		if invitation != nil {
			if err := s.invites.WithTx(tx).SetStatus(ctx, invitation.ID, model.InvitationAccepted, now); err != nil {
				return fmt.Errorf("accept invitation: %w", err)
			}
		}

		action := auditlog.ActionMemberJoined
		if status == model.MembershipPending {
			action = auditlog.ActionMemberApplied
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   action,
			ActorDID: ident.DID,
			Metadata: map[string]any{"role": roleName, "policy": string(ring.JoinPolicy)},
		})
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a concurrent join race
		if raced, gerr := s.members.GetByRingAndActor(ctx, ring.ID, ident.DID); gerr == nil {
			return nil, &model.ErrDuplicateMembership{Existing: raced}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if m.Status == model.MembershipActive && s.badges != nil {
		s.badges.IssueNonFatal(ctx, ring, m, roleName)
	}
	s.logger.Info("membership created",
		zap.String("ring", ring.Slug),
		zap.String("actor", ident.DID),
		zap.String("status", string(m.Status)))

	return &model.JoinResult{
		Membership:       m,
		Ring:             ring,
		RequiresApproval: m.Status == model.MembershipPending,
	}, nil
}

// resolveJoiner enforces the profile gate when a profile service is wired:
// joining requires the actor's DID document to expose a profile URL.
func (s *MembershipService) resolveJoiner(ctx context.Context, ident *model.Identity) (*model.Actor, error) {
	if s.profiles == nil {
		actor, err := s.actors.GetByDID(ctx, ident.DID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return actor, err
	}
	actor, err := s.profiles.EnsureProfile(ctx, ident.DID)
	if err != nil {
		return nil, err
	}
	if actor == nil || actor.ProfileURL == "" {
		return nil, &model.ErrValidation{Msg: "your DID document must expose a profile service before joining rings"}
	}
	return actor, nil
}

// joinRole picks the role a joiner receives: member when present, otherwise
// the first non-owner role, otherwise none.
func (s *MembershipService) joinRole(ctx context.Context, ringID uuid.UUID) (*model.RingRole, error) {
	role, err := s.roles.GetByName(ctx, ringID, model.RoleMember)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	all, err := s.roles.ListByRing(ctx, ringID)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.Name != model.RoleOwner {
			return r, nil
		}
	}
	return nil, nil
}

// Leave removes the caller from a ring. The owner cannot leave while other
// active members remain.
func (s *MembershipService) Leave(ctx context.Context, ident *model.Identity, req *model.LeaveRequest) error {
	ring, err := s.rings.GetBySlug(ctx, req.RingSlug)
	if err != nil {
		return err
	}
	m, err := s.members.GetByRingAndActor(ctx, ring.ID, ident.DID)
	if err != nil {
		return err
	}
	if m.Status != model.MembershipActive && m.Status != model.MembershipPending {
		return repository.ErrNotFound
	}
	if ring.OwnerDID == ident.DID {
		n, err := s.members.CountActive(ctx, ring.ID)
		if err != nil {
			return err
		}
		if n > 1 {
			return &model.ErrValidation{Msg: "transfer ownership required before leaving"}
		}
	}

	now := time.Now().UTC()
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		m.Status = model.MembershipRevoked
		m.LeftAt = &now
		m.LeaveReason = req.Reason
		if err := s.members.WithTx(tx).Update(ctx, m); err != nil {
			return fmt.Errorf("revoke membership: %w", err)
		}
		if s.badges != nil {
			if err := s.badges.revokeForMembership(ctx, tx, ring, m, ident.DID, "member left the ring", now); err != nil {
				return err
			}
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   auditlog.ActionMemberLeft,
			ActorDID: ident.DID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("membership left", zap.String("ring", ring.Slug), zap.String("actor", ident.DID))
	return nil
}

// Approve flips a PENDING application to ACTIVE and issues the badge.
func (s *MembershipService) Approve(ctx context.Context, ident *model.Identity, slug, targetDID string) (*model.Membership, error) {
	ring, target, err := s.pendingApplication(ctx, ident, slug, targetDID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		target.Status = model.MembershipActive
		target.JoinedAt = &now
		if err := s.members.WithTx(tx).Update(ctx, target); err != nil {
			return fmt.Errorf("approve membership: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionMemberApproved,
			ActorDID:  ident.DID,
			TargetDID: targetDID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.badges != nil {
		s.badges.IssueNonFatal(ctx, ring, target, target.RoleName)
	}
	s.logger.Info("application approved",
		zap.String("ring", ring.Slug), zap.String("actor", targetDID))
	return target, nil
}

// Decline rejects a PENDING application; the row is kept as REVOKED.
func (s *MembershipService) Decline(ctx context.Context, ident *model.Identity, slug, targetDID string) error {
	ring, target, err := s.pendingApplication(ctx, ident, slug, targetDID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		target.Status = model.MembershipRevoked
		target.LeftAt = &now
		target.LeaveReason = "application declined"
		if err := s.members.WithTx(tx).Update(ctx, target); err != nil {
			return fmt.Errorf("decline membership: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionMemberDeclined,
			ActorDID:  ident.DID,
			TargetDID: targetDID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("application declined",
		zap.String("ring", ring.Slug), zap.String("actor", targetDID))
	return nil
}

func (s *MembershipService) pendingApplication(ctx context.Context, ident *model.Identity, slug, targetDID string) (*model.Ring, *model.Membership, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
		return nil, nil, err
	}
	target, err := s.members.GetByRingAndActor(ctx, ring.ID, targetDID)
	if err != nil {
		return nil, nil, err
	}
	if target.Status != model.MembershipPending {
		return nil, nil, &model.ErrValidation{Msg: "membership is not pending approval"}
	}
	return ring, target, nil
}

// UpdateRole assigns a different role to an active member. Ownership does
// not move this way: the owner keeps owner, and nobody else gets it.
func (s *MembershipService) UpdateRole(ctx context.Context, ident *model.Identity, slug, targetDID string, req *model.RoleUpdateRequest) (*model.Membership, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
		return nil, err
	}

	target, err := s.members.GetByRingAndActor(ctx, ring.ID, targetDID)
	if err != nil {
		return nil, err
	}
	if target.Status != model.MembershipActive {
		return nil, repository.ErrNotFound
	}

	role, err := s.roles.GetByName(ctx, ring.ID, req.Role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("role %q does not exist in this ring", req.Role)}
	}
	if err != nil {
		return nil, err
	}
	if target.ActorDID == ring.OwnerDID && role.Name != model.RoleOwner {
		return nil, &model.ErrValidation{Msg: "the owner's role cannot be changed"}
	}
	if role.Name == model.RoleOwner && target.ActorDID != ring.OwnerDID {
		return nil, &model.ErrValidation{Msg: "ownership transfer is not supported"}
	}

	previous := target.RoleName
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		target.RoleID = &role.ID
		if err := s.members.WithTx(tx).Update(ctx, target); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionMemberRoleUpdated,
			ActorDID:  ident.DID,
			TargetDID: targetDID,
			Metadata:  map[string]any{"from": previous, "to": role.Name},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	target.RoleName = role.Name

	// the badge names the role, so a role change re-issues it in place
	if s.badges != nil {
		s.badges.IssueNonFatal(ctx, ring, target, role.Name)
	}
	s.logger.Info("member role updated",
		zap.String("ring", ring.Slug),
		zap.String("actor", targetDID),
		zap.String("role", role.Name))
	return target, nil
}

// Remove revokes a member's membership. Only the ring owner may do this, and
// not to themselves.
func (s *MembershipService) Remove(ctx context.Context, ident *model.Identity, slug, targetDID string) error {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if ring.OwnerDID != ident.DID {
		return &model.ErrForbidden{Msg: "only the ring owner may remove members"}
	}
	target, err := s.members.GetByRingAndActor(ctx, ring.ID, targetDID)
	if err != nil {
		return err
	}
	if target.ActorDID == ring.OwnerDID {
		return &model.ErrValidation{Msg: "the owner cannot be removed"}
	}
	if target.Status == model.MembershipRevoked {
		return repository.ErrNotFound
	}

	now := time.Now().UTC()
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		target.Status = model.MembershipRevoked
		target.LeftAt = &now
		target.LeaveReason = "removed by owner"
		if err := s.members.WithTx(tx).Update(ctx, target); err != nil {
			return fmt.Errorf("remove membership: %w", err)
		}
		if s.badges != nil {
			if err := s.badges.revokeForMembership(ctx, tx, ring, target, ident.DID, "membership removed", now); err != nil {
				return err
			}
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionMemberRemoved,
			ActorDID:  ident.DID,
			TargetDID: targetDID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed",
		zap.String("ring", ring.Slug), zap.String("actor", targetDID))
	return nil
}

// Invite extends an invitation to an actor. The caller needs an ACTIVE
// owner or moderator membership; hub admins may invite anywhere.
func (s *MembershipService) Invite(ctx context.Context, ident *model.Identity, slug string, req *model.InviteRequest) (*model.Invitation, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := s.requireInviter(ctx, ident, ring); err != nil {
		return nil, err
	}
	if _, err := did.Parse(req.InviteeDID); err != nil {
		return nil, &model.ErrValidation{Msg: "inviteeDid must be a valid DID"}
	}

	existing, err := s.members.GetByRingAndActor(ctx, ring.ID, req.InviteeDID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil && (existing.Status == model.MembershipActive || existing.Status == model.MembershipPending) {
		return nil, &model.ErrDuplicateMembership{Existing: existing}
	}

	now := time.Now().UTC()
	if prior, err := s.invites.GetPending(ctx, ring.ID, req.InviteeDID); err == nil {
		if prior.Redeemable(now) {
			return nil, &model.ErrConflict{Msg: "an invitation for this actor is already pending"}
		}
		// a stale pending row would trip the uniqueness index
		if err := s.invites.SetStatus(ctx, prior.ID, model.InvitationExpired, now); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	inv := &model.Invitation{
		RingID:     ring.ID,
		InviteeDID: req.InviteeDID,
		InviterDID: ident.DID,
		Status:     model.InvitationPending,
		ExpiresAt:  now.Add(s.inviteTTL),
		Message:    req.Message,
	}
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.invites.WithTx(tx).Create(ctx, inv); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &model.ErrConflict{Msg: "an invitation for this actor is already pending"}
			}
			return fmt.Errorf("create invitation: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionMemberInvited,
			ActorDID:  ident.DID,
			TargetDID: req.InviteeDID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation created",
		zap.String("ring", ring.Slug),
		zap.String("invitee", req.InviteeDID),
		zap.String("inviter", ident.DID))
	return inv, nil
}

func (s *MembershipService) requireInviter(ctx context.Context, ident *model.Identity, ring *model.Ring) error {
	if ident.IsAdmin {
		return nil
	}
	m, err := activeMembership(ctx, s.members, ring.ID, ident.DID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.ErrForbidden{Msg: "active membership required"}
	}
	if err != nil {
		return err
	}
	if m.RoleName != model.RoleOwner && m.RoleName != model.RoleModerator {
		return &model.ErrForbidden{Msg: "only owners and moderators may invite"}
	}
	return nil
}

// MyInvitations lists invitations addressed to the caller.
func (s *MembershipService) MyInvitations(ctx context.Context, ident *model.Identity, status model.InvitationStatus) ([]*model.Invitation, error) {
	switch status {
	case "", model.InvitationPending, model.InvitationAccepted, model.InvitationRejected, model.InvitationExpired:
	default:
		return nil, &model.ErrValidation{Msg: "status must be one of pending, accepted, rejected, expired"}
	}
	return s.invites.ListByInvitee(ctx, ident.DID, status)
}

// ExpireInvitations marks overdue PENDING invitations EXPIRED. Run it
// periodically.
func (s *MembershipService) ExpireInvitations(ctx context.Context) (int, error) {
	return s.invites.ExpireStale(ctx, time.Now().UTC())
}

// ListMembers lists a ring's memberships. Statuses other than ACTIVE are
// visible only with manage_members.
func (s *MembershipService) ListMembers(ctx context.Context, ident *model.Identity, slug string, status model.MembershipStatus, limit, offset int) ([]*model.Membership, error) {
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

	if status == "" {
		status = model.MembershipActive
	}
	switch status {
	case model.MembershipActive, model.MembershipPending, model.MembershipSuspended, model.MembershipRevoked:
	default:
		return nil, &model.ErrValidation{Msg: "status must be one of ACTIVE, PENDING, SUSPENDED, REVOKED"}
	}
	if status != model.MembershipActive {
		if ident == nil {
			return nil, &model.ErrForbidden{Msg: "active membership required"}
		}
		if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
			return nil, err
		}
	}
	return s.members.ListByRing(ctx, ring.ID, status, limit, offset)
}

// Info is the public membership summary of a non-PRIVATE ring.
func (s *MembershipService) Info(ctx context.Context, slug string) (*model.MembershipInfo, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ring.Visibility == model.VisibilityPrivate {
		return nil, repository.ErrNotFound
	}

	count, err := s.members.CountActive(ctx, ring.ID)
	if err != nil {
		return nil, err
	}
	mods, err := s.members.ListByRole(ctx, ring.ID, model.RoleModerator)
	if err != nil {
		return nil, err
	}
	moderators := make([]string, 0, len(mods))
	for _, m := range mods {
		moderators = append(moderators, m.ActorDID)
	}

	return &model.MembershipInfo{
		RingSlug:    ring.Slug,
		MemberCount: count,
		OwnerDID:    ring.OwnerDID,
		Moderators:  moderators,
	}, nil
}

// MyMemberships lists the caller's memberships with ring summaries.
func (s *MembershipService) MyMemberships(ctx context.Context, ident *model.Identity, status model.MembershipStatus) ([]*model.MembershipWithRing, error) {
	switch status {
	case "", model.MembershipActive, model.MembershipPending, model.MembershipSuspended, model.MembershipRevoked:
	default:
		return nil, &model.ErrValidation{Msg: "status must be one of ACTIVE, PENDING, SUSPENDED, REVOKED"}
	}
	return s.members.ListByActor(ctx, ident.DID, status)
}

// ListBlocks lists a ring's blocks. Requires manage_members.
func (s *MembershipService) ListBlocks(ctx context.Context, ident *model.Identity, slug string) ([]*model.Block, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
		return nil, err
	}
	return s.blocks.ListByRing(ctx, ring.ID)
}

// CreateBlock bars a DID or instance domain from a ring.
func (s *MembershipService) CreateBlock(ctx context.Context, ident *model.Identity, slug string, req *model.CreateBlockRequest) (*model.Block, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
		return nil, err
	}

	if req.TargetType == "" {
		req.TargetType = model.BlockTargetUser
	}
	switch req.TargetType {
	case model.BlockTargetUser, model.BlockTargetActor, model.BlockTargetInstance:
	default:
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid block target type %q", req.TargetType)}
	}
	if req.TargetDID == "" {
		return nil, &model.ErrValidation{Msg: "targetDid is required"}
	}

	b := &model.Block{
		RingID:     ring.ID,
		TargetDID:  req.TargetDID,
		TargetType: req.TargetType,
		Reason:     req.Reason,
		BlockedBy:  ident.DID,
	}
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.blocks.WithTx(tx).Create(ctx, b); err != nil {
			return fmt.Errorf("create block: %w", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionBlockCreated,
			ActorDID:  ident.DID,
			TargetDID: req.TargetDID,
			Metadata:  map[string]any{"type": string(req.TargetType)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("block created",
		zap.String("ring", ring.Slug),
		zap.String("target", req.TargetDID),
		zap.String("type", string(req.TargetType)))
	return b, nil
}

// DeleteBlock lifts a block.
func (s *MembershipService) DeleteBlock(ctx context.Context, ident *model.Identity, slug string, id uuid.UUID) error {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageMembers); err != nil {
		return err
	}
	b, err := s.blocks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if b.RingID != ring.ID {
		return repository.ErrNotFound
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.blocks.WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionBlockRemoved,
			ActorDID:  ident.DID,
			TargetDID: b.TargetDID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("block removed",
		zap.String("ring", ring.Slug), zap.String("target", b.TargetDID))
	return nil
}
