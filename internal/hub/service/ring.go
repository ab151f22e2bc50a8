package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/auditlog"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
)

// maxSlugAttempts bounds the numeric-suffix probe when deriving a slug from
// a ring name.
const maxSlugAttempts = 50

// Ranker orders trending results. The default is the store's recency order.
type Ranker interface {
	Rank(rings []*model.Ring) []*model.Ring
}

// RingService owns ring lifecycle, genealogy, discovery, and stats.
type RingService struct {
	db       hubDB
	rings    *repository.RingRepository
	roles    *repository.RoleRepository
	members  *repository.MembershipRepository
	actors   *repository.ActorRepository
	audit    auditlog.Log
	badges   *BadgeService // nil = no badge issuance
	limiter  *RateLimiter  // nil = forks are not rate limited
	ranker   Ranker        // nil = recency order
	rootSlug string
	logger   *zap.Logger
}

// NewRingService builds a RingService. rootSlug names the ring every
// parentless fork hangs under; it can never be deleted or reparented.
func NewRingService(db hubDB, r *Repos, audit auditlog.Log, rootSlug string, logger *zap.Logger) *RingService {
	return &RingService{
		db:       db,
		rings:    r.Rings,
		roles:    r.Roles,
		members:  r.Members,
		actors:   r.Actors,
		audit:    audit,
		rootSlug: rootSlug,
		logger:   logger,
	}
}

// SetBadgeService enables owner badge issuance on ring creation.
func (s *RingService) SetBadgeService(b *BadgeService) { s.badges = b }

// SetRateLimiter enables quota enforcement on forks.
func (s *RingService) SetRateLimiter(l *RateLimiter) { s.limiter = l }

// SetRanker overrides the trending order.
func (s *RingService) SetRanker(r Ranker) { s.ranker = r }

// Create makes a new top-level ring owned by the caller. The ring row, its
// three reserved roles, the owner's ACTIVE membership, and the audit entry
// commit together; the owner badge is issued afterwards and is non-fatal.
func (s *RingService) Create(ctx context.Context, ident *model.Identity, req *model.CreateRingRequest) (*model.Ring, error) {
	return s.create(ctx, ident, req, nil)
}

// Fork creates a ring as a child of an existing one. An empty parentSlug
// forks off the root ring.
func (s *RingService) Fork(ctx context.Context, ident *model.Identity, req *model.ForkRingRequest) (*model.Ring, error) {
	if s.limiter != nil {
		if err := s.limiter.Precheck(ctx, ident, model.ActionForkRing); err != nil {
			return nil, err
		}
	}

	parentSlug := req.ParentSlug
	if parentSlug == "" {
		parentSlug = s.rootSlug
	}
	parent, err := s.rings.GetBySlug(ctx, parentSlug)
	if err != nil {
		return nil, err
	}
	visible, err := canSeeRing(ctx, s.members, ident, parent)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, repository.ErrNotFound
	}

	ring, err := s.create(ctx, ident, &req.CreateRingRequest, parent)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		s.limiter.Record(ctx, ident.DID, model.ActionForkRing, model.Meta{"ring": ring.Slug})
	}
	return ring, nil
}

func (s *RingService) create(ctx context.Context, ident *model.Identity, req *model.CreateRingRequest, parent *model.Ring) (*model.Ring, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &model.ErrValidation{Msg: "name is required"}
	}
	if err := applyPolicyDefaults(req); err != nil {
		return nil, err
	}
	slug, err := s.resolveSlug(ctx, req, name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ring := &model.Ring{
		Slug:                 slug,
		Name:                 name,
		Description:          req.Description,
		ShortCode:            req.ShortCode,
		Visibility:           req.Visibility,
		JoinPolicy:           req.JoinPolicy,
		PostPolicy:           req.PostPolicy,
		OwnerDID:             ident.DID,
		CuratorNote:          req.CuratorNote,
		BannerURL:            req.BannerURL,
		ThemeColor:           req.ThemeColor,
		BadgeImageURL:        req.BadgeImageURL,
		BadgeImageHighResURL: req.BadgeImageHighResURL,
		Metadata:             req.Metadata,
		Policies:             req.Policies,
	}
	if parent != nil {
		ring.ParentID = &parent.ID
		if ring.Metadata == nil {
			ring.Metadata = model.Meta{}
		}
		ring.Metadata["forkedFrom"] = parent.Slug
		ring.Metadata["forkedAt"] = now.Format(time.RFC3339)
	}

	actor, err := s.actors.GetByDID(ctx, ident.DID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	var owner *model.Membership
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.rings.WithTx(tx).Create(ctx, ring); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &model.ErrConflict{Msg: fmt.Sprintf("slug %q is already in use", ring.Slug)}
			}
			return fmt.Errorf("create ring: %w", err)
		}
		roles, err := s.roles.WithTx(tx).CreateDefaults(ctx, ring.ID)
		if err != nil {
			return fmt.Errorf("create default roles: %w", err)
		}
		ownerRole := roles[model.RoleOwner]

		m := &model.Membership{
			RingID:   ring.ID,
			ActorDID: ident.DID,
			RoleID:   &ownerRole.ID,
			Status:   model.MembershipActive,
			JoinedAt: &now,
		}
		copyProfile(m, actor)
		if err := s.members.WithTx(tx).Create(ctx, m); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		m.RoleName = model.RoleOwner
		owner = m

		action := auditlog.ActionRingCreated
		meta := map[string]any{"slug": ring.Slug, "name": ring.Name}
		if parent != nil {
			action = auditlog.ActionRingForked
			meta["parent"] = parent.Slug
		}
		_, err = s.audit.Append(ctx, tx, auditlog.Record{
			RingID:   ring.ID,
			Action:   action,
			ActorDID: ident.DID,
			Metadata: meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.badges != nil {
		s.badges.IssueNonFatal(ctx, ring, owner, model.RoleOwner)
	}
	s.logger.Info("ring created",
		zap.String("slug", ring.Slug),
		zap.String("owner", ident.DID),
		zap.Bool("fork", parent != nil))

	ring.MemberCount = 1
	return ring, nil
}

// resolveSlug validates a supplied slug or derives one from the ring name,
// probing numeric suffixes until a free slug turns up.
func (s *RingService) resolveSlug(ctx context.Context, req *model.CreateRingRequest, name string) (string, error) {
	if req.Slug != "" {
		if !model.IsValidSlug(req.Slug) {
			return "", &model.ErrValidation{Msg: "slug must be 3-25 characters of lowercase letters, digits, and hyphens"}
		}
		taken, err := s.rings.SlugExists(ctx, req.Slug)
		if err != nil {
			return "", err
		}
		if taken {
			return "", &model.ErrValidation{Msg: fmt.Sprintf("slug %q is already in use", req.Slug)}
		}
		return req.Slug, nil
	}

	base := model.SlugBase(name)
	slug := base
	for n := 2; ; n++ {
		taken, err := s.rings.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		if n > maxSlugAttempts {
			return "", fmt.Errorf("no available slug for %q", name)
		}
		slug = model.SlugWithSuffix(base, n)
	}
}

func applyPolicyDefaults(req *model.CreateRingRequest) error {
	if req.Visibility == "" {
		req.Visibility = model.VisibilityPublic
	}
	if req.JoinPolicy == "" {
		req.JoinPolicy = model.JoinPolicyOpen
	}
	if req.PostPolicy == "" {
		req.PostPolicy = model.PostPolicyOpen
	}
	if !model.ValidVisibility(req.Visibility) {
		return &model.ErrValidation{Msg: fmt.Sprintf("invalid visibility %q", req.Visibility)}
	}
	if !model.ValidJoinPolicy(req.JoinPolicy) {
		return &model.ErrValidation{Msg: fmt.Sprintf("invalid join policy %q", req.JoinPolicy)}
	}
	if !model.ValidPostPolicy(req.PostPolicy) {
		return &model.ErrValidation{Msg: fmt.Sprintf("invalid post policy %q", req.PostPolicy)}
	}
	return nil
}

// Get loads a ring by slug, falling back to short code for vanity URLs.
// PRIVATE rings read as missing to anyone but active members and admins.
func (s *RingService) Get(ctx context.Context, ident *model.Identity, slug string) (*model.Ring, error) {
	ring, err := s.resolve(ctx, slug)
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
	if err := s.rings.Counts(ctx, ring); err != nil {
		return nil, err
	}
	return ring, nil
}

func (s *RingService) resolve(ctx context.Context, slug string) (*model.Ring, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return s.rings.GetByShortCode(ctx, slug)
	}
	return ring, err
}

// Update applies descriptor changes to a ring. Parent reassignment is
// restricted to the owner and admins, never touches the root ring, and
// rejects any move that would put the ring above itself.
func (s *RingService) Update(ctx context.Context, ident *model.Identity, slug string, req *model.UpdateRingRequest) (*model.Ring, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermManageRing); err != nil {
		return nil, err
	}

	var changed []string
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, &model.ErrValidation{Msg: "name cannot be empty"}
		}
		ring.Name = name
		changed = append(changed, "name")
	}
	if req.Description != nil {
		ring.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.ShortCode != nil {
		ring.ShortCode = *req.ShortCode
		changed = append(changed, "shortCode")
	}
	if req.Visibility != nil {
		if !model.ValidVisibility(*req.Visibility) {
			return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid visibility %q", *req.Visibility)}
		}
		ring.Visibility = *req.Visibility
		changed = append(changed, "visibility")
	}
	if req.JoinPolicy != nil {
		if !model.ValidJoinPolicy(*req.JoinPolicy) {
			return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid join policy %q", *req.JoinPolicy)}
		}
		ring.JoinPolicy = *req.JoinPolicy
		changed = append(changed, "joinPolicy")
	}
	if req.PostPolicy != nil {
		if !model.ValidPostPolicy(*req.PostPolicy) {
			return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid post policy %q", *req.PostPolicy)}
		}
		ring.PostPolicy = *req.PostPolicy
		changed = append(changed, "postPolicy")
	}
	if req.CuratorNote != nil {
		ring.CuratorNote = *req.CuratorNote
		changed = append(changed, "curatorNote")
	}
	if req.BannerURL != nil {
		ring.BannerURL = *req.BannerURL
		changed = append(changed, "bannerUrl")
	}
	if req.ThemeColor != nil {
		ring.ThemeColor = *req.ThemeColor
		changed = append(changed, "themeColor")
	}
	if req.BadgeImageURL != nil {
		ring.BadgeImageURL = *req.BadgeImageURL
		changed = append(changed, "badgeImageUrl")
	}
	if req.BadgeImageHighResURL != nil {
		ring.BadgeImageHighResURL = *req.BadgeImageHighResURL
		changed = append(changed, "badgeImageHighResUrl")
	}
	if req.Metadata != nil {
		ring.Metadata = req.Metadata
		changed = append(changed, "metadata")
	}
	if req.Policies != nil {
		ring.Policies = req.Policies
		changed = append(changed, "policies")
	}

	var oldParent, newParent string
	if req.ParentSlug != nil {
		if ring.OwnerDID != ident.DID && !ident.IsAdmin {
			return nil, &model.ErrForbidden{Msg: "only the ring owner or an admin may change the parent"}
		}
		if ring.Slug == s.rootSlug {
			return nil, &model.ErrValidation{Msg: "the root ring cannot be reparented"}
		}
		target := *req.ParentSlug
		if target == "" {
			target = s.rootSlug
		}
		if target == ring.Slug {
			return nil, &model.ErrValidation{Msg: "a ring cannot be its own parent"}
		}
		parent, err := s.rings.GetBySlug(ctx, target)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &model.ErrValidation{Msg: fmt.Sprintf("parent ring %q not found", target)}
		}
		if err != nil {
			return nil, err
		}
		if err := s.checkAncestry(ctx, parent, ring.ID); err != nil {
			return nil, err
		}
		if ring.ParentID != nil {
			if cur, err := s.rings.GetByID(ctx, *ring.ParentID); err == nil {
				oldParent = cur.Slug
			}
		}
		ring.ParentID = &parent.ID
		newParent = parent.Slug
	}

	if len(changed) == 0 && req.ParentSlug == nil {
		return ring, nil
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.rings.WithTx(tx).Update(ctx, ring); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &model.ErrConflict{Msg: "short code is already in use"}
			}
			return fmt.Errorf("update ring: %w", err)
		}
		if len(changed) > 0 {
			_, err := s.audit.Append(ctx, tx, auditlog.Record{
				RingID:   ring.ID,
				Action:   auditlog.ActionRingUpdated,
				ActorDID: ident.DID,
				Metadata: map[string]any{"fields": changed},
			})
			if err != nil {
				return err
			}
		}
		if req.ParentSlug != nil {
			_, err := s.audit.Append(ctx, tx, auditlog.Record{
				RingID:   ring.ID,
				Action:   auditlog.ActionRingParentUpdated,
				ActorDID: ident.DID,
				Metadata: map[string]any{"from": oldParent, "to": newParent},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ring updated", zap.String("slug", ring.Slug), zap.Strings("fields", changed))
	return ring, nil
}

// checkAncestry rejects a parent candidate that sits at or below the ring
// being edited. Walks candidate toward the root; the visited set stops on
// malformed chains.
func (s *RingService) checkAncestry(ctx context.Context, candidate *model.Ring, editedID uuid.UUID) error {
	visited := map[uuid.UUID]bool{}
	cur := candidate
	for {
		if cur.ID == editedID {
			return &model.ErrValidation{Msg: "parent change would create a cycle"}
		}
		if visited[cur.ID] {
			return &model.ErrValidation{Msg: "ring ancestry contains a cycle"}
		}
		visited[cur.ID] = true
		if cur.ParentID == nil {
			return nil
		}
		next, err := s.rings.GetByID(ctx, *cur.ParentID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
}

// Delete removes a ring and everything cascading from it. The audit entry
// lands on the parent's log because the ring's own log goes down with it.
func (s *RingService) Delete(ctx context.Context, ident *model.Identity, slug string) error {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermDeleteRing); err != nil {
		return err
	}
	if ring.Slug == s.rootSlug {
		return &model.ErrValidation{Msg: "the root ring cannot be deleted"}
	}

	auditRingID := ring.ID
	if ring.ParentID != nil {
		auditRingID = *ring.ParentID
	} else if root, err := s.rings.GetBySlug(ctx, s.rootSlug); err == nil {
		auditRingID = root.ID
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if auditRingID != ring.ID {
			_, err := s.audit.Append(ctx, tx, auditlog.Record{
				RingID:   auditRingID,
				Action:   auditlog.ActionRingDeleted,
				ActorDID: ident.DID,
				Metadata: map[string]any{"slug": ring.Slug, "name": ring.Name},
			})
			if err != nil {
				return err
			}
		}
		return s.rings.WithTx(tx).Delete(ctx, ring.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("ring deleted", zap.String("slug", ring.Slug), zap.String("by", ident.DID))
	return nil
}

// List searches rings. Unauthenticated callers see only PUBLIC rings, and
// browsing another actor's memberships is clamped to PUBLIC as well.
func (s *RingService) List(ctx context.Context, ident *model.Identity, f model.RingFilter) ([]*model.Ring, error) {
	if f.Visibility != "" && !model.ValidVisibility(f.Visibility) {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("invalid visibility %q", f.Visibility)}
	}
	if ident == nil {
		f.ViewerDID = ""
		f.Visibility = model.VisibilityPublic
	} else {
		f.ViewerDID = ident.DID
		if f.MemberDID != "" && f.MemberDID != ident.DID && !ident.IsAdmin {
			f.Visibility = model.VisibilityPublic
		}
	}
	return s.rings.List(ctx, f)
}

// Lineage assembles the ancestor chain and descendant tree of a ring.
// Rings the caller cannot see are dropped from the output, along with
// their subtrees, but descendant counts still include them.
func (s *RingService) Lineage(ctx context.Context, ident *model.Identity, slug string) (*model.Lineage, error) {
	ring, err := s.resolve(ctx, slug)
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

	ancestors := []*model.Ring{}
	seen := map[uuid.UUID]bool{ring.ID: true}
	cur := ring
	for cur.ParentID != nil {
		parent, err := s.rings.GetByID(ctx, *cur.ParentID)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ok, err := canSeeRing(ctx, s.members, ident, parent)
		if err != nil {
			return nil, err
		}
		if ok {
			ancestors = append(ancestors, parent)
		}
		cur = parent
	}

	total, err := s.rings.DescendantCount(ctx, ring.ID)
	if err != nil {
		return nil, err
	}
	descendants, err := s.descendants(ctx, ident, ring.ID, map[uuid.UUID]bool{ring.ID: true})
	if err != nil {
		return nil, err
	}

	return &model.Lineage{
		Ring:            ring,
		Ancestors:       ancestors,
		Descendants:     descendants,
		DescendantCount: total,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

func (s *RingService) descendants(ctx context.Context, ident *model.Identity, parentID uuid.UUID, seen map[uuid.UUID]bool) ([]*model.LineageNode, error) {
	children, err := s.rings.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	var nodes []*model.LineageNode
	for _, child := range children {
		if seen[child.ID] {
			continue
		}
		seen[child.ID] = true
		ok, err := canSeeRing(ctx, s.members, ident, child)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		count, err := s.rings.DescendantCount(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		sub, err := s.descendants(ctx, ident, child.ID, seen)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &model.LineageNode{Ring: child, DescendantCount: count, Children: sub})
	}
	return nodes, nil
}

// Trending lists PUBLIC rings by recent accepted-post volume.
func (s *RingService) Trending(ctx context.Context, window model.TimeWindow, limit int) ([]*model.Ring, error) {
	switch window {
	case "", model.WindowHour, model.WindowDay, model.WindowWeek, model.WindowMonth:
	default:
		return nil, &model.ErrValidation{Msg: "timeWindow must be one of hour, day, week, month"}
	}
	since := time.Now().UTC().Add(-window.Duration())
	rings, err := s.rings.Trending(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	if s.ranker != nil {
		rings = s.ranker.Rank(rings)
	}
	return rings, nil
}

// Stats returns the hub-wide counters.
func (s *RingService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.rings.Stats(ctx)
}

// Root returns the root ring with its counts.
func (s *RingService) Root(ctx context.Context) (*model.Ring, error) {
	ring, err := s.rings.GetBySlug(ctx, s.rootSlug)
	if err != nil {
		return nil, err
	}
	if err := s.rings.Counts(ctx, ring); err != nil {
		return nil, err
	}
	return ring, nil
}

// CheckSlug reports whether slug is well formed and unclaimed.
func (s *RingService) CheckSlug(ctx context.Context, slug string) (*model.SlugAvailability, error) {
	out := &model.SlugAvailability{Slug: slug}
	if !model.IsValidSlug(slug) {
		out.Reason = "slug must be 3-25 characters of lowercase letters, digits, and hyphens"
		return out, nil
	}
	out.Valid = true
	taken, err := s.rings.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	out.Available = !taken
	if taken {
		out.Reason = "slug is already in use"
	}
	return out, nil
}

// AuditLog returns a ring's audit entries, newest first. Requires the
// view_audit_log permission.
func (s *RingService) AuditLog(ctx context.Context, ident *model.Identity, slug string, f auditlog.Filter) ([]*auditlog.Entry, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermViewAuditLog); err != nil {
		return nil, err
	}
	return s.audit.Query(ctx, ring.ID, f)
}

// EnsureRoot creates the root ring when missing, owned by ownerDID. Called
// at startup; safe to run repeatedly.
func (s *RingService) EnsureRoot(ctx context.Context, ownerDID, name, description string) (*model.Ring, error) {
	ring, err := s.rings.GetBySlug(ctx, s.rootSlug)
	if err == nil {
		return ring, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ident := &model.Identity{DID: ownerDID, Verified: true}
	req := &model.CreateRingRequest{
		Name:        name,
		Slug:        s.rootSlug,
		Description: description,
	}
	return s.create(ctx, ident, req, nil)
}
