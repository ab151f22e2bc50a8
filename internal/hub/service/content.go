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

// ContentService owns content-reference submission, feeds, the moderation
// queue, and the dual author/moderator curation path.
type ContentService struct {
	db      hubDB
	rings   *repository.RingRepository
	roles   *repository.RoleRepository
	members *repository.MembershipRepository
	posts   *repository.PostRepository
	blocks  *repository.BlockRepository
	audit   auditlog.Log
	logger  *zap.Logger
}

// NewContentService builds a ContentService.
func NewContentService(db hubDB, r *Repos, audit auditlog.Log, logger *zap.Logger) *ContentService {
	return &ContentService{
		db:      db,
		rings:   r.Rings,
		roles:   r.Roles,
		members: r.Members,
		posts:   r.Posts,
		blocks:  r.Blocks,
		audit:   audit,
		logger:  logger,
	}
}

// Submit records a content reference in a ring under its post policy. A live
// duplicate of (ring, uri) comes back as *model.ErrDuplicatePost with the
// existing reference embedded.
func (s *ContentService) Submit(ctx context.Context, ident *model.Identity, req *model.SubmitRequest) (*model.PostRef, error) {
	ring, err := s.rings.GetBySlug(ctx, req.RingSlug)
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

	blocked, err := s.blocks.IsBlocked(ctx, ring.ID, ident.DID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, &model.ErrForbidden{Msg: "you are blocked from this ring"}
	}

	status := model.PostAccepted
	switch ring.PostPolicy {
	case model.PostPolicyOpen:
	case model.PostPolicyMembers:
		if !ident.IsAdmin {
			if _, err := activeMembership(ctx, s.members, ring.ID, ident.DID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, &model.ErrForbidden{Msg: "membership required to submit to this ring"}
				}
				return nil, err
			}
		}
	case model.PostPolicyCurated:
		status = model.PostPending
	case model.PostPolicyClosed:
		return nil, &model.ErrForbidden{Msg: "this ring is not accepting submissions"}
	default:
		return nil, fmt.Errorf("unknown post policy %q", ring.PostPolicy)
	}

	actorDID := ident.DID
	if req.ActorDID != "" && req.ActorDID != ident.DID {
		if _, err := did.Parse(req.ActorDID); err != nil {
			return nil, &model.ErrValidation{Msg: "actorDid must be a valid DID"}
		}
		actorDID = req.ActorDID
	}

	if existing, err := s.posts.GetLiveByURI(ctx, ring.ID, req.URI); err == nil {
		return nil, &model.ErrDuplicatePost{Existing: existing}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	p := &model.PostRef{
		RingID:      ring.ID,
		ActorDID:    actorDID,
		SubmittedBy: ident.DID,
		URI:         req.URI,
		Digest:      req.Digest,
		SubmittedAt: now,
		Status:      status,
		Metadata:    req.Metadata,
	}
	if status == model.PostAccepted {
		p.ModeratedAt = &now
		p.ModeratedBy = ident.DID
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.posts.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    auditlog.ActionContentSubmitted,
			ActorDID:  ident.DID,
			TargetDID: actorDID,
			Metadata:  map[string]any{"uri": req.URI, "status": string(status)},
		})
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a concurrent submit race
		if raced, gerr := s.posts.GetLiveByURI(ctx, ring.ID, req.URI); gerr == nil {
			return nil, &model.ErrDuplicatePost{Existing: raced}
		}
		return nil, &model.ErrConflict{Msg: "content already submitted to this ring"}
	}
	if err != nil {
		return nil, err
	}

	p.RingSlug = ring.Slug
	s.logger.Info("content submitted",
		zap.String("ring", ring.Slug),
		zap.String("actor", actorDID),
		zap.String("status", string(status)))
	return p, nil
}

// Feed lists references for a ring and its relatives per the scope. Rings
// the caller cannot see drop out of the set; post statuses beyond ACCEPTED
// are visible only to members of the requested ring.
func (s *ContentService) Feed(ctx context.Context, ident *model.Identity, slug string, f model.FeedFilter) ([]*model.PostRef, error) {
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

	if f.Scope == "" {
		f.Scope = model.ScopeRing
	}
	if !model.ValidFeedScope(f.Scope) {
		return nil, &model.ErrValidation{Msg: "scope must be one of ring, parent, children, siblings, family"}
	}
	if err := validateStatusFilter(f.Status); err != nil {
		return nil, err
	}

	ringIDs, err := s.scopeRingIDs(ctx, ident, ring, f.Scope)
	if err != nil {
		return nil, err
	}

	member := false
	if ident != nil {
		if _, err := activeMembership(ctx, s.members, ring.ID, ident.DID); err == nil {
			member = true
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if !member && !(ident != nil && ident.IsAdmin) {
		accepted := model.PostAccepted
		f.Status = &accepted
	}

	return s.posts.Feed(ctx, ringIDs, f)
}

func (s *ContentService) scopeRingIDs(ctx context.Context, ident *model.Identity, ring *model.Ring, scope model.FeedScope) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	add := func(r *model.Ring) error {
		ok, err := canSeeRing(ctx, s.members, ident, r)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, r.ID)
		}
		return nil
	}

	var parent *model.Ring
	if ring.ParentID != nil && (scope == model.ScopeParent || scope == model.ScopeSiblings || scope == model.ScopeFamily) {
		p, err := s.rings.GetByID(ctx, *ring.ParentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		parent = p
	}

	if scope == model.ScopeRing || scope == model.ScopeFamily {
		ids = append(ids, ring.ID)
	}
	if parent != nil && (scope == model.ScopeParent || scope == model.ScopeFamily) {
		if err := add(parent); err != nil {
			return nil, err
		}
	}
	if parent != nil && (scope == model.ScopeSiblings || scope == model.ScopeFamily) {
		siblings, err := s.rings.Children(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			if sib.ID == ring.ID {
				continue
			}
			if err := add(sib); err != nil {
				return nil, err
			}
		}
	}
	if scope == model.ScopeChildren || scope == model.ScopeFamily {
		children, err := s.rings.Children(ctx, ring.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if err := add(child); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

// MyFeed aggregates the caller's ACTIVE rings into one reading feed. The
// default shows ACCEPTED references; an explicit status widens it since the
// caller is a member of every ring in the set.
func (s *ContentService) MyFeed(ctx context.Context, ident *model.Identity, f model.FeedFilter) ([]*model.PostRef, error) {
	if err := validateStatusFilter(f.Status); err != nil {
		return nil, err
	}
	mships, err := s.members.ListByActor(ctx, ident.DID, model.MembershipActive)
	if err != nil {
		return nil, err
	}
	if len(mships) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(mships))
	for _, m := range mships {
		ids = append(ids, m.Ring.ID)
	}
	if f.Status == nil {
		accepted := model.PostAccepted
		f.Status = &accepted
	}
	return s.posts.Feed(ctx, ids, f)
}

// TrendingFeed lists ACCEPTED references across PUBLIC rings, newest first.
func (s *ContentService) TrendingFeed(ctx context.Context, f model.FeedFilter) ([]*model.PostRef, error) {
	return s.posts.PublicFeed(ctx, f)
}

// Queue lists a ring's PENDING references oldest first. Requires
// moderate_posts.
func (s *ContentService) Queue(ctx context.Context, ident *model.Identity, slug string, limit, offset int) ([]*model.PostRef, error) {
	ring, err := s.rings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermModeratePosts); err != nil {
		return nil, err
	}
	return s.posts.Queue(ctx, ring.ID, limit, offset)
}

// Curate applies a moderation action to a reference. Authors may only
// remove, and removal is global: every ring holding the same (author, uri)
// loses it in one transaction. Moderators act on the single reference.
func (s *ContentService) Curate(ctx context.Context, ident *model.Identity, req *model.CurateRequest) (*model.CurateResult, error) {
	switch req.Action {
	case model.CurateAccept, model.CurateReject, model.CuratePin, model.CurateUnpin, model.CurateRemove:
	default:
		return nil, &model.ErrValidation{Msg: "action must be one of accept, reject, pin, unpin, remove"}
	}

	post, err := s.posts.GetByID(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	ring, err := s.rings.GetByID(ctx, post.RingID)
	if err != nil {
		return nil, err
	}

	if ident.DID == post.ActorDID || ident.DID == post.SubmittedBy {
		return s.authorRemove(ctx, ident, post, req)
	}
	return s.moderate(ctx, ident, ring, post, req)
}

func (s *ContentService) authorRemove(ctx context.Context, ident *model.Identity, post *model.PostRef, req *model.CurateRequest) (*model.CurateResult, error) {
	if req.Action != model.CurateRemove {
		return nil, &model.ErrForbidden{Msg: "authors may only remove their own content"}
	}

	now := time.Now().UTC()
	var affected []repository.AffectedRing
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		affected, err = s.posts.WithTx(tx).RemoveByAuthorGlobal(ctx, post.ActorDID, post.URI, ident.DID, "Removed by author", now)
		if err != nil {
			return fmt.Errorf("remove by author: %w", err)
		}
		for _, ar := range affected {
			_, err := s.audit.Append(ctx, tx, auditlog.Record{
				RingID:    ar.ID,
				Action:    auditlog.ActionContentAuthorRemovedGlobal,
				ActorDID:  ident.DID,
				TargetDID: post.ActorDID,
				Metadata:  map[string]any{"uri": post.URI},
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

	slugs := make([]string, 0, len(affected))
	for _, ar := range affected {
		slugs = append(slugs, ar.Slug)
	}
	s.logger.Info("content removed by author",
		zap.String("actor", ident.DID),
		zap.String("uri", post.URI),
		zap.Int("rings", len(slugs)))
	return &model.CurateResult{Global: true, AffectedRings: slugs}, nil
}

func (s *ContentService) moderate(ctx context.Context, ident *model.Identity, ring *model.Ring, post *model.PostRef, req *model.CurateRequest) (*model.CurateResult, error) {
	blocked, err := s.blocks.IsBlocked(ctx, ring.ID, ident.DID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, &model.ErrForbidden{Msg: "you are blocked from this ring"}
	}
	if err := requirePermission(ctx, s.members, s.roles, ident, ring, model.PermModeratePosts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var action string
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		posts := s.posts.WithTx(tx)
		switch req.Action {
		case model.CurateAccept:
			action = auditlog.ActionContentAccepted
			if err := posts.SetStatus(ctx, post.ID, model.PostAccepted, ident.DID, req.Reason, now); err != nil {
				return err
			}
			post.Status = model.PostAccepted
		case model.CurateReject:
			action = auditlog.ActionContentRejected
			if err := posts.SetStatus(ctx, post.ID, model.PostRejected, ident.DID, req.Reason, now); err != nil {
				return err
			}
			post.Status = model.PostRejected
		case model.CurateRemove:
			action = auditlog.ActionContentRemoved
			if err := posts.SetStatus(ctx, post.ID, model.PostRemoved, ident.DID, req.Reason, now); err != nil {
				return err
			}
			post.Status = model.PostRemoved
		case model.CuratePin:
			action = auditlog.ActionContentPinned
			if err := posts.SetPinned(ctx, post.ID, true); err != nil {
				return err
			}
			post.Pinned = true
		case model.CurateUnpin:
			action = auditlog.ActionContentUnpinned
			if err := posts.SetPinned(ctx, post.ID, false); err != nil {
				return err
			}
			post.Pinned = false
		}
		if req.Action != model.CuratePin && req.Action != model.CurateUnpin {
			post.ModeratedAt = &now
			post.ModeratedBy = ident.DID
			post.ModerationNote = req.Reason
		}

		_, err := s.audit.Append(ctx, tx, auditlog.Record{
			RingID:    ring.ID,
			Action:    action,
			ActorDID:  ident.DID,
			TargetDID: post.ActorDID,
			Metadata:  map[string]any{"uri": post.URI, "ringSpecific": true},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("content curated",
		zap.String("ring", ring.Slug),
		zap.String("action", string(req.Action)),
		zap.String("moderator", ident.DID))
	return &model.CurateResult{Post: post}, nil
}

func validateStatusFilter(status *model.PostStatus) error {
	if status == nil {
		return nil
	}
	switch *status {
	case model.PostPending, model.PostAccepted, model.PostRejected, model.PostRemoved:
		return nil
	}
	return &model.ErrValidation{Msg: "status must be one of PENDING, ACCEPTED, REJECTED, REMOVED"}
}
