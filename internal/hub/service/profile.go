package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/internal/profile"
	"github.com/threadring/ringhub/pkg/did"
)

// profileSource tags profile columns populated from a resolved DID
// document, as opposed to values an instance supplied at join time.
const profileSource = "did-document"

// defaultProfileTTL is how long a fetched profile stays fresh.
const defaultProfileTTL = 24 * time.Hour

// DocumentResolver is the slice of the DID resolver the profile service
// uses. Refresh bypasses the document cache; Resolve consults it.
type DocumentResolver interface {
	Resolve(ctx context.Context, didStr string) (*didresolver.Document, error)
	Refresh(ctx context.Context, didStr string) (*didresolver.Document, error)
}

// ProfileService resolves actor profiles from DID documents and keeps the
// cached copies on actors and memberships in sync. It implements
// profile.Store for the background refresher.
type ProfileService struct {
	actors    *repository.ActorRepository
	members   *repository.MembershipRepository
	resolver  DocumentResolver
	refresher *profile.Refresher // nil = update announcements refresh inline
	limiter   *RateLimiter       // nil = update announcements are not rate limited
	ttl       time.Duration
	logger    *zap.Logger
}

// NewProfileService builds a ProfileService with the default cache TTL.
func NewProfileService(r *Repos, resolver DocumentResolver, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		actors:   r.Actors,
		members:  r.Members,
		resolver: resolver,
		ttl:      defaultProfileTTL,
		logger:   logger,
	}
}

// SetRefresher hands update announcements to a background worker instead of
// refreshing inline.
func (s *ProfileService) SetRefresher(r *profile.Refresher) { s.refresher = r }

// SetRateLimiter enables quota enforcement on update announcements.
func (s *ProfileService) SetRateLimiter(l *RateLimiter) { s.limiter = l }

// SetTTL overrides how long a fetched profile stays fresh.
func (s *ProfileService) SetTTL(d time.Duration) {
	if d > 0 {
		s.ttl = d
	}
}

// EnsureProfile returns the actor with profile fields as fresh as the
// resolver allows. A stale or missing profile triggers a resolution;
// resolution failures fall back to whatever is cached, so the caller
// decides whether an empty profileUrl is acceptable.
func (s *ProfileService) EnsureProfile(ctx context.Context, didStr string) (*model.Actor, error) {
	actor, err := s.actors.GetByDID(ctx, didStr)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if actor != nil && actor.ProfileLastFetched != nil && time.Since(*actor.ProfileLastFetched) < s.ttl {
		return actor, nil
	}

	p, err := s.resolveProfile(ctx, didStr)
	if err != nil {
		s.logger.Warn("profile resolution failed",
			zap.String("did", didStr), zap.Error(err))
		return actor, nil
	}
	if err := s.UpdateActorProfile(ctx, didStr, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The DID has never authenticated, so there is no row to
			// persist onto.
			return actor, nil
		}
		return nil, err
	}
	return s.actors.GetByDID(ctx, didStr)
}

// NotifyUpdated handles an actor's announcement that their DID document
// changed. Only the actor may announce for their own DID. The refresh runs
// asynchronously when a worker is wired; the returned flag reports whether
// it was queued.
func (s *ProfileService) NotifyUpdated(ctx context.Context, ident *model.Identity, didStr string) (bool, error) {
	if ident.DID != didStr {
		return false, &model.ErrForbidden{Msg: "you may only announce updates to your own profile"}
	}
	if s.limiter != nil {
		if err := s.limiter.Precheck(ctx, ident, model.ActionProfileRefresh); err != nil {
			return false, err
		}
		s.limiter.Record(ctx, ident.DID, model.ActionProfileRefresh, nil)
	}

	if s.refresher != nil {
		return s.refresher.Enqueue(didStr), nil
	}

	// No worker wired: refresh inline so the announcement still lands.
	// Failures degrade to logs, matching the worker's behavior.
	p, err := s.refreshProfile(ctx, didStr)
	if err != nil {
		s.logger.Warn("inline profile refresh failed",
			zap.String("did", didStr), zap.Error(err))
		return false, nil
	}
	if err := s.UpdateActorProfile(ctx, didStr, p); err != nil {
		s.logger.Warn("inline profile refresh persist failed",
			zap.String("did", didStr), zap.Error(err))
	}
	return false, nil
}

// UpdateActorProfile writes a resolved profile onto the actor row and fans
// it out to every membership the actor holds.
func (s *ProfileService) UpdateActorProfile(ctx context.Context, didStr string, p *profile.Profile) error {
	fields := repository.ProfileFields{
		ActorName:      p.Name,
		AvatarURL:      p.AvatarURL,
		ProfileURL:     p.ProfileURL,
		InstanceDomain: p.InstanceDomain,
		Handle:         p.Handle,
		FetchedAt:      time.Now().UTC(),
		Source:         profileSource,
	}
	if err := s.actors.UpdateProfile(ctx, didStr, fields); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update actor profile: %w", err)
	}
	n, err := s.members.UpdateProfileFields(ctx, didStr, fields)
	if err != nil {
		return fmt.Errorf("fan out profile to memberships: %w", err)
	}
	s.logger.Debug("profile updated",
		zap.String("did", didStr),
		zap.String("profileUrl", p.ProfileURL),
		zap.Int("memberships", n))
	return nil
}

func (s *ProfileService) resolveProfile(ctx context.Context, didStr string) (*profile.Profile, error) {
	d, err := did.Parse(didStr)
	if err != nil {
		return nil, err
	}
	doc, err := s.resolver.Resolve(ctx, d.String())
	if err != nil {
		return nil, err
	}
	return profile.Extract(d, doc)
}

func (s *ProfileService) refreshProfile(ctx context.Context, didStr string) (*profile.Profile, error) {
	d, err := did.Parse(didStr)
	if err != nil {
		return nil, err
	}
	doc, err := s.resolver.Refresh(ctx, d.String())
	if err != nil {
		return nil, err
	}
	return profile.Extract(d, doc)
}
