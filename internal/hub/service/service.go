// Package service implements the hub's domain operations on top of the
// repository layer. Services hold the repositories they touch plus a
// transaction beginner; every multi-aggregate write runs in one transaction
// with its audit entries appended on the same transaction. Optional
// collaborators (badge issuance, rate limiting, notifications) are nilable
// and degrade to no-ops.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/threadring/ringhub/internal/hub/model"
	"github.com/threadring/ringhub/internal/hub/repository"
	"github.com/threadring/ringhub/pkg/did"
)

// hubDB is the pooled database handle services share: a Querier for
// single-statement work plus transaction support. *pgxpool.Pool satisfies
// it.
type hubDB interface {
	repository.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repos bundles one repository per aggregate, all bound to the same pool.
// Services pick the ones they need; transactions rebind per call with
// WithTx.
type Repos struct {
	Rings      *repository.RingRepository
	Roles      *repository.RoleRepository
	Members    *repository.MembershipRepository
	Invites    *repository.InvitationRepository
	Badges     *repository.BadgeRepository
	Posts      *repository.PostRepository
	Blocks     *repository.BlockRepository
	Actors     *repository.ActorRepository
	Reputation *repository.ReputationRepository
	Challenges *repository.ChallengeRepository
}

// NewRepos constructs every repository against db.
func NewRepos(db repository.Querier) *Repos {
	return &Repos{
		Rings:      repository.NewRingRepository(db),
		Roles:      repository.NewRoleRepository(db),
		Members:    repository.NewMembershipRepository(db),
		Invites:    repository.NewInvitationRepository(db),
		Badges:     repository.NewBadgeRepository(db),
		Posts:      repository.NewPostRepository(db),
		Blocks:     repository.NewBlockRepository(db),
		Actors:     repository.NewActorRepository(db),
		Reputation: repository.NewReputationRepository(db),
		Challenges: repository.NewChallengeRepository(db),
	}
}

// withTx runs fn inside a transaction, rolling back unless fn and the commit
// both succeed.
func withTx(ctx context.Context, db hubDB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// canSeeRing reports whether ident may read the ring. PRIVATE rings are
// visible only to admins and active members; everything else is world
// readable. ident may be nil for unauthenticated callers.
func canSeeRing(ctx context.Context, members *repository.MembershipRepository, ident *model.Identity, ring *model.Ring) (bool, error) {
	if ring.Visibility != model.VisibilityPrivate {
		return true, nil
	}
	if ident == nil {
		return false, nil
	}
	if ident.IsAdmin {
		return true, nil
	}
	m, err := members.GetByRingAndActor(ctx, ring.ID, ident.DID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Status == model.MembershipActive, nil
}

// activeMembership loads ident's ACTIVE membership in the ring, or
// repository.ErrNotFound when there is none.
func activeMembership(ctx context.Context, members *repository.MembershipRepository, ringID uuid.UUID, did string) (*model.Membership, error) {
	m, err := members.GetByRingAndActor(ctx, ringID, did)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MembershipActive {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

// requirePermission checks that ident holds an ACTIVE membership in the ring
// whose role grants perm. Admins pass without one. Failures come back as
// *model.ErrForbidden so handlers answer 403, not 404.
func requirePermission(ctx context.Context, members *repository.MembershipRepository, roles *repository.RoleRepository, ident *model.Identity, ring *model.Ring, perm string) error {
	if ident.IsAdmin {
		return nil
	}
	m, err := activeMembership(ctx, members, ring.ID, ident.DID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.ErrForbidden{Msg: "active membership required"}
	}
	if err != nil {
		return err
	}
	if m.RoleID == nil {
		return &model.ErrForbidden{Msg: perm + " permission required"}
	}
	role, err := roles.GetByID(ctx, *m.RoleID)
	if err != nil {
		return err
	}
	if !role.HasPermission(perm) {
		return &model.ErrForbidden{Msg: perm + " permission required"}
	}
	return nil
}

// copyProfile carries the actor's cached profile onto a membership row so
// member listings render without joining actors. a may be nil when the actor
// has never been seen.
func copyProfile(m *model.Membership, a *model.Actor) {
	if a == nil {
		return
	}
	m.ActorName = a.Name
	m.AvatarURL = a.AvatarURL
	m.ProfileURL = a.ProfileURL
	m.Handle = a.Handle
	m.ProfileLastFetched = a.ProfileLastFetched
	if d, err := did.Parse(m.ActorDID); err == nil {
		m.InstanceDomain = d.Domain()
	}
	if a.ProfileURL != "" || a.Name != "" {
		m.ProfileSource = profileSource
	}
}
