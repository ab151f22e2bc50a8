package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/threadring/ringhub/internal/hub/model"
)

// RoleRepository manages per-ring role definitions.
type RoleRepository struct {
	db Querier
}

// NewRoleRepository creates a RoleRepository.
func NewRoleRepository(db Querier) *RoleRepository {
	return &RoleRepository{db: db}
}

// WithTx returns a copy of the repository bound to q.
func (r *RoleRepository) WithTx(q Querier) *RoleRepository {
	return &RoleRepository{db: q}
}

// CreateDefaults inserts the owner, moderator, and member roles for a new
// ring and returns them keyed by name.
func (r *RoleRepository) CreateDefaults(ctx context.Context, ringID uuid.UUID) (map[string]*model.RingRole, error) {
	defaults := []struct {
		name  string
		perms []string
	}{
		{model.RoleOwner, model.OwnerPermissions()},
		{model.RoleModerator, model.ModeratorPermissions()},
		{model.RoleMember, model.MemberPermissions()},
	}

	query := `INSERT INTO ring_roles (id, ring_id, name, permissions) VALUES ($1, $2, $3, $4)`
	roles := make(map[string]*model.RingRole, len(defaults))
	for _, d := range defaults {
		role := &model.RingRole{
			ID:          uuid.New(),
			RingID:      ringID,
			Name:        d.name,
			Permissions: d.perms,
		}
		if _, err := r.db.Exec(ctx, query, role.ID, role.RingID, role.Name, role.Permissions); err != nil {
			return nil, fmt.Errorf("create role %s: %w", d.name, err)
		}
		roles[d.name] = role
	}
	return roles, nil
}

// GetByID retrieves a role by id.
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RingRole, error) {
	query := `SELECT id, ring_id, name, permissions FROM ring_roles WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetByName retrieves a ring's role by name.
func (r *RoleRepository) GetByName(ctx context.Context, ringID uuid.UUID, name string) (*model.RingRole, error) {
	query := `SELECT id, ring_id, name, permissions FROM ring_roles WHERE ring_id = $1 AND name = $2`
	return r.scanOne(ctx, query, ringID, name)
}

// ListByRing returns all roles defined for a ring.
func (r *RoleRepository) ListByRing(ctx context.Context, ringID uuid.UUID) ([]*model.RingRole, error) {
	query := `SELECT id, ring_id, name, permissions FROM ring_roles WHERE ring_id = $1 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, ringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*model.RingRole
	for rows.Next() {
		var role model.RingRole
		if err := rows.Scan(&role.ID, &role.RingID, &role.Name, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (r *RoleRepository) scanOne(ctx context.Context, query string, args ...any) (*model.RingRole, error) {
	var role model.RingRole
	err := r.db.QueryRow(ctx, query, args...).Scan(&role.ID, &role.RingID, &role.Name, &role.Permissions)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}
