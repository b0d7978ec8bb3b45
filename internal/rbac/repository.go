package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-sis/helios-sis/internal/platform/db"
	"github.com/helios-sis/helios-sis/internal/shared"
)

// Repository defines persistence operations for roles, permissions and
// resource conditions.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	RolesOfPrincipal(ctx context.Context, principalID int64) ([]Role, error)
	AssignRole(ctx context.Context, principalID, roleID int64) error
	RemoveRole(ctx context.Context, principalID, roleID int64) error

	PermissionConditions(ctx context.Context, permissionName string) ([]ResourceCondition, error)
	ReplacePermissionConditions(ctx context.Context, permissionID int64, conds []ResourceCondition) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (r *PGRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *PGRepository) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		RETURNING id, name, description`, name, description).
		Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions swaps a role's permission set atomically.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id, created_at)
				VALUES ($1, $2, now())`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) RolesOfPrincipal(ctx context.Context, principalID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN principal_roles pr ON pr.role_id = r.id
		WHERE pr.principal_id = $1
		ORDER BY r.name`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) AssignRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_id, role_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`, principalID, roleID)
	return err
}

func (r *PGRepository) RemoveRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1 AND role_id = $2`, principalID, roleID)
	return err
}

func (r *PGRepository) PermissionConditions(ctx context.Context, permissionName string) ([]ResourceCondition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pc.permission_id, pc.resource_type, pc.condition_type, pc.condition_value
		FROM permission_conditions pc
		JOIN permissions p ON p.id = pc.permission_id
		WHERE p.name = $1`, permissionName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conds []ResourceCondition
	for rows.Next() {
		var c ResourceCondition
		if err := rows.Scan(&c.PermissionID, &c.ResourceType, &c.ConditionType, &c.ConditionValue); err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, rows.Err()
}

// ReplacePermissionConditions swaps a permission's condition descriptors.
func (r *PGRepository) ReplacePermissionConditions(ctx context.Context, permissionID int64, conds []ResourceCondition) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM permission_conditions WHERE permission_id = $1`, permissionID); err != nil {
			return err
		}
		for _, c := range conds {
			if _, err := tx.Exec(ctx, `
				INSERT INTO permission_conditions (permission_id, resource_type, condition_type, condition_value)
				VALUES ($1, $2, $3, $4)`, permissionID, c.ResourceType, c.ConditionType, c.ConditionValue); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Repository = (*PGRepository)(nil)
