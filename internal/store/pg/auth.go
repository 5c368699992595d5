package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sparehub.org/internal/auth"
)

var _ auth.Store = (*Store)(nil)

const userColumns = `id, email, password_hash, role_id, created_at`

func scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.RoleID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, role_id, created_at)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.RoleID, user.CreatedAt))
	switch pgCode(err) {
	case pgErrUniqueViolation:
		return auth.User{}, fmt.Errorf("%w: email already registered", auth.ErrConflict)
	case pgErrForeignKeyViolation:
		return auth.User{}, fmt.Errorf("%w: role %s", auth.ErrNotFound, user.RoleID)
	}
	if err != nil {
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set password_hash = $2 where id = $1`, userID, hash)
	if err != nil {
		return err
	}
	return affectedOne(res, auth.ErrNotFound)
}

// AssignRole moves a user to another role. Used by the admin bootstrap command.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set role_id = $2 where id = $1`, userID, roleID)
	if pgCode(err) == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, roleID)
	}
	if err != nil {
		return err
	}
	return affectedOne(res, auth.ErrNotFound)
}

func (s *Store) CreateRole(ctx context.Context, name, description string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, coalesce(description, '')
	`, uuid.NewString(), name, nullIfEmpty(description)).Scan(&role.ID, &role.Name, &role.Description)
	if pgCode(err) == pgErrUniqueViolation {
		return auth.Role{}, fmt.Errorf("%w: role %s exists", auth.ErrConflict, name)
	}
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) roleWhere(ctx context.Context, cond string, arg any) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description, '')
		from roles
		where `+cond+` = $1
	`, arg).Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	return s.roleWhere(ctx, "id", id)
}

func (s *Store) RoleByName(ctx context.Context, name string) (auth.Role, error) {
	return s.roleWhere(ctx, "name", name)
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, '')
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []auth.Role{}
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// DeleteRole relies on users.role_id being restrictive and role_permissions.role_id cascading.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if pgCode(err) == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: role is assigned to users", auth.ErrReferentialConflict)
	}
	if err != nil {
		return err
	}
	return affectedOne(res, auth.ErrNotFound)
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, coalesce(p.description, '')
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		if _, err := s.RoleByID(ctx, roleID); err != nil {
			return nil, err
		}
	}
	return perms, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if s.db == nil {
		return errNoDB
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 for update`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, roleID)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if err := tx.QueryRowContext(ctx, `select 1 from permissions where id = $1`, permID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s", auth.ErrNotFound, permID)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			if pgCode(err) == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: permission %s", auth.ErrNotFound, permID)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CreatePermission(ctx context.Context, name, description string) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description)
		values ($1, $2, $3)
		returning id, name, coalesce(description, '')
	`, uuid.NewString(), name, nullIfEmpty(description)).Scan(&p.ID, &p.Name, &p.Description)
	if pgCode(err) == pgErrUniqueViolation {
		return auth.Permission{}, fmt.Errorf("%w: permission %s exists", auth.ErrConflict, name)
	}
	if err != nil {
		return auth.Permission{}, err
	}
	return p, nil
}

func (s *Store) permissionWhere(ctx context.Context, cond string, arg any) (auth.Permission, error) {
	if s.db == nil {
		return auth.Permission{}, errNoDB
	}
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description, '')
		from permissions
		where `+cond+` = $1
	`, arg).Scan(&p.ID, &p.Name, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Permission{}, err
	}
	return p, nil
}

func (s *Store) PermissionByID(ctx context.Context, id string) (auth.Permission, error) {
	return s.permissionWhere(ctx, "id", id)
}

func (s *Store) PermissionByName(ctx context.Context, name string) (auth.Permission, error) {
	return s.permissionWhere(ctx, "name", name)
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, '')
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// DeletePermission relies on role_permissions.permission_id being restrictive.
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if pgCode(err) == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: permission is granted to a role", auth.ErrReferentialConflict)
	}
	if err != nil {
		return err
	}
	return affectedOne(res, auth.ErrNotFound)
}

func (s *Store) CreateResetToken(ctx context.Context, token auth.PasswordResetToken) error {
	if s.db == nil {
		return errNoDB
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	switch pgCode(err) {
	case pgErrForeignKeyViolation:
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, token.UserID)
	case pgErrCheckViolation:
		return fmt.Errorf("%w: reset token must expire after it is created", auth.ErrInvalidInput)
	}
	return err
}

func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	if s.db == nil {
		return "", errNoDB
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	err = tx.QueryRowContext(ctx, `
		update password_reset_tokens
		set consumed_at = $2
		where token_hash = $1 and consumed_at is null and expires_at > $2
		returning user_id
	`, tokenHash, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	res, err := tx.ExecContext(ctx, `update users set password_hash = $2 where id = $1`, userID, passwordHash)
	if err != nil {
		return "", err
	}
	if err := affectedOne(res, auth.ErrNotFound); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Store) PurgeResetTokens(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from password_reset_tokens
		where consumed_at is not null or expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
