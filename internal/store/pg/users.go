package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"globalbangla.org/internal/auth"
)

// adminLockKey serialises capped inserts per role.
const adminLockKey = 0x6762_0001

var (
	_ auth.UserStore  = (*Store)(nil)
	_ auth.ResetStore = (*Store)(nil)
)

const userColumns = `id, name, email, password_hash, role, school, affiliate_school, profile_picture, created_at`

const insertUserSQL = `
	insert into users (id, name, email, password_hash, role, school, affiliate_school, profile_picture, created_at)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func userArgs(u *auth.User) []any {
	return []any{u.ID, u.Name, auth.NormalizeEmail(u.Email), u.PasswordHash, u.Role.String(),
		u.School, u.AffiliateSchool, u.ProfilePicture, u.CreatedAt.UTC()}
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if _, err := s.db.ExecContext(ctx, insertUserSQL, userArgs(u)...); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateUserWithinLimit holds a transaction-scoped advisory lock so concurrent
// registrations cannot overshoot the cap.
func (s *Store) CreateUserWithinLimit(ctx context.Context, u *auth.User, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, int64(adminLockKey)+int64(u.Role)); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, `select count(*) from users where role = $1`, u.Role.String()).Scan(&n); err != nil {
		return err
	}
	if n >= limit {
		return auth.ErrAdminLimit
	}
	if _, err := tx.ExecContext(ctx, insertUserSQL, userArgs(u)...); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role,
		&u.School, &u.AffiliateSchool, &u.ProfilePicture, &u.CreatedAt); err != nil {
		return nil, err
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = r
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	return u, err
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.findUser(ctx, `id = $1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, `email = $1`, auth.NormalizeEmail(email))
}

func (s *Store) ListUsersByRole(ctx context.Context, role auth.Role) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where role = $1 order by created_at desc, id desc`, role.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsersByRole(ctx context.Context, role auth.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users where role = $1`, role.String()).Scan(&n)
	return n, err
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.execOne(ctx, auth.ErrUserNotFound,
		`update users set password_hash = $2 where id = $1`, userID, passwordHash)
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, p auth.ProfilePatch) error {
	return s.execOne(ctx, auth.ErrUserNotFound, `
		update users
		set name = coalesce($2, name),
			school = coalesce($3, school),
			affiliate_school = coalesce($4, affiliate_school)
		where id = $1`,
		userID, nullString(p.Name), nullString(p.School), nullString(p.AffiliateSchool))
}

func (s *Store) SetProfilePicture(ctx context.Context, userID, path string) error {
	return s.execOne(ctx, auth.ErrUserNotFound,
		`update users set profile_picture = $2 where id = $1`, userID, path)
}

func (s *Store) UpsertReset(ctx context.Context, r auth.PasswordReset) error {
	_, err := s.db.ExecContext(ctx, `
		insert into password_resets (user_id, token_hash, expires_at)
		values ($1, $2, $3)
		on conflict (user_id) do update
		set token_hash = excluded.token_hash, expires_at = excluded.expires_at`,
		r.UserID, r.TokenHash, r.ExpiresAt.UTC())
	return err
}

func (s *Store) FindReset(ctx context.Context, tokenHash string, now time.Time) (auth.PasswordReset, error) {
	var r auth.PasswordReset
	err := s.db.QueryRowContext(ctx, `
		select user_id, token_hash, expires_at
		from password_resets
		where token_hash = $1 and expires_at > $2`, tokenHash, now.UTC()).
		Scan(&r.UserID, &r.TokenHash, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.PasswordReset{}, auth.ErrInvalidResetToken
	}
	return r, err
}

func (s *Store) DeleteResets(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from password_resets where user_id = $1`, userID)
	return err
}
