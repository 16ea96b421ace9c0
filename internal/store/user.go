package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mategroup/sso/types"
)

const userColumns = `id, name, username, email, password_hash, avatar_url, avatar_path,
		subscriptions, session_token, version, created_at, updated_at`

// UserRepository handles persistence for identity records.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user         types.User
		avatarURL    sql.NullString
		avatarPath   sql.NullString
		subs         []byte
		sessionToken sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&avatarURL,
		&avatarPath,
		&subs,
		&sessionToken,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translate(err)
	}

	if avatarURL.Valid && avatarPath.Valid {
		user.Avatar = &types.AvatarRef{URL: avatarURL.String, Path: avatarPath.String}
	}
	user.SessionToken = sessionToken.String
	user.Subscriptions, err = decodeSubscriptions(subs)
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// decodeSubscriptions reads the subscriptions column, dropping tiers outside
// the known plan set so they never reach tokens or responses.
func decodeSubscriptions(raw []byte) (map[string]types.Plan, error) {
	subs := map[string]types.Plan{}
	if len(raw) == 0 {
		return subs, nil
	}
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	for app, plan := range subs {
		if !plan.Valid() {
			delete(subs, app)
		}
	}
	return subs, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByLogin matches identifier against email or username.
func (r *UserRepository) GetByLogin(ctx context.Context, identifier string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 OR username = $1
		LIMIT 1`
	return scanUser(r.db.QueryRowContext(ctx, query, identifier))
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UsernameExists reports whether username belongs to a user other than excludeID.
// An empty excludeID checks every user.
func (r *UserRepository) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id::text <> $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Subscriptions == nil {
		user.Subscriptions = map[string]types.Plan{}
	}
	subs, err := json.Marshal(user.Subscriptions)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (id, name, username, email, password_hash, subscriptions, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		subs,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// UpdateProfile writes name, username and password hash when user.Version
// still matches the stored row, then bumps the version.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET name = $1,
			username = $2,
			password_hash = $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $5 AND version = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Username,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
		user.Version,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		if err := r.exists(ctx, user.ID); err != nil {
			return types.User{}, err
		}
		return types.User{}, ErrStaleVersion
	}
	user.Version++
	return user, nil
}

func (r *UserRepository) SetSessionToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET session_token = $1 WHERE id = $2`
	return r.execOne(ctx, query, token, id)
}

// SetAvatar stores both halves of the avatar reference in one statement.
func (r *UserRepository) SetAvatar(ctx context.Context, id string, ref types.AvatarRef) error {
	const query = `
		UPDATE users
		SET avatar_url = $1,
			avatar_path = $2,
			updated_at = $3
		WHERE id = $4`
	return r.execOne(ctx, query, ref.URL, ref.Path, time.Now().UTC(), id)
}

func (r *UserRepository) ClearAvatar(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET avatar_url = NULL,
			avatar_path = NULL,
			updated_at = $1
		WHERE id = $2`
	return r.execOne(ctx, query, time.Now().UTC(), id)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) exists(ctx context.Context, id string) error {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return translate(err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
