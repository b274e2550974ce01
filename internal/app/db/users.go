package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tempchat/internal/app/user"
)

// UserDirectory implements user.Directory on the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory returns a directory using pool.
func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) Get(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, color, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Color, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Ensure inserts a generated profile on first sight. A concurrent first insert loses to
// the unique key and reads the winner's row.
func (d *UserDirectory) Ensure(ctx context.Context, id string) (user.User, error) {
	u, err := d.Get(ctx, id)
	if err == nil || !errors.Is(err, user.ErrNotFound) {
		return u, err
	}

	u = user.NewDefault(id, time.Now())
	_, err = d.pool.Exec(ctx,
		`INSERT INTO users (id, name, color, updated_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Color, u.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return d.Get(ctx, id)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("create user %s: %w", id, err)
	}
	return u, nil
}

func (d *UserDirectory) UpdateProfile(ctx context.Context, id string, name, color *string) (user.User, error) {
	var u user.User
	err := d.pool.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($2, name), color = COALESCE($3, color), updated_at = $4
		WHERE id = $1
		RETURNING id, name, color, updated_at`,
		id, name, color, time.Now(),
	).Scan(&u.ID, &u.Name, &u.Color, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	return u, nil
}
