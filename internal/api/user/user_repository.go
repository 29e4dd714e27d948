package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkravets/contacts-api/app/observability/metrics"
	"github.com/mkravets/contacts-api/internal/api"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo owns the user identity records. Status, password and avatar change
// only through the explicit Update patch, never by direct field mutation.
type UserRepo interface {
	// Create inserts a user with status REGISTERED and role USER. A duplicate
	// email fails with api.ErrConflict.
	Create(ctx context.Context, username, email, passwordHash string) (*api.User, error)
	// GetByEmail returns the user, or nil when no user carries that email.
	GetByEmail(ctx context.Context, email string) (*api.User, error)
	// GetByID returns the user, or nil when absent.
	GetByID(ctx context.Context, id int64) (*api.User, error)
	// Update applies the non-nil patch fields, api.ErrNotFound when absent.
	Update(ctx context.Context, id int64, patch api.UserUpdate) (*api.User, error)
}

type PostgresUserRepo struct {
	logger  *slog.Logger
	pgpool  api.Querier
	metrics *metrics.AppMetrics
}

func NewPostgresUserRepo(pgpool api.Querier, appMetrics *metrics.AppMetrics, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger:  logger,
		pgpool:  pgpool,
		metrics: appMetrics,
	}
}

const userColumns = "id, username, email, avatar_url, password_hash, status, role, created_at, updated_at"

func scanUser(row pgx.Row) (*api.User, error) {
	var u api.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.AvatarURL, &u.PasswordHash,
		&u.Status, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, username, email, passwordHash string) (*api.User, error) {
	defer r.metrics.RecordDBQuery(ctx, "users.create", time.Now())
	u, err := scanUser(r.pgpool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		username, email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("email already registered: %w", api.ErrConflict)
		}
		return nil, fmt.Errorf("create user: insert failed: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*api.User, error) {
	defer r.metrics.RecordDBQuery(ctx, "users.get_by_email", time.Now())
	u, err := scanUser(r.pgpool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: query failed: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (*api.User, error) {
	defer r.metrics.RecordDBQuery(ctx, "users.get_by_id", time.Now())
	u, err := scanUser(r.pgpool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: query failed: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, id int64, patch api.UserUpdate) (*api.User, error) {
	defer r.metrics.RecordDBQuery(ctx, "users.update", time.Now())
	var sets []string
	var args []interface{}

	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.PasswordHash != nil {
		args = append(args, *patch.PasswordHash)
		sets = append(sets, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	if patch.AvatarURL != nil {
		args = append(args, *patch.AvatarURL)
		sets = append(sets, fmt.Sprintf("avatar_url = $%d", len(args)))
	}

	if len(sets) == 0 {
		return r.getExisting(ctx, id)
	}

	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), userColumns)

	u, err := scanUser(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", api.ErrNotFound)
		}
		return nil, fmt.Errorf("update user: db update failed: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) getExisting(ctx context.Context, id int64) (*api.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user not found: %w", api.ErrNotFound)
	}
	return u, nil
}
