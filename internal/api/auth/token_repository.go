package auth

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

var _ TokenRepo = (*PostgresTokenRepo)(nil)

// TokenFilter narrows token lookups. Nil fields are ignored.
type TokenFilter struct {
	Token  *string
	UserID *int64
	Type   *api.TokenType
}

// TokenRepo persists issued refresh, verification and reset tokens. Access
// tokens are never stored.
type TokenRepo interface {
	// Find returns the first matching token, or nil when none matches.
	Find(ctx context.Context, filter TokenFilter) (*api.Token, error)
	FindAll(ctx context.Context, filter TokenFilter) ([]api.Token, error)
	// Create inserts a freshly signed token string. A duplicate string fails
	// with api.ErrConflict.
	Create(ctx context.Context, tokenType api.TokenType, userID int64, token string) (*api.Token, error)
	// Delete removes a token by its string, api.ErrNotFound when absent.
	Delete(ctx context.Context, token string) error
	// DeleteMany removes all listed token strings and returns the count.
	DeleteMany(ctx context.Context, tokens []string) (int64, error)
}

type PostgresTokenRepo struct {
	logger  *slog.Logger
	pgpool  api.Querier
	metrics *metrics.AppMetrics
}

func NewPostgresTokenRepo(pgpool api.Querier, appMetrics *metrics.AppMetrics, logger *slog.Logger) *PostgresTokenRepo {
	return &PostgresTokenRepo{
		logger:  logger,
		pgpool:  pgpool,
		metrics: appMetrics,
	}
}

func (f TokenFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Token != nil {
		args = append(args, *f.Token)
		clauses = append(clauses, fmt.Sprintf("token = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Type != nil {
		args = append(args, *f.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const tokenColumns = "id, token, type, user_id, created_at"

func (r *PostgresTokenRepo) Find(ctx context.Context, filter TokenFilter) (*api.Token, error) {
	defer r.metrics.RecordDBQuery(ctx, "tokens.find", time.Now())
	where, args := filter.where()
	query := "SELECT " + tokenColumns + " FROM tokens" + where + " ORDER BY id LIMIT 1"

	var t api.Token
	err := r.pgpool.QueryRow(ctx, query, args...).
		Scan(&t.ID, &t.Token, &t.Type, &t.UserID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find token: query failed: %w", err)
	}
	return &t, nil
}

func (r *PostgresTokenRepo) FindAll(ctx context.Context, filter TokenFilter) ([]api.Token, error) {
	defer r.metrics.RecordDBQuery(ctx, "tokens.find_all", time.Now())
	where, args := filter.where()
	query := "SELECT " + tokenColumns + " FROM tokens" + where + " ORDER BY id"

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tokens: query failed: %w", err)
	}
	defer rows.Close()

	var tokens []api.Token
	for rows.Next() {
		var t api.Token
		if err := rows.Scan(&t.ID, &t.Token, &t.Type, &t.UserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("find tokens: scan failed: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find tokens: rows failed: %w", err)
	}
	return tokens, nil
}

func (r *PostgresTokenRepo) Create(ctx context.Context, tokenType api.TokenType, userID int64, token string) (*api.Token, error) {
	defer r.metrics.RecordDBQuery(ctx, "tokens.create", time.Now())
	var t api.Token
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO tokens (token, type, user_id) VALUES ($1, $2, $3)
		 RETURNING `+tokenColumns,
		token, tokenType, userID).
		Scan(&t.ID, &t.Token, &t.Type, &t.UserID, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("token string already exists: %w", api.ErrConflict)
		}
		return nil, fmt.Errorf("create token: insert failed: %w", err)
	}
	return &t, nil
}

func (r *PostgresTokenRepo) Delete(ctx context.Context, token string) error {
	defer r.metrics.RecordDBQuery(ctx, "tokens.delete", time.Now())
	tag, err := r.pgpool.Exec(ctx, "DELETE FROM tokens WHERE token = $1", token)
	if err != nil {
		return fmt.Errorf("delete token: db delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("token not found: %w", api.ErrNotFound)
	}
	return nil
}

func (r *PostgresTokenRepo) DeleteMany(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	defer r.metrics.RecordDBQuery(ctx, "tokens.delete_many", time.Now())
	tag, err := r.pgpool.Exec(ctx, "DELETE FROM tokens WHERE token = ANY($1)", tokens)
	if err != nil {
		return 0, fmt.Errorf("delete tokens: db delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
