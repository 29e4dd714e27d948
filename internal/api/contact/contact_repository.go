package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mkravets/contacts-api/app/observability/metrics"
	"github.com/mkravets/contacts-api/internal/api"
)

var _ ContactRepo = (*PostgresContactRepo)(nil)

// ContactFilter narrows contact listings. UserID is always required so one
// user can never page through another user's book.
type ContactFilter struct {
	UserID          int64
	Search          *string
	BirthdaysWithin *int
	Offset          *int
	Limit           *int
}

type ContactRepo interface {
	FindAll(ctx context.Context, filter ContactFilter) ([]api.Contact, error)
	// FindOne returns the contact owned by userID, or nil when absent.
	FindOne(ctx context.Context, id, userID int64) (*api.Contact, error)
	Create(ctx context.Context, userID int64, body ContactRequest) (*api.Contact, error)
	// Update applies the non-nil patch fields, api.ErrNotFound when absent.
	Update(ctx context.Context, id, userID int64, patch api.ContactUpdate) (*api.Contact, error)
	// Delete removes the contact owned by userID, api.ErrNotFound when absent.
	Delete(ctx context.Context, id, userID int64) error
}

type PostgresContactRepo struct {
	logger  *slog.Logger
	pgpool  api.Querier
	metrics *metrics.AppMetrics
}

func NewPostgresContactRepo(pgpool api.Querier, appMetrics *metrics.AppMetrics, logger *slog.Logger) *PostgresContactRepo {
	return &PostgresContactRepo{
		logger:  logger,
		pgpool:  pgpool,
		metrics: appMetrics,
	}
}

const contactColumns = "id, first_name, last_name, email, phone, birthday, user_id, created_at, updated_at"

func (f ContactFilter) where() (string, []interface{}) {
	args := []interface{}{f.UserID}
	clauses := []string{"user_id = $1"}

	if f.Search != nil && *f.Search != "" {
		args = append(args, "%"+*f.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}
	if f.BirthdaysWithin != nil {
		// Shift each birthday to the current year and keep the ones landing
		// inside the window, wrapping over New Year via the next-year copy.
		args = append(args, *f.BirthdaysWithin)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`((birthday + make_interval(years => date_part('year', age(birthday))::int)) BETWEEN CURRENT_DATE AND CURRENT_DATE + $%d
			OR (birthday + make_interval(years => date_part('year', age(birthday))::int + 1)) BETWEEN CURRENT_DATE AND CURRENT_DATE + $%d)`, n, n))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (f ContactFilter) page(args []interface{}) (string, []interface{}) {
	var sb strings.Builder
	if f.Limit != nil {
		args = append(args, *f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset != nil {
		args = append(args, *f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func scanContact(row pgx.Row) (*api.Contact, error) {
	var c api.Contact
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Birthday, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresContactRepo) FindAll(ctx context.Context, filter ContactFilter) ([]api.Contact, error) {
	defer r.metrics.RecordDBQuery(ctx, "contacts.find_all", time.Now())
	where, args := filter.where()
	page, args := filter.page(args)
	query := "SELECT " + contactColumns + " FROM contacts" + where + " ORDER BY id" + page

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find contacts: query failed: %w", err)
	}
	defer rows.Close()

	contacts := []api.Contact{}
	for rows.Next() {
		var c api.Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&c.Birthday, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("find contacts: scan failed: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find contacts: rows failed: %w", err)
	}
	return contacts, nil
}

func (r *PostgresContactRepo) FindOne(ctx context.Context, id, userID int64) (*api.Contact, error) {
	defer r.metrics.RecordDBQuery(ctx, "contacts.find_one", time.Now())
	c, err := scanContact(r.pgpool.QueryRow(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id = $1 AND user_id = $2", id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find contact: query failed: %w", err)
	}
	return c, nil
}

func (r *PostgresContactRepo) Create(ctx context.Context, userID int64, body ContactRequest) (*api.Contact, error) {
	defer r.metrics.RecordDBQuery(ctx, "contacts.create", time.Now())
	c, err := scanContact(r.pgpool.QueryRow(ctx,
		`INSERT INTO contacts (first_name, last_name, email, phone, birthday, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+contactColumns,
		body.FirstName, body.LastName, body.Email, body.Phone, body.Birthday, userID))
	if err != nil {
		return nil, fmt.Errorf("create contact: insert failed: %w", err)
	}
	return c, nil
}

func (r *PostgresContactRepo) Update(ctx context.Context, id, userID int64, patch api.ContactUpdate) (*api.Contact, error) {
	defer r.metrics.RecordDBQuery(ctx, "contacts.update", time.Now())
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.Birthday != nil {
		add("birthday", *patch.Birthday)
	}

	if len(sets) == 0 {
		c, err := r.FindOne(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("contact not found: %w", api.ErrNotFound)
		}
		return c, nil
	}

	sets = append(sets, "updated_at = now()")
	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE contacts SET %s WHERE id = $%d AND user_id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), contactColumns)

	c, err := scanContact(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contact not found: %w", api.ErrNotFound)
		}
		return nil, fmt.Errorf("update contact: db update failed: %w", err)
	}
	return c, nil
}

func (r *PostgresContactRepo) Delete(ctx context.Context, id, userID int64) error {
	defer r.metrics.RecordDBQuery(ctx, "contacts.delete", time.Now())
	tag, err := r.pgpool.Exec(ctx, "DELETE FROM contacts WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: db delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact not found: %w", api.ErrNotFound)
	}
	return nil
}
