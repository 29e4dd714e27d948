package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkravets/contacts-api/internal/api"
)

var _ ContactService = (*ContactServiceImpl)(nil)

// ContactService is the contact book of a single authenticated user. Every
// call is scoped by userID, so a contact owned by someone else behaves
// exactly like a contact that does not exist.
type ContactService interface {
	List(ctx context.Context, userID int64, filter ContactFilter) ([]api.Contact, error)
	Get(ctx context.Context, userID, contactID int64) (*api.Contact, error)
	Create(ctx context.Context, userID int64, body ContactRequest) (*api.Contact, error)
	Update(ctx context.Context, userID, contactID int64, patch api.ContactUpdate) (*api.Contact, error)
	Delete(ctx context.Context, userID, contactID int64) error
}

type ContactServiceImpl struct {
	logger *slog.Logger
	repo   ContactRepo
}

func NewContactService(repo ContactRepo, logger *slog.Logger) *ContactServiceImpl {
	return &ContactServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ContactServiceImpl) List(ctx context.Context, userID int64, filter ContactFilter) ([]api.Contact, error) {
	filter.UserID = userID
	return s.repo.FindAll(ctx, filter)
}

func (s *ContactServiceImpl) Get(ctx context.Context, userID, contactID int64) (*api.Contact, error) {
	c, err := s.repo.FindOne(ctx, contactID, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("Contact not found: %w", api.ErrNotFound)
	}
	return c, nil
}

func (s *ContactServiceImpl) Create(ctx context.Context, userID int64, body ContactRequest) (*api.Contact, error) {
	c, err := s.repo.Create(ctx, userID, body)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "contact created", slog.Int64("contact_id", c.ID), slog.Int64("user_id", userID))
	return c, nil
}

func (s *ContactServiceImpl) Update(ctx context.Context, userID, contactID int64, patch api.ContactUpdate) (*api.Contact, error) {
	c, err := s.repo.Update(ctx, contactID, userID, patch)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("Contact not found: %w", api.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (s *ContactServiceImpl) Delete(ctx context.Context, userID, contactID int64) error {
	err := s.repo.Delete(ctx, contactID, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("Contact not found: %w", api.ErrNotFound)
		}
		return err
	}
	return nil
}
