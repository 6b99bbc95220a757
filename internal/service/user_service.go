package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"clinicbook/internal/database"
	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.UserStore
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserStore, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// SaveUser registers the user or refreshes their profile, keyed by email.
func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUser, user.Email)
	}
	if strings.TrimSpace(user.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidUser)
	}
	return s.repo.CreateOrUpdateUser(ctx, user)
}

func (s *UserService) UpdateUserActivity(ctx context.Context, id int64) error {
	return s.repo.UpdateUserActivity(ctx, id)
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetAllUsers(ctx)
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return u, err
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return u, err
}
