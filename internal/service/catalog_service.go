package service

import (
	"context"
	"errors"
	"fmt"

	"clinicbook/internal/database"
	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService exposes the read-only professional and service catalog.
type CatalogService struct {
	repo   domain.CatalogStore
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.CatalogStore, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

// ListProfessionals returns active professionals, best rated first.
func (s *CatalogService) ListProfessionals(ctx context.Context) ([]*models.Professional, error) {
	return s.repo.ListProfessionals(ctx)
}

func (s *CatalogService) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	p, err := s.repo.GetProfessional(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProfessionalNotFound, id)
	}
	return p, err
}

func (s *CatalogService) ListServices(ctx context.Context) ([]*models.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *CatalogService) GetService(ctx context.Context, id int64) (*models.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrServiceNotFound, id)
	}
	return svc, err
}
