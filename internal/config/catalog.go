package config

import (
	"fmt"
	"os"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"gopkg.in/yaml.v2"
)

// Catalog is the reference data seeded into the database on start.
type Catalog struct {
	Professionals []CatalogProfessional `yaml:"professionals"`
	Services      []CatalogService      `yaml:"services"`
}

type CatalogProfessional struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	Specialty   string  `yaml:"specialty"`
	Bio         string  `yaml:"bio"`
	WorkStart   string  `yaml:"work_start"`
	WorkEnd     string  `yaml:"work_end"`
	Rating      float64 `yaml:"rating"`
	ReviewCount int     `yaml:"review_count"`
	Inactive    bool    `yaml:"inactive"`
}

type CatalogService struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Inactive        bool   `yaml:"inactive"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &catalog, nil
}

// Models validates the catalog and converts it to database records.
func (c *Catalog) Models() ([]models.Professional, []models.Service, error) {
	professionals := make([]models.Professional, 0, len(c.Professionals))
	seen := make(map[int64]bool)
	for _, p := range c.Professionals {
		if p.ID <= 0 {
			return nil, nil, fmt.Errorf("professional '%s' has invalid ID %d", p.Name, p.ID)
		}
		if seen[p.ID] {
			return nil, nil, fmt.Errorf("duplicate professional ID found: %d", p.ID)
		}
		seen[p.ID] = true

		window, err := scheduling.ParseInterval(p.WorkStart, p.WorkEnd)
		if err != nil {
			return nil, nil, fmt.Errorf("professional '%s' working hours: %w", p.Name, err)
		}
		professionals = append(professionals, models.Professional{
			ID:          p.ID,
			Name:        p.Name,
			Specialty:   p.Specialty,
			Bio:         p.Bio,
			WorkStart:   window.Start,
			WorkEnd:     window.End,
			Rating:      p.Rating,
			ReviewCount: p.ReviewCount,
			IsActive:    !p.Inactive,
		})
	}

	services := make([]models.Service, 0, len(c.Services))
	seen = make(map[int64]bool)
	for _, s := range c.Services {
		if s.ID <= 0 {
			return nil, nil, fmt.Errorf("service '%s' has invalid ID %d", s.Name, s.ID)
		}
		if seen[s.ID] {
			return nil, nil, fmt.Errorf("duplicate service ID found: %d", s.ID)
		}
		seen[s.ID] = true
		if s.DurationMinutes <= 0 {
			return nil, nil, fmt.Errorf("service '%s': %w", s.Name, scheduling.ErrInvalidDuration)
		}
		services = append(services, models.Service{
			ID:              s.ID,
			Name:            s.Name,
			Description:     s.Description,
			DurationMinutes: s.DurationMinutes,
			IsActive:        !s.Inactive,
		})
	}

	return professionals, services, nil
}
