package service

import (
	"context"
	"testing"

	"clinicbook/internal/database"
	"clinicbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCatalogService(t *testing.T) {
	store := new(mockStore)
	logger := zerolog.Nop()
	svc := NewCatalogService(store, &logger)
	ctx := context.Background()

	t.Run("ListProfessionals", func(t *testing.T) {
		list := []*models.Professional{professional()}
		store.On("ListProfessionals", mock.Anything).Return(list, nil).Once()

		got, err := svc.ListProfessionals(ctx)
		require.NoError(t, err)
		assert.Equal(t, list, got)
	})

	t.Run("GetProfessional", func(t *testing.T) {
		store.On("GetProfessional", mock.Anything, int64(1)).Return(professional(), nil).Once()
		store.On("GetProfessional", mock.Anything, int64(404)).Return(nil, database.ErrNotFound).Once()

		p, err := svc.GetProfessional(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Dr. Ana Costa", p.Name)

		_, err = svc.GetProfessional(ctx, 404)
		assert.ErrorIs(t, err, ErrProfessionalNotFound)
	})

	t.Run("Services", func(t *testing.T) {
		store.On("ListServices", mock.Anything).Return([]*models.Service{consultation()}, nil).Once()
		store.On("GetService", mock.Anything, int64(3)).Return(nil, database.ErrNotFound).Once()

		list, err := svc.ListServices(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = svc.GetService(ctx, 3)
		assert.ErrorIs(t, err, ErrServiceNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}
