package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"clinicbook/internal/config"
	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]models.Slot), args.Bool(1), args.Error(2)
}

func (m *mockCache) SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error) {
	args := m.Called(ctx, professionalID, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCache) SetSlots(ctx context.Context, key domain.SlotKey, version int64, slots []models.Slot) error {
	return m.Called(ctx, key, version, slots).Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, professionalID int64, date string) error {
	return m.Called(ctx, professionalID, date).Error(0)
}

func (m *mockCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverSlotCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSlotCache(primary, fallback, &logger)
	ctx := context.Background()
	key := domain.SlotKey{ProfessionalID: 1, Date: "2030-01-15", ServiceID: 1}
	slots := []models.Slot{{Start: 540, End: 570}}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("GetSlots", ctx, key).Return(slots, true, nil).Once()

		got, ok, err := repo.GetSlots(ctx, key)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, slots, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("GetSlots", ctx, key).Return(nil, false, errors.New("fail")).Once()
		fallback.On("GetSlots", ctx, key).Return(slots, true, nil).Once()

		got, ok, err := repo.GetSlots(ctx, key)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, slots, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		fallback.On("SlotVersion", ctx, int64(1), "2030-01-15").Return(int64(3), nil).Once()
		fallback.On("SetSlots", ctx, key, int64(3), slots).Return(nil).Once()

		v, err := repo.SlotVersion(ctx, 1, "2030-01-15")
		assert.NoError(t, err)
		assert.Negative(t, v, "fallback versions are tagged")
		assert.NoError(t, repo.SetSlots(ctx, key, v, slots))
		primary.AssertNotCalled(t, "SlotVersion", ctx, int64(1), "2030-01-15")
		primary.AssertNotCalled(t, "SetSlots", ctx, key, int64(3), slots)
		fallback.AssertExpectations(t)
	})

	t.Run("PrimaryVersionWhileDownIsDropped", func(t *testing.T) {
		assert.NoError(t, repo.SetSlots(ctx, key, 7, slots))
		primary.AssertNotCalled(t, "SetSlots", ctx, key, int64(7), slots)
		fallback.AssertNotCalled(t, "SetSlots", ctx, key, int64(7), slots)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("CheckRateLimit", ctx, int64(3), 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 3, 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("CheckRateLimit", ctx, int64(33), 10, time.Minute).Return(false, errors.New("still fail")).Once()
		fallback.On("CheckRateLimit", ctx, int64(33), 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 33, 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("Invalidate", ctx, int64(1), "2030-01-15").Return(nil).Once()
		primary.On("Invalidate", ctx, int64(1), "2030-01-15").Return(nil).Once()

		assert.NoError(t, repo.Invalidate(ctx, 1, "2030-01-15"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidatePrimaryFailure", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("Invalidate", ctx, int64(2), "2030-01-15").Return(nil).Once()
		primary.On("Invalidate", ctx, int64(2), "2030-01-15").Return(errors.New("fail")).Once()

		assert.NoError(t, repo.Invalidate(ctx, 2, "2030-01-15"))
		assert.True(t, repo.isDown.Load())
		assert.Contains(t, repo.pending, dayKey{2, "2030-01-15"})
	})

	t.Run("InvalidateWhileDownTriesPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().UnixNano())
		fallback.On("Invalidate", ctx, int64(4), "2030-01-15").Return(nil).Once()
		primary.On("Invalidate", ctx, int64(4), "2030-01-15").Return(nil).Once()

		assert.NoError(t, repo.Invalidate(ctx, 4, "2030-01-15"))
		primary.AssertExpectations(t)
		assert.NotContains(t, repo.pending, dayKey{4, "2030-01-15"})
	})

	t.Run("RecoveryReplaysMissedInvalidations", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("Invalidate", ctx, int64(2), "2030-01-15").Return(nil).Once()
		primary.On("GetSlots", ctx, key).Return(nil, false, nil).Once()

		_, ok, err := repo.GetSlots(ctx, key)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, repo.isDown.Load())
		assert.Empty(t, repo.pending)
		primary.AssertExpectations(t)
	})
}

func TestFailoverSlotCacheRedisOutage(t *testing.T) {
	s := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	logger := zerolog.New(io.Discard)
	repo := NewFailoverSlotCache(NewRedisSlotCache(client, 5*time.Minute), NewMemorySlotCache(5*time.Minute), &logger)
	ctx := context.Background()
	key := domain.SlotKey{ProfessionalID: 1, Date: "2030-01-15", ServiceID: 2}

	v, err := repo.SlotVersion(ctx, 1, "2030-01-15")
	require.NoError(t, err)
	require.NoError(t, repo.SetSlots(ctx, key, v, []models.Slot{{Start: 540, End: 570}}))
	_, ok, err := repo.GetSlots(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// a cancellation lands while Redis is unreachable
	s.Close()
	require.NoError(t, repo.Invalidate(ctx, 1, "2030-01-15"))
	assert.True(t, repo.isDown.Load())

	require.NoError(t, s.Restart())
	repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	_, ok, err = repo.GetSlots(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "the list cached before the outage must not be served")
	assert.False(t, repo.isDown.Load())
	assert.Equal(t, "1", mustGet(t, s, versionKey(1, "2030-01-15")))
}

func mustGet(t *testing.T, s *miniredis.Miniredis, key string) string {
	t.Helper()
	val, err := s.Get(key)
	require.NoError(t, err)
	return val
}
