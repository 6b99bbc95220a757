package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSlotCache serves from primary until it errors, then from fallback.
// The primary is retried once per recoveryInterval. Invalidations the primary
// missed while down are replayed before it serves again.
type FailoverSlotCache struct {
	primary   domain.SlotCache
	fallback  domain.SlotCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64

	mu      sync.Mutex
	pending map[dayKey]struct{}
}

func NewFailoverSlotCache(primary, fallback domain.SlotCache, logger *zerolog.Logger) *FailoverSlotCache {
	return &FailoverSlotCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		pending:  make(map[dayKey]struct{}),
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverSlotCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSlotCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary slot cache failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSlotCache) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary slot cache recovered")
	}
}

// primaryReady reports whether the primary may serve the call, replaying
// missed invalidations first.
func (r *FailoverSlotCache) primaryReady(ctx context.Context) bool {
	if !r.usePrimary() {
		return false
	}
	if err := r.replayPending(ctx); err != nil {
		r.markDown(err)
		return false
	}
	return true
}

func (r *FailoverSlotCache) replayPending(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for day := range r.pending {
		if err := r.primary.Invalidate(ctx, day.professionalID, day.date); err != nil {
			return err
		}
		delete(r.pending, day)
	}
	return nil
}

// Versions handed out by the fallback are encoded as negative numbers so
// SetSlots routes a write to the cache whose version it carries.
func fallbackVersion(v int64) int64 { return -v - 1 }

func (r *FailoverSlotCache) SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error) {
	if r.primaryReady(ctx) {
		v, err := r.primary.SlotVersion(ctx, professionalID, date)
		if err == nil {
			r.markUp()
			return v, nil
		}
		r.markDown(err)
	}
	v, err := r.fallback.SlotVersion(ctx, professionalID, date)
	if err != nil {
		return 0, err
	}
	return fallbackVersion(v), nil
}

func (r *FailoverSlotCache) GetSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool, error) {
	if r.primaryReady(ctx) {
		slots, ok, err := r.primary.GetSlots(ctx, key)
		if err == nil {
			r.markUp()
			return slots, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSlots(ctx, key)
}

// SetSlots stores into the cache the version came from. A write whose cache
// is no longer the active one is dropped.
func (r *FailoverSlotCache) SetSlots(ctx context.Context, key domain.SlotKey, version int64, slots []models.Slot) error {
	if version < 0 {
		return r.fallback.SetSlots(ctx, key, fallbackVersion(version), slots)
	}
	if !r.primaryReady(ctx) {
		return nil
	}
	if err := r.primary.SetSlots(ctx, key, version, slots); err != nil {
		r.markDown(err)
		return nil
	}
	r.markUp()
	return nil
}

// Invalidate clears both caches. The primary is tried even while marked down;
// a failed attempt is remembered and replayed once the primary is back.
func (r *FailoverSlotCache) Invalidate(ctx context.Context, professionalID int64, date string) error {
	fallbackErr := r.fallback.Invalidate(ctx, professionalID, date)

	if err := r.primary.Invalidate(ctx, professionalID, date); err != nil {
		r.mu.Lock()
		r.pending[dayKey{professionalID, date}] = struct{}{}
		r.mu.Unlock()
		r.markDown(err)
	}
	if fallbackErr != nil {
		return fmt.Errorf("fallback slot cache invalidate: %w", fallbackErr)
	}
	return nil
}

func (r *FailoverSlotCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
