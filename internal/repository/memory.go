package repository

import (
	"context"
	"sync"
	"time"

	"clinicbook/internal/domain"
	"clinicbook/internal/models"
)

// rateLimitSweepInterval bounds how often expired rate limit windows are
// dropped from the fallback.
const rateLimitSweepInterval = time.Minute

// MemorySlotCache is the in-process fallback used when Redis is unavailable.
type MemorySlotCache struct {
	mu          sync.Mutex
	slots       map[domain.SlotKey]slotEntry
	generations map[dayKey]int64
	ttl         time.Duration

	rateMu     sync.Mutex
	rateLimits map[int64]*rateLimitEntry
	lastSweep  time.Time

	now func() time.Time
}

type dayKey struct {
	professionalID int64
	date           string
}

type slotEntry struct {
	slots     []models.Slot
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySlotCache(ttl time.Duration) *MemorySlotCache {
	return &MemorySlotCache{
		slots:       make(map[domain.SlotKey]slotEntry),
		generations: make(map[dayKey]int64),
		rateLimits:  make(map[int64]*rateLimitEntry),
		ttl:         ttl,
		now:         time.Now,
	}
}

func (r *MemorySlotCache) SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[dayKey{professionalID, date}], nil
}

func (r *MemorySlotCache) GetSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.slots[key]
	if !ok {
		return nil, false, nil
	}
	if r.now().After(entry.expiresAt) {
		delete(r.slots, key)
		return nil, false, nil
	}
	out := make([]models.Slot, len(entry.slots))
	copy(out, entry.slots)
	return out, true, nil
}

// SetSlots drops the write when the day was invalidated after version was read.
func (r *MemorySlotCache) SetSlots(ctx context.Context, key domain.SlotKey, version int64, slots []models.Slot) error {
	stored := make([]models.Slot, len(slots))
	copy(stored, slots)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[dayKey{key.ProfessionalID, key.Date}] != version {
		return nil
	}
	r.slots[key] = slotEntry{slots: stored, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemorySlotCache) Invalidate(ctx context.Context, professionalID int64, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations[dayKey{professionalID, date}]++
	for key := range r.slots {
		if key.ProfessionalID == professionalID && key.Date == date {
			delete(r.slots, key)
		}
	}
	return nil
}

func (r *MemorySlotCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.rateMu.Lock()
	defer r.rateMu.Unlock()
	if now.Sub(r.lastSweep) >= rateLimitSweepInterval {
		for id, entry := range r.rateLimits {
			if now.After(entry.expiresAt) {
				delete(r.rateLimits, id)
			}
		}
		r.lastSweep = now
	}

	entry, ok := r.rateLimits[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[userID] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
