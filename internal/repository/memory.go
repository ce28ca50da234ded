package repository

import (
	"context"
	"sync"
	"time"

	"courtbook/internal/models"
)

// MemoryCacheRepository is the in-process fallback cache. Entries carry
// their own expiry; there is no background sweeper.
type MemoryCacheRepository struct {
	eligibility sync.Map

	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{rateLimits: make(map[string]*rateLimitEntry)}
}

type eligibilityEntry struct {
	result    *models.EligibilityResult
	expiresAt time.Time
}

func (r *MemoryCacheRepository) GetEligibility(ctx context.Context, userID int64) (*models.EligibilityResult, error) {
	val, ok := r.eligibility.Load(userID)
	if !ok {
		return nil, nil
	}
	entry := val.(*eligibilityEntry)
	if time.Now().After(entry.expiresAt) {
		r.eligibility.Delete(userID)
		return nil, nil
	}
	return entry.result, nil
}

func (r *MemoryCacheRepository) SetEligibility(ctx context.Context, userID int64, result *models.EligibilityResult, ttl time.Duration) error {
	r.eligibility.Store(userID, &eligibilityEntry{
		result:    result,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemoryCacheRepository) InvalidateEligibility(ctx context.Context, userID int64) error {
	r.eligibility.Delete(userID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
		r.rateLimits[key] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
