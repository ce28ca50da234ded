package repository

import (
	"context"
	"sync/atomic"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long a failed primary stays benched before
// the next probe.
const recoveryInterval = time.Minute

// FailoverCacheRepository serves from the primary cache until it errors,
// then switches to the fallback and probes the primary periodically.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCacheRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverCacheRepository) GetEligibility(ctx context.Context, userID int64) (*models.EligibilityResult, error) {
	if !r.isDown.Load() {
		result, err := r.primary.GetEligibility(ctx, userID)
		if err == nil {
			return result, nil
		}
		r.markDown(err)
	}

	// Probe the primary after the bench interval.
	if r.isDown.Load() && time.Since(r.lastCheck) > recoveryInterval {
		result, err := r.primary.GetEligibility(ctx, userID)
		if err == nil {
			r.isDown.Store(false)
			return result, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetEligibility(ctx, userID)
}

func (r *FailoverCacheRepository) SetEligibility(ctx context.Context, userID int64, result *models.EligibilityResult, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetEligibility(ctx, userID, result, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetEligibility(ctx, userID, result, ttl)
}

func (r *FailoverCacheRepository) InvalidateEligibility(ctx context.Context, userID int64) error {
	// Invalidation goes to both sides; a stale fallback entry would
	// survive a later failover otherwise.
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.InvalidateEligibility(ctx, userID)
		if primaryErr != nil {
			r.markDown(primaryErr)
		}
	}

	return r.fallback.InvalidateEligibility(ctx, userID)
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
