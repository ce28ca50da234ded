package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRepository(t *testing.T) {
	repo := NewMemoryCacheRepository()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		result := &models.EligibilityResult{UserID: 1, CanBook: true}
		require.NoError(t, repo.SetEligibility(ctx, 1, result, time.Minute))

		got, err := repo.GetEligibility(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, result, got)
	})

	t.Run("Miss", func(t *testing.T) {
		got, err := repo.GetEligibility(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		result := &models.EligibilityResult{UserID: 2, CanBook: true}
		require.NoError(t, repo.SetEligibility(ctx, 2, result, -time.Second))

		got, err := repo.GetEligibility(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		result := &models.EligibilityResult{UserID: 3, CanBook: false}
		require.NoError(t, repo.SetEligibility(ctx, 3, result, time.Minute))
		require.NoError(t, repo.InvalidateEligibility(ctx, 3))

		got, err := repo.GetEligibility(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "api:1"
		allowed, err := repo.CheckRateLimit(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.True(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Minute)
		assert.False(t, allowed)
	})

	t.Run("RateLimitConcurrent", func(t *testing.T) {
		key := "api:3"
		const limit = 40
		var denied atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < 2*limit; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed, err := repo.CheckRateLimit(ctx, key, limit, time.Minute)
				assert.NoError(t, err)
				if !allowed {
					denied.Add(1)
				}
			}()
		}
		wg.Wait()

		// Exactly half the requests exceed the budget.
		assert.Equal(t, int64(limit), denied.Load())
	})

	t.Run("RateLimitWindowReset", func(t *testing.T) {
		key := "api:2"
		// Window already expired: the counter restarts.
		allowed, err := repo.CheckRateLimit(ctx, key, 1, -time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}
