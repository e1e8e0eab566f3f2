package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

func TestCacheRepositoryDisabled(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	assert.False(t, repo.Enabled())
	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "stats:issues", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "stats:issues", map[string]int{"total": 1}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "stats:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}
