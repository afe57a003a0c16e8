package bootstrap

import (
	"context"
	"testing"

	"pixelgram/internal/config"
	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDemoData(t *testing.T) {
	ctx := context.Background()

	t.Run("Seeds an empty development store once", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		cfg := &config.Config{Env: "development"}

		require.NoError(t, ensureDemoData(ctx, cfg, db))
		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Positive(t, n)

		require.NoError(t, ensureDemoData(ctx, cfg, db))
		var again int64
		require.NoError(t, db.Model(&models.User{}).Count(&again).Error)
		assert.Equal(t, n, again)
	})

	t.Run("Never seeds outside development", func(t *testing.T) {
		db := testutil.NewTestDB(t)
		require.NoError(t, ensureDemoData(ctx, &config.Config{Env: "production"}, db))
		var n int64
		require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
		assert.Zero(t, n)
	})
}
