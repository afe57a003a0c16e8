package service

import (
	"context"
	"testing"

	"pixelgram/internal/cache"
	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRepairService_Sweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.createPost(t, alice.ID, "p")

	_, err := env.comments.AddComment(ctx, AddCommentInput{PostID: post.ID, AuthorID: bob.ID, Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, env.posts.LikeOrDislike(ctx, bob.ID, post.ID, models.IntentLike))
	_, err = env.users.GetProfile(ctx, alice.ID)
	require.NoError(t, err)

	// Remove the post behind the service's back.
	testutil.WithoutForeignKeys(t, env.db, func(tx *gorm.DB) {
		require.NoError(t, tx.Delete(&models.Post{}, post.ID).Error)
	})

	report, err := env.repair.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Comments)
	assert.Equal(t, int64(1), report.Likes)
	assert.False(t, env.redis.Exists(cache.UserKey(alice.ID)))

	report, err = env.repair.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total())
}
