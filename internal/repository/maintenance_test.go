package repository

import (
	"context"
	"testing"

	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMaintenanceRepository_SweepOrphans(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewMaintenanceRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	post := testutil.CreatePost(t, db, alice.ID, "live")
	gone := testutil.CreatePost(t, db, alice.ID, "gone")

	require.NoError(t, db.Create(&models.Comment{PostID: post.ID, UserID: bob.ID, Text: "kept"}).Error)
	require.NoError(t, db.Create(&models.Comment{PostID: gone.ID, UserID: bob.ID, Text: "orphan"}).Error)
	require.NoError(t, db.Create(&models.Like{UserID: bob.ID, PostID: gone.ID}).Error)
	require.NoError(t, db.Create(&models.Like{UserID: carol.ID, PostID: post.ID}).Error)
	require.NoError(t, db.Create(&models.Bookmark{UserID: bob.ID, PostID: gone.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: bob.ID, FollowingID: alice.ID}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: carol.ID, FollowingID: alice.ID}).Error)

	// Out-of-band deletions that bypass the cascade.
	testutil.WithoutForeignKeys(t, db, func(tx *gorm.DB) {
		require.NoError(t, tx.Delete(&models.Post{}, gone.ID).Error)
	})
	require.NoError(t, db.Delete(&models.User{}, carol.ID).Error)

	report, err := repo.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Comments)
	assert.Equal(t, int64(2), report.Likes)
	assert.Equal(t, int64(1), report.Bookmarks)
	assert.Equal(t, int64(1), report.Follows)
	assert.Equal(t, int64(5), report.Total())

	again, err := repo.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestMaintenanceRepository_MediaInUse(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewMaintenanceRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	post := testutil.CreatePost(t, db, alice.ID, "p")
	require.NoError(t, db.Model(alice).Update("profile_picture", "/media/avatar.jpg").Error)

	tests := []struct {
		url  string
		want bool
	}{
		{post.ImageURL, true},
		{"/media/avatar.jpg", true},
		{"/media/unused.jpg", false},
	}
	for _, tt := range tests {
		got, err := repo.MediaInUse(ctx, tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.url)
	}
}
