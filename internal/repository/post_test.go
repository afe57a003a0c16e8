package repository

import (
	"context"
	"testing"

	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewPostRepository(db)
	alice := testutil.CreateUser(t, db, "alice")

	post := &models.Post{UserID: alice.ID, Caption: "sunset", ImageURL: "/media/a.jpg"}
	require.NoError(t, repo.Create(ctx, post))
	require.NotZero(t, post.ID)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "sunset", got.Caption)
	require.NotNil(t, got.Author)
	assert.Equal(t, "alice", got.Author.Username)
	assert.Empty(t, got.Author.Password)
	assert.NotNil(t, got.Likes)
	assert.NotNil(t, got.Comments)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPostRepository_LikeIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewPostRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	post := testutil.CreatePost(t, db, alice.ID, "p")

	changed, err := repo.Like(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.Like(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	likers, err := repo.LikerIDs(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, likers)

	changed, err = repo.Unlike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.Unlike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	likers, err = repo.LikerIDs(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, likers)
}

func TestPostRepository_ListOrdering(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewPostRepository(db)
	comments := NewCommentRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	p1 := testutil.CreatePost(t, db, alice.ID, "one")
	p2 := testutil.CreatePost(t, db, bob.ID, "two")
	p3 := testutil.CreatePost(t, db, alice.ID, "three")
	require.NoError(t, comments.Create(ctx, &models.Comment{PostID: p3.ID, UserID: bob.ID, Text: "first"}))
	require.NoError(t, comments.Create(ctx, &models.Comment{PostID: p3.ID, UserID: alice.ID, Text: "second"}))

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{p3.ID, p2.ID, p1.ID}, []uint{all[0].ID, all[1].ID, all[2].ID})
	require.Len(t, all[0].Comments, 2)
	assert.Equal(t, "first", all[0].Comments[0].Text)
	assert.Equal(t, "bob", all[0].Comments[0].Author.Username)

	page, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, p2.ID, page[0].ID)

	mine, err := repo.ListByAuthor(ctx, alice.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, p3.ID, mine[0].ID)
}

func TestPostRepository_DeleteCascade(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewPostRepository(db)
	users := NewUserRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	post := testutil.CreatePost(t, db, alice.ID, "doomed")
	keep := testutil.CreatePost(t, db, alice.ID, "keep")

	require.NoError(t, db.Create(&models.Comment{PostID: post.ID, UserID: bob.ID, Text: "c1"}).Error)
	require.NoError(t, db.Create(&models.Comment{PostID: keep.ID, UserID: bob.ID, Text: "c2"}).Error)
	_, err := repo.Like(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	_, err = NewBookmarkRepository(db).Toggle(ctx, bob.ID, post.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteCascade(ctx, post.ID))

	var n int64
	db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.Bookmark{}).Where("post_id = ?", post.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.Comment{}).Where("post_id = ?", keep.ID).Count(&n)
	assert.Equal(t, int64(1), n)

	profile, err := users.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, profile.Posts, 1)
	assert.Equal(t, keep.ID, profile.Posts[0].ID)

	err = repo.DeleteCascade(ctx, post.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}
