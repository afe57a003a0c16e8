package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"pixelgram/internal/models"
	"pixelgram/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyPostRepo fails selected calls before delegating to the real repository.
type flakyPostRepo struct {
	repository.PostRepository
	createErr      error
	deleteFailures int32
	deleteCalls    atomic.Int32
}

func (r *flakyPostRepo) Create(ctx context.Context, post *models.Post) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.PostRepository.Create(ctx, post)
}

func (r *flakyPostRepo) DeleteCascade(ctx context.Context, postID uint) error {
	if r.deleteCalls.Add(1) <= r.deleteFailures {
		return models.NewStoreUnavailableError(errors.New("connection reset"))
	}
	return r.PostRepository.DeleteCascade(ctx, postID)
}

// vanishingPostRepo deletes the post right after a successful lookup, the
// way a DeletePost committing between the check and the write would.
type vanishingPostRepo struct {
	repository.PostRepository
}

func (r *vanishingPostRepo) Find(ctx context.Context, id uint) (*models.Post, error) {
	post, err := r.PostRepository.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.PostRepository.DeleteCascade(ctx, id); err != nil {
		return nil, err
	}
	return post, nil
}

func TestPostService_WritesAgainstDeletedPost(t *testing.T) {
	env := newTestEnv(t, withPostRepo(func(r repository.PostRepository) repository.PostRepository {
		return &vanishingPostRepo{PostRepository: r}
	}))
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	tests := []struct {
		name  string
		write func(postID uint) error
	}{
		{"Comment", func(id uint) error {
			_, err := env.comments.AddComment(ctx, AddCommentInput{PostID: id, AuthorID: bob.ID, Text: "late"})
			return err
		}},
		{"Like", func(id uint) error {
			return env.posts.LikeOrDislike(ctx, bob.ID, id, models.IntentLike)
		}},
		{"Bookmark", func(id uint) error {
			_, err := env.posts.BookmarkToggle(ctx, bob.ID, id)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := env.createPost(t, alice.ID, tt.name)

			err := tt.write(post.ID)
			assert.True(t, models.HasCode(err, models.CodeNotFound), "got %v", err)

			for _, model := range []interface{}{&models.Comment{}, &models.Like{}, &models.Bookmark{}} {
				var n int64
				require.NoError(t, env.db.Model(model).Where("post_id = ?", post.ID).Count(&n).Error)
				assert.Zero(t, n, "%T", model)
			}
		})
	}
}

func TestPostService_CreatePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	_, err := env.posts.CreatePost(ctx, CreatePostInput{AuthorID: alice.ID, Caption: "no image"})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = env.posts.CreatePost(ctx, CreatePostInput{
		AuthorID: 999,
		Image:    &UploadInput{Content: []byte("x")},
	})
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	assert.Empty(t, env.media.stored, "nothing is stored for a missing author")

	post := env.createPost(t, alice.ID, "sunset")
	assert.Equal(t, alice.ID, post.UserID)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.Username)
	assert.Equal(t, env.media.stored[0], post.ImageURL)

	profile, err := env.users.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, profile.Posts, 1)
	assert.Equal(t, post.ID, profile.Posts[0].ID)
}

func TestPostService_CreatePost_InsertFailureReleasesMedia(t *testing.T) {
	flaky := &flakyPostRepo{createErr: models.NewStoreUnavailableError(errors.New("db down"))}
	env := newTestEnv(t, withPostRepo(func(r repository.PostRepository) repository.PostRepository {
		flaky.PostRepository = r
		return flaky
	}))
	alice := env.register(t, "alice")

	_, err := env.posts.CreatePost(context.Background(), CreatePostInput{
		AuthorID: alice.ID,
		Image:    &UploadInput{Content: []byte("img")},
	})
	assert.True(t, models.IsRetryable(err))
	require.Len(t, env.media.stored, 1)
	assert.Equal(t, env.media.stored, env.media.removed)
}

func TestPostService_LikeOrDislike_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.createPost(t, alice.ID, "p")

	likes := func() []uint {
		p, err := env.postRepo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		return p.Likes
	}

	require.NoError(t, env.posts.LikeOrDislike(ctx, bob.ID, post.ID, models.IntentLike))
	require.NoError(t, env.posts.LikeOrDislike(ctx, bob.ID, post.ID, models.IntentLike))
	assert.Equal(t, []uint{bob.ID}, likes())

	require.NoError(t, env.posts.LikeOrDislike(ctx, bob.ID, post.ID, models.IntentDislike))
	require.NoError(t, env.posts.LikeOrDislike(ctx, bob.ID, post.ID, models.IntentDislike))
	assert.Empty(t, likes())

	err := env.posts.LikeOrDislike(ctx, bob.ID, 999, models.IntentLike)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPostService_BookmarkToggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	post := env.createPost(t, alice.ID, "p")

	action, err := env.posts.BookmarkToggle(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Saved, action)

	profile, err := env.users.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, profile.Bookmarks)

	action, err = env.posts.BookmarkToggle(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Unsaved, action)

	_, err = env.posts.BookmarkToggle(ctx, alice.ID, 999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	_, err = env.posts.BookmarkToggle(ctx, 999, post.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPostService_DeletePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.createPost(t, alice.ID, "p")
	other := env.createPost(t, alice.ID, "other")

	_, err := env.comments.AddComment(ctx, AddCommentInput{PostID: post.ID, AuthorID: bob.ID, Text: "nice"})
	require.NoError(t, err)
	_, err = env.comments.AddComment(ctx, AddCommentInput{PostID: other.ID, AuthorID: bob.ID, Text: "kept"})
	require.NoError(t, err)
	_, err = env.posts.BookmarkToggle(ctx, bob.ID, post.ID)
	require.NoError(t, err)

	t.Run("Forbidden for non-author", func(t *testing.T) {
		err := env.posts.DeletePost(ctx, post.ID, bob.ID)
		assert.True(t, models.HasCode(err, models.CodeForbidden))
		_, err = env.postRepo.GetByID(ctx, post.ID)
		assert.NoError(t, err, "post still exists")
	})

	t.Run("Author deletes with cascade", func(t *testing.T) {
		require.NoError(t, env.posts.DeletePost(ctx, post.ID, alice.ID))

		profile, err := env.users.GetProfile(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, profile.Posts, 1)
		assert.Equal(t, other.ID, profile.Posts[0].ID)

		var n int64
		env.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&n)
		assert.Zero(t, n, "no comment references the deleted post")

		saver, err := env.users.GetProfile(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, saver.Bookmarks)

		assert.Contains(t, env.media.removed, post.ImageURL)
		assert.NotContains(t, env.media.removed, other.ImageURL)
	})

	t.Run("Missing post", func(t *testing.T) {
		err := env.posts.DeletePost(ctx, post.ID, alice.ID)
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})
}

func TestPostService_DeletePost_RetriesTransientFailure(t *testing.T) {
	flaky := &flakyPostRepo{deleteFailures: 2}
	env := newTestEnv(t, withPostRepo(func(r repository.PostRepository) repository.PostRepository {
		flaky.PostRepository = r
		return flaky
	}))
	ctx := context.Background()
	alice := env.register(t, "alice")
	post := env.createPost(t, alice.ID, "p")

	require.NoError(t, env.posts.DeletePost(ctx, post.ID, alice.ID))
	assert.Equal(t, int32(3), flaky.deleteCalls.Load())

	_, err := env.postRepo.GetByID(ctx, post.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPostService_DeletePost_GivesUpAfterAttempts(t *testing.T) {
	flaky := &flakyPostRepo{deleteFailures: 10}
	env := newTestEnv(t, withPostRepo(func(r repository.PostRepository) repository.PostRepository {
		flaky.PostRepository = r
		return flaky
	}))
	ctx := context.Background()
	alice := env.register(t, "alice")
	post := env.createPost(t, alice.ID, "p")

	err := env.posts.DeletePost(ctx, post.ID, alice.ID)
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, int32(3), flaky.deleteCalls.Load())

	_, err = env.postRepo.GetByID(ctx, post.ID)
	assert.NoError(t, err, "a failed cascade leaves the post intact")
}

func TestPostService_ListPosts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	first := env.createPost(t, alice.ID, "first")
	second := env.createPost(t, bob.ID, "second")

	all, err := env.posts.ListPosts(ctx, ListPostsInput{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	mine, err := env.posts.ListUserPosts(ctx, alice.ID, ListPostsInput{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}
