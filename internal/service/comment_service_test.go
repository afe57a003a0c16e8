package service

import (
	"context"
	"testing"

	"pixelgram/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_AddComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	post := env.createPost(t, alice.ID, "p")

	tests := []struct {
		name string
		in   AddCommentInput
		code string
	}{
		{"Blank text", AddCommentInput{PostID: post.ID, AuthorID: bob.ID, Text: "   "}, models.CodeValidation},
		{"Blank text on missing post", AddCommentInput{PostID: 999, AuthorID: bob.ID, Text: ""}, models.CodeValidation},
		{"Missing post", AddCommentInput{PostID: 999, AuthorID: bob.ID, Text: "hello"}, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.comments.AddComment(ctx, tt.in)
			assert.True(t, models.HasCode(err, tt.code), "got %v", err)
		})
	}

	comment, err := env.comments.AddComment(ctx, AddCommentInput{PostID: post.ID, AuthorID: bob.ID, Text: " great shot "})
	require.NoError(t, err)
	assert.Equal(t, "great shot", comment.Text)
	require.NotNil(t, comment.Author)
	assert.Equal(t, "bob", comment.Author.Username)

	full, err := env.postRepo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, full.Comments, 1)
	assert.Equal(t, comment.ID, full.Comments[0].ID)
}

func TestCommentService_ListComments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	post := env.createPost(t, alice.ID, "p")

	comments, err := env.comments.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)

	for _, text := range []string{"one", "two"} {
		_, err := env.comments.AddComment(ctx, AddCommentInput{PostID: post.ID, AuthorID: alice.ID, Text: text})
		require.NoError(t, err)
	}
	comments, err = env.comments.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "one", comments[0].Text)
	assert.Equal(t, "two", comments[1].Text)

	_, err = env.comments.ListComments(ctx, 999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}
