package service

import (
	"context"
	"strings"

	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/observability"
	"pixelgram/internal/repository"
	"pixelgram/internal/validation"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	notifier *notifications.Notifier
	store    StoreOptions
}

type AddCommentInput struct {
	PostID   uint
	AuthorID uint
	Text     string
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	notifier *notifications.Notifier,
	store StoreOptions,
) *CommentService {
	return &CommentService{comments: comments, posts: posts, notifier: notifier, store: store}
}

// AddComment appends a comment to an existing post. Blank text is rejected
// before the store is touched.
func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (comment *models.Comment, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CommentService", "AddComment",
		observability.Edge{Relation: observability.RelationComment, ActorID: in.AuthorID, PostID: in.PostID})
	defer func() { observability.EndSpan(span, err) }()

	text := strings.TrimSpace(in.Text)
	if err := validation.ValidateText("Text", text, validation.MaxCommentLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	var post *models.Post
	err = s.store.once(ctx, func(ctx context.Context) error {
		var err error
		post, err = s.posts.Find(ctx, in.PostID)
		return err
	})
	if err != nil {
		return nil, err
	}

	comment = &models.Comment{PostID: in.PostID, UserID: in.AuthorID, Text: text}
	err = s.store.once(ctx, func(ctx context.Context) error {
		return s.comments.Create(ctx, comment)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, post.UserID, notifications.Event{
		Type:    notifications.EventCommented,
		ActorID: in.AuthorID,
		PostID:  in.PostID,
		Text:    text,
	})
	return comment, nil
}

// ListComments returns the post's comments in order; an empty list is a
// success. Only a missing post is NotFound.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.store.once(ctx, func(ctx context.Context) error {
		ok, err := s.posts.Exists(ctx, postID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("Post", postID)
		}
		comments, err = s.comments.ListByPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}
