package service

import (
	"context"
	"log/slog"
	"strings"

	"pixelgram/internal/cache"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/observability"
	"pixelgram/internal/repository"
	"pixelgram/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type PostService struct {
	posts     repository.PostRepository
	users     repository.UserRepository
	bookmarks repository.BookmarkRepository
	media     MediaStore
	janitor   mediaJanitor
	cache     *cache.Cache
	notifier  *notifications.Notifier
	store     StoreOptions
}

type CreatePostInput struct {
	AuthorID uint
	Caption  string
	Image    *UploadInput
}

type ListPostsInput struct {
	Limit  int
	Offset int
}

func NewPostService(
	posts repository.PostRepository,
	users repository.UserRepository,
	bookmarks repository.BookmarkRepository,
	maintenance repository.MaintenanceRepository,
	media MediaStore,
	profileCache *cache.Cache,
	notifier *notifications.Notifier,
	store StoreOptions,
) *PostService {
	return &PostService{
		posts:     posts,
		users:     users,
		bookmarks: bookmarks,
		media:     media,
		janitor:   mediaJanitor{media: media, refs: maintenance, store: store},
		cache:     profileCache,
		notifier:  notifier,
		store:     store,
	}
}

// CreatePost stores the image and then inserts the post. The insert is
// also what puts the post in its author's post set. When the insert fails
// the stored image is released again.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (post *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "CreatePost",
		observability.Edge{Relation: observability.RelationAuthor, ActorID: in.AuthorID})
	defer func() { observability.EndSpan(span, err) }()

	if in.Image == nil || len(in.Image.Content) == 0 {
		return nil, models.NewValidationError("Image is required")
	}
	caption := strings.TrimSpace(in.Caption)
	if err := validation.ValidateCaption(caption); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if err := s.requireUser(ctx, in.AuthorID); err != nil {
		return nil, err
	}

	upload := *in.Image
	upload.UserID = in.AuthorID
	stored, err := s.media.Store(ctx, upload)
	if err != nil {
		return nil, err
	}

	post = &models.Post{UserID: in.AuthorID, Caption: caption, ImageURL: stored.URL}
	err = s.store.once(ctx, func(ctx context.Context) error {
		return s.posts.Create(ctx, post)
	})
	if err != nil {
		s.janitor.release(ctx, stored.URL)
		return nil, err
	}
	s.cache.InvalidateUsers(ctx, in.AuthorID)

	var full *models.Post
	err = s.store.once(ctx, func(ctx context.Context) error {
		var err error
		full, err = s.posts.GetByID(ctx, post.ID)
		return err
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "reload of created post failed",
			slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
		post.Likes = []uint{}
		post.Comments = []models.Comment{}
		return post, nil
	}
	return full, nil
}

// ListPosts returns posts newest first with authors, comments and likes.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]models.Post, error) {
	var posts []models.Post
	err := s.store.once(ctx, func(ctx context.Context) error {
		var err error
		posts, err = s.posts.List(ctx, in.Limit, in.Offset)
		return err
	})
	return posts, err
}

// ListUserPosts returns the author's posts newest first.
func (s *PostService) ListUserPosts(ctx context.Context, authorID uint, in ListPostsInput) ([]models.Post, error) {
	var posts []models.Post
	err := s.store.once(ctx, func(ctx context.Context) error {
		var err error
		posts, err = s.posts.ListByAuthor(ctx, authorID, in.Limit, in.Offset)
		return err
	})
	return posts, err
}

// LikeOrDislike applies a set insert or delete on the post's likes.
// Repeating the same intent changes nothing.
func (s *PostService) LikeOrDislike(ctx context.Context, actorID, postID uint, intent models.ReactionIntent) (err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "LikeOrDislike",
		observability.Edge{Relation: observability.RelationLike, ActorID: actorID, PostID: postID},
		attribute.String("pixelgram.like.intent", string(intent)))
	defer func() { observability.EndSpan(span, err) }()

	if intent != models.IntentLike && intent != models.IntentDislike {
		return models.NewValidationError("Unknown reaction")
	}

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}

	var changed bool
	err = s.store.retry(ctx, "post."+string(intent), func(ctx context.Context) error {
		var err error
		if intent == models.IntentLike {
			changed, err = s.posts.Like(ctx, actorID, postID)
		} else {
			changed, err = s.posts.Unlike(ctx, actorID, postID)
		}
		return err
	})
	if err != nil {
		return err
	}

	outcome := "unchanged"
	if changed {
		outcome = string(intent)
		s.cache.InvalidateUsers(ctx, post.UserID)
		eventType := notifications.EventPostLiked
		if intent == models.IntentDislike {
			eventType = notifications.EventPostDisliked
		}
		s.notifier.Notify(ctx, post.UserID, notifications.Event{Type: eventType, ActorID: actorID, PostID: postID})
	}
	observability.RelationshipToggles.WithLabelValues("like", outcome).Inc()
	return nil
}

// BookmarkToggle saves or unsaves the post for the actor and reports which.
func (s *PostService) BookmarkToggle(ctx context.Context, actorID, postID uint) (action models.BookmarkAction, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "BookmarkToggle",
		observability.Edge{Relation: observability.RelationBookmark, ActorID: actorID, PostID: postID})
	defer func() { observability.EndSpan(span, err) }()

	if _, err := s.findPost(ctx, postID); err != nil {
		return "", err
	}
	if err := s.requireUser(ctx, actorID); err != nil {
		return "", err
	}

	err = s.store.retry(ctx, "bookmark.toggle", func(ctx context.Context) error {
		var err error
		action, err = s.bookmarks.Toggle(ctx, actorID, postID)
		return err
	})
	if err != nil {
		return "", err
	}

	observability.RelationshipToggles.WithLabelValues("bookmark", string(action)).Inc()
	s.cache.InvalidateUsers(ctx, actorID)
	return action, nil
}

// DeletePost removes the post with its comments, likes and bookmarks.
// The cascade is one transaction, retried as a unit, so no partial
// cascade is ever committed.
func (s *PostService) DeletePost(ctx context.Context, postID, requesterID uint) (err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "DeletePost",
		observability.Edge{Relation: observability.RelationAuthor, ActorID: requesterID, PostID: postID})
	defer func() { observability.EndSpan(span, err) }()

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != requesterID {
		return models.NewForbiddenError("You are not authorized to delete this post")
	}

	var savers []uint
	err = s.store.once(ctx, func(ctx context.Context) error {
		var err error
		savers, err = s.bookmarks.UserIDs(ctx, postID)
		return err
	})
	if err != nil {
		return err
	}

	err = s.store.retry(ctx, "post.delete", func(ctx context.Context) error {
		return s.posts.DeleteCascade(ctx, postID)
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateUsers(ctx, append(savers, post.UserID)...)
	s.janitor.release(ctx, post.ImageURL)
	return nil
}

func (s *PostService) findPost(ctx context.Context, postID uint) (*models.Post, error) {
	var post *models.Post
	err := s.store.once(ctx, func(ctx context.Context) error {
		var err error
		post, err = s.posts.Find(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) requireUser(ctx context.Context, userID uint) error {
	return s.store.once(ctx, func(ctx context.Context) error {
		ok, err := s.users.Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", userID)
		}
		return nil
	})
}
