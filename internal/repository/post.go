package repository

import (
	"context"

	"pixelgram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines persistence operations for posts and their likes.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Find(ctx context.Context, id uint) (*models.Post, error)
	Exists(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error)
	Like(ctx context.Context, userID, postID uint) (bool, error)
	Unlike(ctx context.Context, userID, postID uint) (bool, error)
	LikerIDs(ctx context.Context, postID uint) ([]uint, error)
	DeleteCascade(ctx context.Context, postID uint) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// Create inserts the post. Its author link is the post's own user_id, so
// the author's post set gains the post in the same statement.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return classify(err, "Post", post.ID)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, classify(err, "Post", id)
	}
	posts := []models.Post{post}
	if err := attachLikes(ctx, r.db, posts); err != nil {
		return nil, classify(err, "Post", id)
	}
	return &posts[0], nil
}

// Find loads the bare post row without relations.
func (r *postRepository) Find(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, classify(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, classify(err, "Post", id)
	}
	return count > 0, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	return r.list(ctx, r.db.WithContext(ctx), limit, offset)
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("user_id = ?", authorID), limit, offset)
}

func (r *postRepository) list(ctx context.Context, q *gorm.DB, limit, offset int) ([]models.Post, error) {
	posts := []models.Post{}
	q = r.withDetails(q).Order("created_at DESC, id DESC")
	if err := paginate(q, limit, offset).Find(&posts).Error; err != nil {
		return nil, classify(err, "Post", 0)
	}
	if err := attachLikes(ctx, r.db, posts); err != nil {
		return nil, classify(err, "Post", 0)
	}
	return posts, nil
}

// withDetails preloads the author and the ordered comments with their authors.
func (r *postRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author", publicAuthor).
		Preload("Comments", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		Preload("Comments.Author", publicAuthor)
}

// Like adds userID to the post's like set. It reports whether the set changed.
func (r *postRepository) Like(ctx context.Context, userID, postID uint) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Like{UserID: userID, PostID: postID})
	if res.Error != nil {
		return false, classifyPostRef(res.Error, "Post", postID)
	}
	return res.RowsAffected > 0, nil
}

// Unlike removes userID from the post's like set. It reports whether the set changed.
func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
	if res.Error != nil {
		return false, classify(res.Error, "Post", postID)
	}
	return res.RowsAffected > 0, nil
}

func (r *postRepository) LikerIDs(ctx context.Context, postID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).
		Order("created_at ASC").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, classify(err, "Post", postID)
	}
	return ids, nil
}

// DeleteCascade removes the post with its comments, likes and bookmarks in
// one transaction. Either all rows go or none do.
func (r *postRepository) DeleteCascade(ctx context.Context, postID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, postID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", postID)
		}
		return nil
	})
	return classify(err, "Post", postID)
}
