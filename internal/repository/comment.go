package repository

import (
	"context"

	"pixelgram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create inserts the comment and loads its author for the response.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(comment).Error; err != nil {
		return classifyPostRef(err, "Comment", comment.PostID)
	}
	var author models.User
	if err := publicAuthor(db).First(&author, comment.UserID).Error; err != nil {
		return classify(err, "User", comment.UserID)
	}
	comment.Author = &author
	return nil
}

// ListByPost returns the post's comments in append order.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := r.db.WithContext(ctx).Preload("Author", publicAuthor).
		Where("post_id = ?", postID).Order("id ASC").Find(&comments).Error
	if err != nil {
		return nil, classify(err, "Comment", postID)
	}
	return comments, nil
}
