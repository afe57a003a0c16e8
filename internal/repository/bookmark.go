package repository

import (
	"context"

	"pixelgram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookmarkRepository persists each user's saved-post set.
type BookmarkRepository interface {
	Toggle(ctx context.Context, userID, postID uint) (models.BookmarkAction, error)
	PostIDs(ctx context.Context, userID uint) ([]uint, error)
	UserIDs(ctx context.Context, postID uint) ([]uint, error)
}

type bookmarkRepository struct {
	db *gorm.DB
}

// NewBookmarkRepository returns a new BookmarkRepository implementation.
func NewBookmarkRepository(db *gorm.DB) BookmarkRepository {
	return &bookmarkRepository{db: db}
}

// Toggle unsaves the post if it is bookmarked, otherwise saves it.
func (r *bookmarkRepository) Toggle(ctx context.Context, userID, postID uint) (models.BookmarkAction, error) {
	var action models.BookmarkAction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			action = models.Unsaved
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Bookmark{UserID: userID, PostID: postID}).Error; err != nil {
			return err
		}
		action = models.Saved
		return nil
	})
	if err != nil {
		return "", classifyPostRef(err, "Bookmark", postID)
	}
	return action, nil
}

func (r *bookmarkRepository) PostIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.Bookmark{}).Where("user_id = ?", userID).
		Order("created_at ASC").Pluck("post_id", &ids).Error
	if err != nil {
		return nil, classify(err, "Bookmark", userID)
	}
	return ids, nil
}

// UserIDs lists the users who saved postID.
func (r *bookmarkRepository) UserIDs(ctx context.Context, postID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.Bookmark{}).Where("post_id = ?", postID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, classify(err, "Bookmark", postID)
	}
	return ids, nil
}
