// Package repository implements the data access layer for the application.
package repository

import (
	"context"

	"pixelgram/internal/models"

	"gorm.io/gorm"
)

// classify maps a raw store error onto the error taxonomy.
func classify(err error, resource string, id interface{}) error {
	return models.ClassifyStoreError(err, resource, id)
}

// classifyPostRef reports a rejected reference to postID as the post being
// gone; other errors are classified as usual.
func classifyPostRef(err error, resource string, postID uint) error {
	if models.IsForeignKeyViolation(err) {
		return models.NewNotFoundError("Post", postID)
	}
	return classify(err, resource, postID)
}

// paginate applies limit/offset when limit is positive; zero means no limit.
func paginate(db *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	return db
}

// publicAuthor narrows a user to what others see next to a post or comment.
func publicAuthor(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "profile_picture")
}

// attachLikes fills Post.Likes for every post with one query.
func attachLikes(ctx context.Context, db *gorm.DB, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	var likes []models.Like
	if err := db.WithContext(ctx).Where("post_id IN ?", ids).Order("created_at ASC").Find(&likes).Error; err != nil {
		return err
	}

	byPost := make(map[uint][]uint, len(posts))
	for _, l := range likes {
		byPost[l.PostID] = append(byPost[l.PostID], l.UserID)
	}
	for i := range posts {
		posts[i].Likes = byPost[posts[i].ID]
		if posts[i].Likes == nil {
			posts[i].Likes = []uint{}
		}
		if posts[i].Comments == nil {
			posts[i].Comments = []models.Comment{}
		}
	}
	return nil
}
