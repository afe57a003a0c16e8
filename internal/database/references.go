package database

import (
	"context"
	"fmt"

	"pixelgram/internal/models"

	"gorm.io/gorm"
)

// postReference is a table whose post_id must name a live post.
type postReference struct {
	table      string
	model      interface{}
	constraint string
}

// Constraint names match what AutoMigrate derives from the model tags, so
// the SQL and auto paths converge on the same schema.
var postReferences = []postReference{
	{table: "comments", model: &models.Comment{}, constraint: "fk_posts_comments"},
	{table: "likes", model: &models.Like{}, constraint: "fk_likes_post"},
	{table: "bookmarks", model: &models.Bookmark{}, constraint: "fk_bookmarks_post"},
}

// ReferenceStatus describes one table's references to posts.
type ReferenceStatus struct {
	Table         string
	HasConstraint bool
	Orphans       int64
}

// Healthy reports whether the table is protected and clean.
func (s ReferenceStatus) Healthy() bool {
	return s.HasConstraint && s.Orphans == 0
}

// CheckPostReferences reports, per table, whether the cascading post
// constraint exists and how many rows point at a missing post.
func CheckPostReferences(ctx context.Context, db *gorm.DB) ([]ReferenceStatus, error) {
	db = db.WithContext(ctx)
	out := make([]ReferenceStatus, 0, len(postReferences))
	for _, ref := range postReferences {
		var orphans int64
		err := db.Model(ref.model).
			Where("post_id NOT IN (?)", db.Model(&models.Post{}).Select("id")).
			Count(&orphans).Error
		if err != nil {
			return nil, fmt.Errorf("count orphaned %s: %w", ref.table, err)
		}
		out = append(out, ReferenceStatus{
			Table:         ref.table,
			HasConstraint: db.Migrator().HasConstraint(ref.model, ref.constraint),
			Orphans:       orphans,
		})
	}
	return out, nil
}
