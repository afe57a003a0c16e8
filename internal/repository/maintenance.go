package repository

import (
	"context"

	"pixelgram/internal/models"

	"gorm.io/gorm"
)

// SweepReport counts the orphaned rows removed by a sweep.
type SweepReport struct {
	Comments  int64 `json:"comments"`
	Likes     int64 `json:"likes"`
	Bookmarks int64 `json:"bookmarks"`
	Follows   int64 `json:"follows"`
}

// Total is the number of rows removed.
func (r SweepReport) Total() int64 {
	return r.Comments + r.Likes + r.Bookmarks + r.Follows
}

// MaintenanceRepository removes rows left behind by out-of-band deletions.
type MaintenanceRepository interface {
	SweepOrphans(ctx context.Context) (*SweepReport, error)
	MediaInUse(ctx context.Context, url string) (bool, error)
}

type maintenanceRepository struct {
	db *gorm.DB
}

// NewMaintenanceRepository returns a new MaintenanceRepository implementation.
func NewMaintenanceRepository(db *gorm.DB) MaintenanceRepository {
	return &maintenanceRepository{db: db}
}

// SweepOrphans deletes, in one transaction, comments, likes and bookmarks
// whose post is gone and follows, likes and bookmarks whose user is gone.
func (r *maintenanceRepository) SweepOrphans(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		livePosts := tx.Model(&models.Post{}).Select("id")
		liveUsers := tx.Model(&models.User{}).Select("id")

		res := tx.Where("post_id NOT IN (?)", livePosts).Delete(&models.Comment{})
		if res.Error != nil {
			return res.Error
		}
		report.Comments = res.RowsAffected

		res = tx.Where("post_id NOT IN (?) OR user_id NOT IN (?)", livePosts, liveUsers).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		report.Likes = res.RowsAffected

		res = tx.Where("post_id NOT IN (?) OR user_id NOT IN (?)", livePosts, liveUsers).Delete(&models.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		report.Bookmarks = res.RowsAffected

		res = tx.Where("follower_id NOT IN (?) OR following_id NOT IN (?)", liveUsers, liveUsers).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		report.Follows = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, classify(err, "Maintenance", "sweep")
	}
	return report, nil
}

// MediaInUse reports whether any post image or avatar still points at url.
func (r *maintenanceRepository) MediaInUse(ctx context.Context, url string) (bool, error) {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Post{}).Where("image_url = ?", url).Count(&n).Error; err != nil {
		return false, classify(err, "Post", url)
	}
	if n > 0 {
		return true, nil
	}
	if err := db.Model(&models.User{}).Where("profile_picture = ?", url).Count(&n).Error; err != nil {
		return false, classify(err, "User", url)
	}
	return n > 0, nil
}
