package repository

import (
	"context"
	"errors"

	"pixelgram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository persists the follow graph. One row per (follower,
// following) pair backs both directions of the relationship.
type FollowRepository interface {
	Toggle(ctx context.Context, followerID, followingID uint) (models.FollowAction, error)
	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

// toggleRounds bounds how often a toggle re-reads the pair after losing a
// race to a concurrent follow.
const toggleRounds = 3

// Toggle removes the pair row if present, otherwise inserts it, in one
// transaction. The reported action always matches the row this call changed.
func (r *followRepository) Toggle(ctx context.Context, followerID, followingID uint) (models.FollowAction, error) {
	var action models.FollowAction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for round := 0; round < toggleRounds; round++ {
			res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				action = models.Unfollowed
				return nil
			}

			res = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.Follow{FollowerID: followerID, FollowingID: followingID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				action = models.Followed
				return nil
			}
			// A concurrent follow landed between the delete and the insert.
		}
		return models.NewStoreUnavailableError(errors.New("follow toggle kept losing to concurrent writers"))
	})
	if err != nil {
		return "", classify(err, "Follow", followingID)
	}
	return action, nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	if err != nil {
		return false, classify(err, "Follow", followingID)
	}
	return count > 0, nil
}
