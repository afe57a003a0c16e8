// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account. The relationship sets (followers, followings,
// bookmarks, posts) live in their own tables and are filled on read.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"uniqueIndex;not null" json:"username"`
	Email          string         `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Password       string         `gorm:"not null" json:"-"`
	Bio            string         `json:"bio"`
	Gender         string         `gorm:"type:varchar(16)" json:"gender"`
	ProfilePicture string         `json:"profilePicture"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Posts      []Post `gorm:"foreignKey:UserID" json:"posts"`
	Followers  []uint `gorm:"-" json:"followers"`
	Followings []uint `gorm:"-" json:"followings"`
	Bookmarks  []uint `gorm:"-" json:"bookmarks"`
}

// Follow is the single row recording that FollowerID follows FollowingID.
// It backs both FollowerID's followings and FollowingID's followers.
type Follow struct {
	FollowerID  uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FollowingID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

// Bookmark records a post saved by a user. It is dropped with the post.
type Bookmark struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	Post      *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// FollowAction is the branch taken by a follow toggle.
type FollowAction string

const (
	Followed   FollowAction = "followed"
	Unfollowed FollowAction = "unfollowed"
)

// BookmarkAction is the branch taken by a bookmark toggle.
type BookmarkAction string

const (
	Saved   BookmarkAction = "saved"
	Unsaved BookmarkAction = "unsaved"
)
