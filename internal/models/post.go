package models

import (
	"time"
)

// Post represents an image post. Author is fixed at creation.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Caption   string    `gorm:"type:text" json:"caption"`
	ImageURL  string    `gorm:"not null" json:"image"`
	UserID    uint      `gorm:"not null;index" json:"author_id"`
	Author    *User     `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Comments  []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments"`
	Likes     []uint    `gorm:"-" json:"likes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Like records that UserID likes PostID. The composite key gives set
// semantics; the post reference cascades so a like never outlives its post.
type Like struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	Post      *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionIntent selects the set operation applied by a like toggle.
type ReactionIntent string

const (
	IntentLike    ReactionIntent = "like"
	IntentDislike ReactionIntent = "dislike"
)
