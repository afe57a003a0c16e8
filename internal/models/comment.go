package models

import "time"

// Comment is an entry in a post's ordered comment sequence.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	UserID    uint      `gorm:"not null;index" json:"author_id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Author    *User     `gorm:"foreignKey:UserID" json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
