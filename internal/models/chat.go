package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is the unique direct thread between two users. The pair is
// stored normalized so that lookup ignores participant order.
type Conversation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserLowID  uint      `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"-"`
	UserHighID uint      `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"-"`
	Messages   []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewConversation builds the normalized conversation for a pair.
func NewConversation(a, b uint) Conversation {
	low, high := NormalizePair(a, b)
	return Conversation{UserLowID: low, UserHighID: high}
}

// NormalizePair orders a user pair so (a,b) and (b,a) share one key.
func NormalizePair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Participants returns both user ids.
func (c Conversation) Participants() []uint {
	return []uint{c.UserLowID, c.UserHighID}
}

// BeforeCreate keeps the pair normalized however the row was built.
func (c *Conversation) BeforeCreate(_ *gorm.DB) error {
	c.UserLowID, c.UserHighID = NormalizePair(c.UserLowID, c.UserHighID)
	return nil
}

// Message is an immutable entry appended to a conversation. DeliveryKey
// identifies one send attempt per sender; replaying it yields the stored
// message instead of a second copy.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index;uniqueIndex:idx_messages_sender_delivery_key,priority:1" json:"senderId"`
	ReceiverID     uint      `gorm:"not null;index" json:"receiverId"`
	Text           string    `gorm:"type:text;not null" json:"message"`
	DeliveryKey    string    `gorm:"size:64;uniqueIndex:idx_messages_sender_delivery_key,priority:2" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeUpdate rejects any attempt to modify a stored message.
func (m *Message) BeforeUpdate(_ *gorm.DB) error {
	return ErrMessageImmutable
}
