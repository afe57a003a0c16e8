package repository

import (
	"context"
	"time"

	"pixelgram/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository persists direct conversations and their messages.
type ChatRepository interface {
	FindConversation(ctx context.Context, a, b uint) (*models.Conversation, error)
	GetOrCreateConversation(ctx context.Context, a, b uint) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository returns a new ChatRepository implementation.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// FindConversation returns the pair's conversation or (nil, nil) if none exists.
func (r *chatRepository) FindConversation(ctx context.Context, a, b uint) (*models.Conversation, error) {
	low, high := models.NormalizePair(a, b)
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Limit(1).Find(&convs).Error
	if err != nil {
		return nil, classify(err, "Conversation", 0)
	}
	if len(convs) == 0 {
		return nil, nil
	}
	return &convs[0], nil
}

func (r *chatRepository) GetOrCreateConversation(ctx context.Context, a, b uint) (*models.Conversation, error) {
	conv, err := getOrCreateConversation(r.db.WithContext(ctx), a, b)
	if err != nil {
		return nil, classify(err, "Conversation", 0)
	}
	return conv, nil
}

// getOrCreateConversation inserts the normalized pair unless it exists and
// then reads it back. Two racing first messages both land on the row the
// unique pair index lets through.
func getOrCreateConversation(db *gorm.DB, a, b uint) (*models.Conversation, error) {
	conv := models.NewConversation(a, b)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
		DoNothing: true,
	}).Create(&conv).Error
	if err != nil {
		return nil, err
	}
	if conv.ID != 0 {
		return &conv, nil
	}

	var existing models.Conversation
	if err := db.Where("user_low_id = ? AND user_high_id = ?", conv.UserLowID, conv.UserHighID).
		First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// AppendMessage resolves the sender/receiver conversation and appends msg
// to it in one transaction. A msg whose delivery key was already stored for
// the sender is filled from the stored row and nothing is appended.
func (r *chatRepository) AppendMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	if msg.DeliveryKey == "" {
		msg.DeliveryKey = uuid.NewString()
	}
	var conv *models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = getOrCreateConversation(tx, msg.SenderID, msg.ReceiverID)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sender_id"}, {Name: "delivery_key"}},
			DoNothing: true,
		}).Create(msg)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Where("sender_id = ? AND delivery_key = ?", msg.SenderID, msg.DeliveryKey).First(msg).Error
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			UpdateColumn("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, classify(err, "Conversation", 0)
	}
	return conv, nil
}

// ListMessages returns the conversation's messages in append order.
func (r *chatRepository) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("id ASC").Find(&messages).Error
	if err != nil {
		return nil, classify(err, "Conversation", conversationID)
	}
	return messages, nil
}
