package service

import (
	"context"
	"strings"

	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/observability"
	"pixelgram/internal/repository"
	"pixelgram/internal/validation"

	"github.com/google/uuid"
)

const maxDeliveryKeyLength = 64

type MessageService struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	notifier *notifications.Notifier
	store    StoreOptions
}

func NewMessageService(
	chats repository.ChatRepository,
	users repository.UserRepository,
	notifier *notifications.Notifier,
	store StoreOptions,
) *MessageService {
	return &MessageService{chats: chats, users: users, notifier: notifier, store: store}
}

// SendMessage appends a message to the sender/receiver conversation,
// creating the conversation on first contact.
func (s *MessageService) SendMessage(ctx context.Context, senderID, receiverID uint, text string) (*models.Message, error) {
	return s.SendMessageOnce(ctx, senderID, receiverID, text, "")
}

// SendMessageOnce is SendMessage keyed by deliveryKey: repeating a key the
// sender already used returns the stored message. An empty key gets a fresh
// one, shared by every store retry of this call, so a retry after a lost
// commit acknowledgement cannot append a duplicate.
func (s *MessageService) SendMessageOnce(ctx context.Context, senderID, receiverID uint, text, deliveryKey string) (msg *models.Message, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "MessageService", "SendMessage",
		observability.Edge{Relation: observability.RelationMessage, ActorID: senderID, SubjectID: receiverID})
	defer func() { observability.EndSpan(span, err) }()

	text = strings.TrimSpace(text)
	if err := validation.ValidateText("Message", text, validation.MaxMessageLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if senderID == receiverID {
		return nil, models.NewValidationError("You cannot message yourself")
	}
	deliveryKey = strings.TrimSpace(deliveryKey)
	if len(deliveryKey) > maxDeliveryKeyLength {
		return nil, models.NewValidationError("Idempotency key is too long")
	}
	if deliveryKey == "" {
		deliveryKey = uuid.NewString()
	}

	err = s.store.once(ctx, func(ctx context.Context) error {
		ok, err := s.users.Exists(ctx, receiverID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", receiverID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.store.retry(ctx, "message.send", func(ctx context.Context) error {
		msg = &models.Message{SenderID: senderID, ReceiverID: receiverID, Text: text, DeliveryKey: deliveryKey}
		_, err := s.chats.AppendMessage(ctx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, receiverID, notifications.Event{
		Type:      notifications.EventMessageReceived,
		ActorID:   senderID,
		MessageID: msg.ID,
		Text:      msg.Text,
	})
	return msg, nil
}

// GetMessages returns the pair's messages in send order. No conversation
// yet means an empty list.
func (s *MessageService) GetMessages(ctx context.Context, userA, userB uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.store.once(ctx, func(ctx context.Context) error {
		conv, err := s.chats.FindConversation(ctx, userA, userB)
		if err != nil || conv == nil {
			return err
		}
		messages, err = s.chats.ListMessages(ctx, conv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
