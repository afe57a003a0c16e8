package repository

import (
	"context"
	"sync"
	"testing"

	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_ParticipantOrderIndependent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewChatRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	conv, err := repo.FindConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, conv)

	c1, err := repo.AppendMessage(ctx, &models.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "hi"})
	require.NoError(t, err)
	c2, err := repo.AppendMessage(ctx, &models.Message{SenderID: bob.ID, ReceiverID: alice.ID, Text: "hey"})
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	found, err := repo.FindConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, c1.ID, found.ID)
	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, found.Participants())

	msgs, err := repo.ListMessages(ctx, c1.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "hey", msgs[1].Text)
}

func TestChatRepository_ConcurrentFirstContact(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewChatRepository(db)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &models.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "ping"}
			if i%2 == 1 {
				msg.SenderID, msg.ReceiverID = bob.ID, alice.ID
			}
			_, err := repo.AppendMessage(ctx, msg)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var convs int64
	require.NoError(t, db.Model(&models.Conversation{}).Count(&convs).Error)
	assert.Equal(t, int64(1), convs)

	var msgs int64
	require.NoError(t, db.Model(&models.Message{}).Count(&msgs).Error)
	assert.Equal(t, int64(n), msgs)
}

func TestChatRepository_GetOrCreateConversation(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewChatRepository(db)

	a, err := repo.GetOrCreateConversation(ctx, 7, 3)
	require.NoError(t, err)
	b, err := repo.GetOrCreateConversation(ctx, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, uint(3), b.UserLowID)
	assert.Equal(t, uint(7), b.UserHighID)
}

func TestMessage_Immutable(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewChatRepository(db)

	msg := &models.Message{SenderID: 1, ReceiverID: 2, Text: "original"}
	_, err := repo.AppendMessage(ctx, msg)
	require.NoError(t, err)

	msg.Text = "edited"
	err = db.Save(msg).Error
	assert.ErrorIs(t, err, models.ErrMessageImmutable)

	msgs, err := repo.ListMessages(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "original", msgs[0].Text)
}

func TestAppendMessage_RepeatedDeliveryKey(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewChatRepository(db)

	first := &models.Message{SenderID: 1, ReceiverID: 2, Text: "once", DeliveryKey: "abc"}
	_, err := repo.AppendMessage(ctx, first)
	require.NoError(t, err)

	replay := &models.Message{SenderID: 1, ReceiverID: 2, Text: "once", DeliveryKey: "abc"}
	_, err = repo.AppendMessage(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, first.ConversationID, replay.ConversationID)

	unkeyed := &models.Message{SenderID: 1, ReceiverID: 2, Text: "twice"}
	_, err = repo.AppendMessage(ctx, unkeyed)
	require.NoError(t, err)
	assert.NotEmpty(t, unkeyed.DeliveryKey)

	msgs, err := repo.ListMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
