package service

import (
	"context"
	"testing"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartConversationCreates(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)

	conversation, err := f.chat.StartConversation(context.Background(), post.ID.Hex(), "finder", "Hi, I think I found your bag")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"finder", "owner"}, conversation.ParticipantIDs)
	assert.Equal(t, post.Title, conversation.PostTitle)
	require.Len(t, conversation.Participants, 2)

	stored, err := f.conversations.Get(context.Background(), conversation.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "Hi, I think I found your bag", stored.LastMessage.Text)
	assert.Equal(t, 1, stored.UnreadCounts["owner"])
	assert.Equal(t, 0, stored.UnreadCounts["finder"])
}

func TestStartConversationRejectsSelfChat(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	post := f.seedPost("owner", model.PostTypeLost)

	_, err := f.chat.StartConversation(context.Background(), post.ID.Hex(), "owner", "hello me")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestStartConversationReusesExisting(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)

	first, err := f.chat.StartConversation(context.Background(), post.ID.Hex(), "finder", "")
	require.NoError(t, err)

	// post drifted since the conversation snapshot was taken
	f.posts.byID[post.ID.Hex()].Title = "Blue backpack (updated)"

	second, err := f.chat.StartConversation(context.Background(), post.ID.Hex(), "finder", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := f.conversations.Get(context.Background(), first.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Blue backpack (updated)", stored.PostTitle)

	count, err := f.conversations.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStartConversationBatchesLookupAndCreate(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)

	var batches int
	txn := func(ctx context.Context, fn func(context.Context) error) error {
		batches++
		return fn(ctx)
	}
	chat := NewChatService(f.conversations, f.messages, f.posts, f.users,
		f.evidence, f.notifier, txn, zap.NewNop())

	first, err := chat.StartConversation(context.Background(), post.ID.Hex(), "finder", "")
	require.NoError(t, err)
	assert.Equal(t, 1, batches)

	// the dedup lookup and the create share one batch, so a repeat call
	// lands on the existing conversation instead of racing past it
	second, err := chat.StartConversation(context.Background(), post.ID.Hex(), "finder", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, batches)

	count, err := f.conversations.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSendMessageUpdatesConversation(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	msg, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", "still have it")
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeText, msg.MessageType)
	assert.Equal(t, []string{"finder"}, msg.ReadBy)

	stored, err := f.conversations.Get(context.Background(), conversation.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "still have it", stored.LastMessage.Text)
	assert.Equal(t, 1, stored.UnreadCounts["owner"])
	assert.Equal(t, 0, stored.UnreadCounts["finder"])

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, []string{"owner"}, f.notifier.messages[0].RecipientIDs)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	f.seedUser("stranger", "Stranger")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	_, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "stranger", "let me in")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	msg, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", "oops")
	require.NoError(t, err)

	err = f.chat.DeleteMessage(context.Background(), conversation.ID.Hex(), msg.ID.Hex(), "owner")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = f.chat.DeleteMessage(context.Background(), conversation.ID.Hex(), msg.ID.Hex(), "finder")
	require.NoError(t, err)
	assert.Zero(t, f.messages.count(conversation.ID.Hex()))
}

func TestDeleteRequestMessageCleansPhotos(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")
	msg := sendHandoverRequest(t, f, conversation.ID.Hex(), "finder")

	err := f.chat.DeleteMessage(context.Background(), conversation.ID.Hex(), msg.ID.Hex(), "finder")
	require.NoError(t, err)

	deleted := f.store.deletedURLs()
	assert.Contains(t, deleted, trustedPhoto("finder-id.jpg"))
	assert.Contains(t, deleted, trustedPhoto("item.jpg"))
}
