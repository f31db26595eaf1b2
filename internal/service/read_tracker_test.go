package service

import (
	"context"
	"testing"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkConversationRead(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	_, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", "hello")
	require.NoError(t, err)

	require.NoError(t, f.reads.MarkConversationRead(context.Background(), conversation.ID.Hex(), "owner"))

	stored, err := f.conversations.Get(context.Background(), conversation.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadCounts["owner"])
}

func TestMarkConversationReadGoneSwallowed(t *testing.T) {
	f := newFixture()
	err := f.reads.MarkConversationRead(context.Background(), "656f1a2b3c4d5e6f70819203", "owner")
	assert.NoError(t, err)
}

func TestMarkMessageReadIdempotent(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	msg, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", "hello")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.reads.MarkMessageRead(context.Background(), conversation.ID.Hex(), msg.ID.Hex(), "owner"))
	}

	stored, err := f.messages.Get(context.Background(), conversation.ID.Hex(), msg.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, []string{"finder", "owner"}, stored.ReadBy)
}

func TestMarkMessageReadGoneSwallowed(t *testing.T) {
	f := newFixture()
	err := f.reads.MarkMessageRead(context.Background(), "656f1a2b3c4d5e6f70819203", "656f1a2b3c4d5e6f70819204", "owner")
	assert.NoError(t, err)
}

func TestMarkAllUnreadRead(t *testing.T) {
	f := newFixture()
	f.seedUser("owner", "Owner")
	f.seedUser("finder", "Finder")
	post := f.seedPost("owner", model.PostTypeLost)
	conversation := f.seedConversation(post, "finder", "owner")

	var messageIDs []string
	for _, text := range []string{"one", "two", "three"} {
		msg, err := f.chat.SendMessage(context.Background(), conversation.ID.Hex(), "finder", text)
		require.NoError(t, err)
		messageIDs = append(messageIDs, msg.ID.Hex())
	}
	// owner already read the first one
	require.NoError(t, f.reads.MarkMessageRead(context.Background(), conversation.ID.Hex(), messageIDs[0], "owner"))
	callsBefore := f.messages.addReadByCalls

	require.NoError(t, f.reads.MarkAllUnreadRead(context.Background(), conversation.ID.Hex(), "owner"))

	// only the two unread messages were touched
	assert.Equal(t, callsBefore+2, f.messages.addReadByCalls)
	for _, id := range messageIDs {
		stored, err := f.messages.Get(context.Background(), conversation.ID.Hex(), id)
		require.NoError(t, err)
		assert.Contains(t, stored.ReadBy, "owner")
	}

	stored, err := f.conversations.Get(context.Background(), conversation.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadCounts["owner"])
}

func TestMarkAllUnreadReadGoneSwallowed(t *testing.T) {
	f := newFixture()
	f.messages.listErr = notFound("conversation", "656f1a2b3c4d5e6f70819203")
	err := f.reads.MarkAllUnreadRead(context.Background(), "656f1a2b3c4d5e6f70819203", "owner")
	assert.NoError(t, err)
}
