package service

import (
	"context"
	"sync"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.uber.org/zap"
)

// ReadTracker maintains per-participant unread counters and per-message
// read-by sets. Every operation tolerates a conversation that was deleted
// out from under it: "the conversation is gone" satisfies the caller's
// intent just as well as "marked read".
type ReadTracker interface {
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	MarkMessageRead(ctx context.Context, conversationID, messageID, userID string) error
	MarkAllUnreadRead(ctx context.Context, conversationID, userID string) error
}

type readTracker struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	logger        *zap.Logger
}

func NewReadTracker(conversations repo.ConversationRepository, messages repo.MessageRepository, logger *zap.Logger) ReadTracker {
	return &readTracker{
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// MarkConversationRead zeroes the user's unread counter. A no-op when the
// conversation was concurrently deleted.
func (t *readTracker) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	err := t.conversations.ResetUnread(ctx, conversationID, userID)
	if err != nil && apperror.IsGone(err) {
		t.logger.Debug("conversation gone while marking read",
			zap.String("conversation_id", conversationID),
		)
		return nil
	}
	return err
}

// MarkMessageRead unions the user into the message's read set. Idempotent;
// already-gone tolerated.
func (t *readTracker) MarkMessageRead(ctx context.Context, conversationID, messageID, userID string) error {
	err := t.messages.AddReadBy(ctx, conversationID, messageID, userID)
	if err != nil && apperror.IsGone(err) {
		return nil
	}
	return err
}

// MarkAllUnreadRead scans the conversation and unions the user into every
// read set that doesn't already contain them, in parallel, then zeroes the
// unread counter.
func (t *readTracker) MarkAllUnreadRead(ctx context.Context, conversationID, userID string) error {
	msgs, err := t.messages.ListAllByConversation(ctx, conversationID)
	if err != nil {
		if apperror.IsGone(err) {
			return nil
		}
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, msg := range msgs {
		if contains(msg.ReadBy, userID) {
			continue
		}

		wg.Add(1)
		go func(messageID string) {
			defer wg.Done()
			if err := t.messages.AddReadBy(ctx, conversationID, messageID, userID); err != nil && !apperror.IsGone(err) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(msg.ID.Hex())
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return t.MarkConversationRead(ctx, conversationID, userID)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
