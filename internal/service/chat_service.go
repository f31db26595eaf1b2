package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/db"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ChatService owns conversation bootstrap and plain text messaging. The
// request workflow rides on the conversations this creates.
type ChatService interface {
	StartConversation(ctx context.Context, postID, initiatorID, text string) (*model.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, text string) (*model.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID, callerID string) error
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
}

type chatService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	posts         repo.PostRepository
	users         repo.UserRepository
	evidence      EvidenceService
	notifier      Notifier
	txn           db.TxnFunc
	logger        *zap.Logger
}

func NewChatService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	posts repo.PostRepository,
	users repo.UserRepository,
	evidence EvidenceService,
	notifier Notifier,
	txn db.TxnFunc,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		posts:         posts,
		users:         users,
		evidence:      evidence,
		notifier:      notifier,
		txn:           txn,
		logger:        logger,
	}
}

// StartConversation creates (or reuses) the single conversation between the
// initiator and the post's creator about that post, then sends the opening
// message. The post snapshot on an existing conversation is refreshed lazily
// here when it drifted.
func (s *chatService) StartConversation(ctx context.Context, postID, initiatorID, text string) (*model.Conversation, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID == initiatorID {
		return nil, fmt.Errorf("%w: cannot start a conversation about your own post", apperror.ErrValidation)
	}

	// lookup and create run as one batch so two racing initiators cannot
	// both miss the lookup and double-create the pair
	var conversation *model.Conversation
	err = s.txn(ctx, func(ctx context.Context) error {
		existing, err := s.conversations.FindByPostPair(ctx, postID, initiatorID, post.CreatorID)
		if err == nil {
			if existing.PostStatus != post.Status || existing.PostTitle != post.Title {
				if refreshErr := s.conversations.RefreshPostSnapshot(ctx, existing.ID.Hex(), post); refreshErr != nil {
					s.logger.Warn("post snapshot refresh failed",
						zap.String("conversation_id", existing.ID.Hex()),
						zap.Error(refreshErr),
					)
				}
			}
			conversation = existing
			return nil
		}
		if !apperror.IsGone(err) {
			return err
		}

		initiator, err := s.users.Get(ctx, initiatorID)
		if err != nil {
			return err
		}
		owner, err := s.users.Get(ctx, post.CreatorID)
		if err != nil {
			return err
		}

		now := time.Now()
		conversation = &model.Conversation{
			PostID:         postID,
			PostTitle:      post.Title,
			PostType:       post.Type,
			PostStatus:     post.Status,
			PostCreatorID:  post.CreatorID,
			Participants:   []model.ProfileSnapshot{initiator.Snapshot(), owner.Snapshot()},
			ParticipantIDs: []string{initiatorID, post.CreatorID},
			UnreadCounts:   map[string]int{initiatorID: 0, post.CreatorID: 0},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		conversationID, err := s.conversations.Create(ctx, conversation)
		if err != nil {
			return err
		}
		conversation.ID, _ = primitive.ObjectIDFromHex(conversationID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if text != "" {
		if _, err := s.SendMessage(ctx, conversation.ID.Hex(), initiatorID, text); err != nil {
			return nil, err
		}
	}
	return conversation, nil
}

// SendMessage appends a text message. The message insert and the dependent
// conversation mutations (last message preview, unread increments) commit as
// one batch where the store supports it.
func (s *chatService) SendMessage(ctx context.Context, conversationID, senderID, text string) (*model.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", apperror.ErrValidation)
	}

	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !contains(conversation.ParticipantIDs, senderID) {
		return nil, fmt.Errorf("%w: sender is not a participant", apperror.ErrValidation)
	}

	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		SenderID:             senderID,
		SenderName:           sender.Name,
		SenderProfilePicture: sender.ProfilePicture,
		Text:                 text,
		Timestamp:            time.Now(),
		ReadBy:               []string{senderID},
		MessageType:          model.MessageTypeText,
	}
	msg.ConversationID, _ = primitive.ObjectIDFromHex(conversationID)

	recipients := Filter(conversation.ParticipantIDs, func(id string) bool { return id != senderID })

	err = s.txn(ctx, func(ctx context.Context) error {
		messageID, err := s.messages.Insert(ctx, msg)
		if err != nil {
			return err
		}
		msg.ID, _ = primitive.ObjectIDFromHex(messageID)

		if err := s.conversations.SetLastMessage(ctx, conversationID, &model.LastMessage{
			Text:      text,
			SenderID:  senderID,
			Timestamp: msg.Timestamp,
		}); err != nil {
			return err
		}
		return s.conversations.IncrementUnread(ctx, conversationID, recipients)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendMessageNotification(ctx, MessageNotification{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     sender.Name,
		Text:           text,
		PostTitle:      conversation.PostTitle,
		RecipientIDs:   recipients,
	})
	return msg, nil
}

// DeleteMessage lets a sender remove their own message. Any photos the
// message carries are deleted best-effort through the evidence pipeline; the
// message deletion does not wait on the media.
func (s *chatService) DeleteMessage(ctx context.Context, conversationID, messageID, callerID string) error {
	msg, err := s.messages.Get(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != callerID {
		return fmt.Errorf("%w: only the sender can delete a message", apperror.ErrValidation)
	}

	if urls := ExtractEvidenceURLs(msg); len(urls) > 0 {
		report := s.evidence.DeleteEvidence(ctx, urls)
		if len(report.Failed) > 0 {
			s.logger.Warn("some message photos were not deleted",
				zap.String("message_id", messageID),
				zap.Int("failed", len(report.Failed)),
			)
		}
	}
	return s.messages.Delete(ctx, conversationID, messageID)
}

func (s *chatService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

func (s *chatService) ListMessages(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	return s.messages.ListByConversation(ctx, conversationID, page)
}
