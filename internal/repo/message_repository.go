package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/db"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrInvalidMessage   = errors.New("invalid message: message cannot be nil")
	ErrInvalidMessageID = fmt.Errorf("%w: message ID must be a hex object ID", apperror.ErrValidation)
)

const (
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	messagesPageSize = 15
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	Get(ctx context.Context, conversationID, messageID string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
	ListAllByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	DistinctConversationIDs(ctx context.Context) ([]string, error)
	AddReadBy(ctx context.Context, conversationID, messageID, userID string) error
	UpdateSenderSnapshot(ctx context.Context, snapshot model.ProfileSnapshot) error
	UpdateRequestRecord(ctx context.Context, conversationID, messageID string, record *model.RequestRecord) error
	Delete(ctx context.Context, conversationID, messageID string) error
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}

func NewMessageRepository(mongoRepo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

// Insert writes a message, retrying transient store errors with exponential
// backoff.
func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return "", ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			m.logger.Info("message inserted",
				zap.String("message_id", insertedID),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.String("message_type", msg.MessageType),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)
	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

func (m *messageRepository) Get(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	if !primitive.IsValidObjectID(messageID) {
		return nil, ErrInvalidMessageID
	}
	if !primitive.IsValidObjectID(conversationID) {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("_id", messageID).
		ObjectID("conversation_id", conversationID).
		Build()

	msg, err := m.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: message %s", apperror.ErrNotFound, messageID)
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

func (m *messageRepository) ListByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if !primitive.IsValidObjectID(conversationID) {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: messagesPageSize,
		SortBy:   "timestamp",
		SortDesc: false,
	})
	if err != nil {
		return nil, fmt.Errorf("filter messages failed: %w", err)
	}
	return result, nil
}

func (m *messageRepository) ListAllByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	if !primitive.IsValidObjectID(conversationID) {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()
	return m.mongoRepo.FindAll(ctx, filter)
}

// DistinctConversationIDs returns every conversation ID referenced by at
// least one message, including those whose parent conversation is gone.
func (m *messageRepository) DistinctConversationIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	values, err := m.mongoRepo.Distinct(ctx, "conversation_id", db.Empty())
	if err != nil {
		return nil, fmt.Errorf("distinct conversation IDs failed: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if oid, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
		}
	}
	return ids, nil
}

// AddReadBy unions userID into the message's read_by set. $addToSet keeps the
// operation idempotent; read_by only ever grows.
func (m *messageRepository) AddReadBy(ctx context.Context, conversationID, messageID, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("_id", messageID).
		ObjectID("conversation_id", conversationID).
		Build()

	_, err := m.mongoRepo.UpdateRaw(ctx, filter, bson.M{
		"$addToSet": bson.M{"read_by": userID},
	})
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// UpdateSenderSnapshot fans one user's refreshed profile out to every
// message that embeds it as the sender.
func (m *messageRepository) UpdateSenderSnapshot(ctx context.Context, snapshot model.ProfileSnapshot) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("sender_id", snapshot.UserID).Build()
	_, err := m.mongoRepo.UpdateManyRaw(ctx, filter, bson.M{
		"$set": bson.M{
			"sender_name":            snapshot.Name,
			"sender_profile_picture": snapshot.ProfilePicture,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update sender snapshot: %w", err)
	}
	return nil
}

// UpdateRequestRecord replaces the message's embedded request record. The
// field written follows the message type so handover and claim data stay
// mutually exclusive.
func (m *messageRepository) UpdateRequestRecord(ctx context.Context, conversationID, messageID string, record *model.RequestRecord) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	msg, err := m.Get(ctx, conversationID, messageID)
	if err != nil {
		return err
	}

	var field string
	switch msg.MessageType {
	case model.MessageTypeHandoverRequest:
		field = "handover_data"
	case model.MessageTypeClaimRequest:
		field = "claim_data"
	default:
		return fmt.Errorf("%w: message %s carries no request record", apperror.ErrInvalidState, messageID)
	}

	filter := db.NewFilter().
		ObjectID("_id", messageID).
		ObjectID("conversation_id", conversationID).
		Build()

	result, err := m.mongoRepo.UpdateRaw(ctx, filter, bson.M{
		"$set": bson.M{field: record},
	})
	if err != nil {
		return fmt.Errorf("failed to update request record: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: message %s", apperror.ErrNotFound, messageID)
	}
	return nil
}

func (m *messageRepository) Delete(ctx context.Context, conversationID, messageID string) error {
	if !primitive.IsValidObjectID(messageID) {
		return ErrInvalidMessageID
	}
	if !primitive.IsValidObjectID(conversationID) {
		return ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("_id", messageID).
		ObjectID("conversation_id", conversationID).
		Build()

	if _, err := m.mongoRepo.Delete(ctx, filter); err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	return nil
}

// DeleteByConversation removes every message in a conversation and reports
// how many were deleted. Zero deletions is not an error. The ID is validated
// here so a malformed one can never widen the delete beyond one conversation.
func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	if !primitive.IsValidObjectID(conversationID) {
		return 0, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()
	result, err := m.mongoRepo.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete messages failed: %w", err)
	}

	m.logger.Debug("conversation messages deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("count", result.DeletedCount),
	)
	return result.DeletedCount, nil
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
