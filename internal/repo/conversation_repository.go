package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
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
	ErrInvalidConversationID = fmt.Errorf("%w: conversation ID must be a hex object ID", apperror.ErrValidation)
	ErrInvalidUserID         = fmt.Errorf("%w: user ID cannot be empty", apperror.ErrValidation)
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second
)

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	FindByPostPair(ctx context.Context, postID, userA, userB string) (*model.Conversation, error)
	Create(ctx context.Context, conversation *model.Conversation) (string, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	ListByPost(ctx context.Context, postID string) ([]model.Conversation, error)
	ListAll(ctx context.Context) ([]model.Conversation, error)
	Sample(ctx context.Context, limit int64) ([]model.Conversation, error)
	Count(ctx context.Context) (int64, error)
	SetRequestState(ctx context.Context, conversationID, kind, requestID, status string) error
	SetRequestStatus(ctx context.Context, conversationID, kind, status string) error
	SetLastMessage(ctx context.Context, conversationID string, last *model.LastMessage) error
	IncrementUnread(ctx context.Context, conversationID string, recipientIDs []string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
	RefreshPostSnapshot(ctx context.Context, conversationID string, post *model.Post) error
	UpdateParticipantSnapshot(ctx context.Context, snapshot model.ProfileSnapshot) error
	Delete(ctx context.Context, conversationID string) error
}

func NewConversationRepository(mongoRepo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

func (r *conversationRepository) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if !primitive.IsValidObjectID(conversationID) {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", apperror.ErrNotFound, conversationID)
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// FindByPostPair looks up the single conversation a pair of users holds about
// one post. Participant order does not matter.
func (r *conversationRepository) FindByPostPair(ctx context.Context, postID, userA, userB string) (*model.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	pair := []string{userA, userB}
	sort.Strings(pair)

	filter := db.NewFilter().
		Eq("post_id", postID).
		All("participant_ids", pair).
		Build()

	conversation, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: no conversation for post %s", apperror.ErrNotFound, postID)
		}
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	return conversation, nil
}

func (r *conversationRepository) Create(ctx context.Context, conversation *model.Conversation) (string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *conversation)
	if err != nil {
		r.logger.Error("failed to create conversation",
			zap.String("post_id", conversation.PostID),
			zap.Error(err),
		)
		return "", fmt.Errorf("create conversation failed: %w", err)
	}

	insertedID := ""
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		insertedID = oid.Hex()
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", insertedID),
		zap.String("post_id", conversation.PostID),
	)
	return insertedID, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participant_ids", userID).Build()
	return r.mongoRepo.FindAll(ctx, filter)
}

func (r *conversationRepository) ListByPost(ctx context.Context, postID string) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("post_id", postID).Build()
	return r.mongoRepo.FindAll(ctx, filter)
}

func (r *conversationRepository) ListAll(ctx context.Context) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return r.mongoRepo.FindAll(ctx, db.Empty())
}

// Sample returns up to limit conversations, used by the quick health check
func (r *conversationRepository) Sample(ctx context.Context, limit int64) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	result, err := r.mongoRepo.FindWithPagination(ctx, db.Empty(), db.PaginationParams{
		Page:     1,
		PageSize: limit,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (r *conversationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	return r.mongoRepo.Count(ctx, db.Empty())
}

// SetRequestState flags the conversation as carrying a request of the given
// kind and records the request message ID and its status.
func (r *conversationRepository) SetRequestState(ctx context.Context, conversationID, kind, requestID, status string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{
		"has_" + kind + "_request": true,
		kind + "_request_id":       requestID,
		kind + "_request_status":   status,
		"updated_at":               time.Now(),
	}
	_, err := r.mongoRepo.UpdateByID(ctx, conversationID, update)
	if err != nil {
		return fmt.Errorf("failed to set %s request state: %w", kind, err)
	}
	return nil
}

func (r *conversationRepository) SetRequestStatus(ctx context.Context, conversationID, kind, status string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{
		kind + "_request_status": status,
		"updated_at":             time.Now(),
	}
	_, err := r.mongoRepo.UpdateByID(ctx, conversationID, update)
	if err != nil {
		return fmt.Errorf("failed to set %s request status: %w", kind, err)
	}
	return nil
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, conversationID string, last *model.LastMessage) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.UpdateByID(ctx, conversationID, bson.M{
		"last_message": last,
		"updated_at":   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}

// IncrementUnread bumps each recipient's unread counter with a single $inc
// per sub-key. Never read-modify-write the whole map: concurrent senders
// would lose updates.
func (r *conversationRepository) IncrementUnread(ctx context.Context, conversationID string, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	inc := bson.M{}
	for _, id := range recipientIDs {
		inc["unread_counts."+id] = 1
	}

	filter := db.NewFilter().ObjectID("_id", conversationID).Build()
	_, err := r.mongoRepo.UpdateRaw(ctx, filter, bson.M{"$inc": inc})
	if err != nil {
		return fmt.Errorf("failed to increment unread counts: %w", err)
	}
	return nil
}

func (r *conversationRepository) ResetUnread(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.UpdateByID(ctx, conversationID, bson.M{
		"unread_counts." + userID: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to reset unread count: %w", err)
	}
	return nil
}

// RefreshPostSnapshot re-copies the denormalized post fields onto the
// conversation. Called lazily whenever the conversation is served with a
// stale snapshot.
func (r *conversationRepository) RefreshPostSnapshot(ctx context.Context, conversationID string, post *model.Post) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.UpdateByID(ctx, conversationID, bson.M{
		"post_title":      post.Title,
		"post_type":       post.Type,
		"post_status":     post.Status,
		"post_creator_id": post.CreatorID,
		"updated_at":      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to refresh post snapshot: %w", err)
	}
	return nil
}

// UpdateParticipantSnapshot fans one user's refreshed profile out to every
// conversation embedding it.
func (r *conversationRepository) UpdateParticipantSnapshot(ctx context.Context, snapshot model.ProfileSnapshot) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participants.user_id", snapshot.UserID).Build()
	_, err := r.mongoRepo.UpdateManyRaw(ctx, filter, bson.M{
		"$set": bson.M{"participants.$": snapshot},
	})
	if err != nil {
		return fmt.Errorf("failed to update participant snapshot: %w", err)
	}
	return nil
}

// Delete removes the conversation document. Deleting one that already
// disappeared is success, not failure.
func (r *conversationRepository) Delete(ctx context.Context, conversationID string) error {
	if !primitive.IsValidObjectID(conversationID) {
		return ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.DeleteByID(ctx, conversationID)
	if err != nil {
		r.logger.Error("failed to delete conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("delete conversation failed: %w", err)
	}

	if result.DeletedCount == 0 {
		r.logger.Debug("conversation already deleted",
			zap.String("conversation_id", conversationID),
		)
	}
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
