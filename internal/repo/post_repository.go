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

var ErrInvalidPostID = fmt.Errorf("%w: post ID must be a hex object ID", apperror.ErrValidation)

type postRepository struct {
	mongoRepo *db.Repository[model.Post]
	logger    *zap.Logger
}

type PostRepository interface {
	Get(ctx context.Context, postID string) (*model.Post, error)
	Exists(ctx context.Context, postID string) (bool, error)
	Create(ctx context.Context, post *model.Post) (string, error)
	SetResolution(ctx context.Context, postID, kind, status string, details *model.ResolutionDetails) error
}

func NewPostRepository(mongoRepo *db.Repository[model.Post], logger *zap.Logger) PostRepository {
	return &postRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

func (r *postRepository) Get(ctx context.Context, postID string) (*model.Post, error) {
	if !primitive.IsValidObjectID(postID) {
		return nil, ErrInvalidPostID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	post, err := r.mongoRepo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: post %s", apperror.ErrNotFound, postID)
		}
		return nil, fmt.Errorf("failed to fetch post: %w", err)
	}
	return post, nil
}

// Exists reports whether the post document is present. A malformed ID names
// no post and reports missing rather than erroring, so integrity scans
// classify the referencing conversation as a ghost instead of skipping it.
func (r *postRepository) Exists(ctx context.Context, postID string) (bool, error) {
	if !primitive.IsValidObjectID(postID) {
		return false, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", postID).Build()
	return r.mongoRepo.Exists(ctx, filter)
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) (string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *post)
	if err != nil {
		return "", fmt.Errorf("create post failed: %w", err)
	}

	insertedID := ""
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		insertedID = oid.Hex()
	}
	return insertedID, nil
}

// SetResolution writes the denormalized resolution snapshot and the final
// status onto the post. This is the only write the request workflow ever
// performs against the posts collection.
func (r *postRepository) SetResolution(ctx context.Context, postID, kind, status string, details *model.ResolutionDetails) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	field := "handover_details"
	if kind == model.RequestKindClaim {
		field = "claim_details"
	}

	result, err := r.mongoRepo.UpdateByID(ctx, postID, bson.M{
		"status":     status,
		field:        details,
		"updated_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write post resolution: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: post %s", apperror.ErrNotFound, postID)
	}

	r.logger.Info("post resolved",
		zap.String("post_id", postID),
		zap.String("kind", kind),
		zap.String("status", status),
	)
	return nil
}
