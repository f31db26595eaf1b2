package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/cache"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/db"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const userCacheTTL = 5 * time.Minute

type UserRepository interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	InvalidateProfile(ctx context.Context, userID string) error
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	cache     cache.Cache
	logger    *zap.Logger
}

func NewUserRepository(mongoRepo *db.Repository[model.User], cacheService cache.Cache, logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: mongoRepo,
		cache:     cacheService,
		logger:    logger,
	}
}

// Get fetches a user, serving from the injected cache on a hit. A cache
// failure is never fatal: fall through to the store.
func (r *userRepository) Get(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	key := userCacheKey(userID)
	if cached, err := r.cache.Get(ctx, key); err == nil {
		var user model.User
		if err := json.Unmarshal(cached, &user); err == nil {
			return &user, nil
		}
		// corrupt entry: drop it and reload
		_ = r.cache.Invalidate(ctx, key)
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	user, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", apperror.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	if encoded, err := json.Marshal(user); err == nil {
		if err := r.cache.Set(ctx, key, encoded, userCacheTTL); err != nil {
			r.logger.Debug("user cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return user, nil
}

// InvalidateProfile drops the cached profile after an update so the next
// snapshot fan-out reads fresh data.
func (r *userRepository) InvalidateProfile(ctx context.Context, userID string) error {
	return r.cache.Invalidate(ctx, userCacheKey(userID))
}

func userCacheKey(userID string) string {
	return "user:" + userID
}
