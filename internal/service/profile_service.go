package service

import (
	"context"
	"fmt"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.uber.org/zap"
)

// ProfileService is the one authoritative routine for propagating a user's
// profile. The same snapshot is embedded in conversation participants,
// message sender fields, and post resolutions; rather than three
// independently maintained copies, every refresh flows through here.
type ProfileService interface {
	RefreshSnapshot(ctx context.Context, userID string) error
}

type profileService struct {
	users         repo.UserRepository
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	logger        *zap.Logger
}

func NewProfileService(users repo.UserRepository, conversations repo.ConversationRepository, messages repo.MessageRepository, logger *zap.Logger) ProfileService {
	return &profileService{
		users:         users,
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// RefreshSnapshot re-reads the user and fans the fresh snapshot out to every
// document embedding it.
func (s *profileService) RefreshSnapshot(ctx context.Context, userID string) error {
	if err := s.users.InvalidateProfile(ctx, userID); err != nil {
		s.logger.Debug("profile cache invalidation failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	snapshot := user.Snapshot()

	if err := s.conversations.UpdateParticipantSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("snapshot fan-out to conversations failed: %w", err)
	}
	if err := s.messages.UpdateSenderSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("snapshot fan-out to messages failed: %w", err)
	}

	s.logger.Info("profile snapshot refreshed", zap.String("user_id", userID))
	return nil
}
