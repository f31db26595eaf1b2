package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.uber.org/zap"
)

// CleanupResult tallies one cleanup pass. Partial failure is a count and an
// error list, never a thrown error, so callers can display "N of M cleaned".
type CleanupResult struct {
	Success int      `json:"success"`
	Errors  []string `json:"errors"`
}

// PeriodicCleanupResult reports one full detect-and-clean cycle. The caller
// always gets a result object, even when the whole run fails.
type PeriodicCleanupResult struct {
	Timestamp       time.Time     `json:"timestamp"`
	GhostsDetected  int           `json:"ghostsDetected"`
	GhostsCleaned   int           `json:"ghostsCleaned"`
	OrphansDetected int           `json:"orphansDetected"`
	OrphansCleaned  int           `json:"orphansCleaned"`
	Errors          []string      `json:"errors"`
	Duration        time.Duration `json:"duration"`
}

// CleanupService deletes what the integrity validator finds, plus the
// cascading deletion the request workflow triggers on confirmation. All
// deletions are idempotent: a target that disappeared between detection and
// cleanup counts as success.
type CleanupService interface {
	CleanupGhostConversations(ctx context.Context, ghosts []GhostConversation) CleanupResult
	CleanupOrphanedMessages(ctx context.Context, orphans []OrphanedMessage) CleanupResult
	RunPeriodicCleanup(ctx context.Context) *PeriodicCleanupResult
	DeleteConversationCascade(ctx context.Context, conversationID string) error
}

type cleanupService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	integrity     IntegrityService
	logger        *zap.Logger
}

func NewCleanupService(conversations repo.ConversationRepository, messages repo.MessageRepository, integrity IntegrityService, logger *zap.Logger) CleanupService {
	return &cleanupService{
		conversations: conversations,
		messages:      messages,
		integrity:     integrity,
		logger:        logger,
	}
}

// CleanupGhostConversations cascades each ghost independently; one failure
// does not abort the batch.
func (s *cleanupService) CleanupGhostConversations(ctx context.Context, ghosts []GhostConversation) CleanupResult {
	result := CleanupResult{Errors: []string{}}
	for _, ghost := range ghosts {
		if err := s.DeleteConversationCascade(ctx, ghost.ConversationID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("conversation %s: %v", ghost.ConversationID, err))
			continue
		}
		result.Success++
	}
	return result
}

func (s *cleanupService) CleanupOrphanedMessages(ctx context.Context, orphans []OrphanedMessage) CleanupResult {
	result := CleanupResult{Errors: []string{}}
	for _, orphan := range orphans {
		err := s.messages.Delete(ctx, orphan.ConversationID, orphan.MessageID)
		if err != nil && !apperror.IsGone(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", orphan.MessageID, err))
			continue
		}
		result.Success++
	}
	return result
}

// RunPeriodicCleanup runs detection and cleanup as two sequential
// fan-out/fan-in stages: detect both kinds in parallel, then clean both
// kinds in parallel. A total failure is reported as a zero-progress result,
// never as a missing one.
func (s *cleanupService) RunPeriodicCleanup(ctx context.Context) *PeriodicCleanupResult {
	started := time.Now()
	result := &PeriodicCleanupResult{
		Timestamp: started,
		Errors:    []string{},
	}

	var wg sync.WaitGroup
	var ghosts []GhostConversation
	var orphans []OrphanedMessage
	var ghostErr, orphanErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		ghosts, ghostErr = s.integrity.DetectGhostConversations(ctx)
	}()
	go func() {
		defer wg.Done()
		orphans, orphanErr = s.integrity.DetectOrphanedMessages(ctx)
	}()
	wg.Wait()

	if ghostErr != nil && orphanErr != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("ghost detection failed: %v", ghostErr),
			fmt.Sprintf("orphan detection failed: %v", orphanErr),
		)
		result.Duration = time.Since(started)
		return result
	}
	if ghostErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("ghost detection failed: %v", ghostErr))
	}
	if orphanErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("orphan detection failed: %v", orphanErr))
	}

	result.GhostsDetected = len(ghosts)
	result.OrphansDetected = len(orphans)

	var ghostResult, orphanResult CleanupResult
	wg.Add(2)
	go func() {
		defer wg.Done()
		ghostResult = s.CleanupGhostConversations(ctx, ghosts)
	}()
	go func() {
		defer wg.Done()
		orphanResult = s.CleanupOrphanedMessages(ctx, orphans)
	}()
	wg.Wait()

	result.GhostsCleaned = ghostResult.Success
	result.OrphansCleaned = orphanResult.Success
	result.Errors = append(result.Errors, ghostResult.Errors...)
	result.Errors = append(result.Errors, orphanResult.Errors...)
	result.Duration = time.Since(started)

	s.logger.Info("periodic cleanup finished",
		zap.Int("ghosts_detected", result.GhostsDetected),
		zap.Int("ghosts_cleaned", result.GhostsCleaned),
		zap.Int("orphans_detected", result.OrphansDetected),
		zap.Int("orphans_cleaned", result.OrphansCleaned),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// DeleteConversationCascade removes every child message first, then the
// conversation document. Delete-of-missing is success on both steps.
func (s *cleanupService) DeleteConversationCascade(ctx context.Context, conversationID string) error {
	if _, err := s.messages.DeleteByConversation(ctx, conversationID); err != nil && !apperror.IsGone(err) {
		return fmt.Errorf("cascade failed deleting messages: %w", err)
	}

	if err := s.conversations.Delete(ctx, conversationID); err != nil && !apperror.IsGone(err) {
		return fmt.Errorf("cascade failed deleting conversation: %w", err)
	}

	s.logger.Debug("conversation cascade deleted",
		zap.String("conversation_id", conversationID),
	)
	return nil
}
