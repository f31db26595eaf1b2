package service

import (
	"context"
	"math"
	"sync"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.uber.org/zap"
)

// Ghost reasons
const (
	ReasonMissingPostID    = "Missing postId field"
	ReasonPostNotFound     = "Post not found"
	ReasonPermissionDenied = "Permission denied checking post"
	ReasonTooFewMembers    = "Fewer than two participants"
)

const healthSampleSize = 10

// GhostConversation is a conversation whose referenced post no longer exists
type GhostConversation struct {
	ConversationID string `json:"conversationId"`
	PostID         string `json:"postId"`
	Reason         string `json:"reason"`
}

// OrphanedMessage is a message whose parent conversation no longer exists
type OrphanedMessage struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Reason         string `json:"reason"`
}

// HealthSummary is the quick check's result. GhostCount is a statistical
// estimate extrapolated from a small sample, not an exact count.
type HealthSummary struct {
	Healthy            bool     `json:"healthy"`
	TotalConversations int64    `json:"totalConversations"`
	GhostCount         int      `json:"ghostCount"`
	Issues             []string `json:"issues"`
}

// IntegrityReport is the comprehensive check's result with exact counts
type IntegrityReport struct {
	TotalConversations int64               `json:"totalConversations"`
	Ghosts             []GhostConversation `json:"ghosts"`
	Orphans            []OrphanedMessage   `json:"orphans"`
}

// IntegrityService performs read-only detection of ghost conversations and
// orphaned messages. Cleanup is the executor's job.
type IntegrityService interface {
	DetectGhostConversations(ctx context.Context) ([]GhostConversation, error)
	DetectOrphanedMessages(ctx context.Context) ([]OrphanedMessage, error)
	QuickHealthCheck(ctx context.Context) (*HealthSummary, error)
	ComprehensiveHealthCheck(ctx context.Context) (*IntegrityReport, error)
}

type integrityService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	posts         repo.PostRepository
	logger        *zap.Logger
}

func NewIntegrityService(conversations repo.ConversationRepository, messages repo.MessageRepository, posts repo.PostRepository, logger *zap.Logger) IntegrityService {
	return &integrityService{
		conversations: conversations,
		messages:      messages,
		posts:         posts,
		logger:        logger,
	}
}

// DetectGhostConversations probes every conversation's post in parallel.
// A missing postId field, a missing post, and permission-denied while
// checking are distinct reasons, all classified as ghosts.
func (s *integrityService) DetectGhostConversations(ctx context.Context) ([]GhostConversation, error) {
	conversations, err := s.conversations.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.classifyGhosts(ctx, conversations), nil
}

func (s *integrityService) classifyGhosts(ctx context.Context, conversations []model.Conversation) []GhostConversation {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ghosts []GhostConversation

	for _, conversation := range conversations {
		wg.Add(1)
		go func(c model.Conversation) {
			defer wg.Done()
			reason, ok := s.ghostReason(ctx, &c)
			if !ok {
				return
			}
			mu.Lock()
			ghosts = append(ghosts, GhostConversation{
				ConversationID: c.ID.Hex(),
				PostID:         c.PostID,
				Reason:         reason,
			})
			mu.Unlock()
		}(conversation)
	}
	wg.Wait()

	if len(ghosts) > 0 {
		s.logger.Info("ghost conversations detected", zap.Int("count", len(ghosts)))
	}
	return ghosts
}

// ghostReason classifies a single conversation. The second return is true
// when the conversation is a ghost.
func (s *integrityService) ghostReason(ctx context.Context, c *model.Conversation) (string, bool) {
	if c.PostID == "" {
		return ReasonMissingPostID, true
	}
	if len(c.ParticipantIDs) < 2 {
		return ReasonTooFewMembers, true
	}

	exists, err := s.posts.Exists(ctx, c.PostID)
	if err != nil {
		if apperror.IsGone(err) {
			return ReasonPermissionDenied, true
		}
		// transient store error: do not classify, better to miss a ghost
		// than to delete a live conversation
		s.logger.Warn("post existence check failed",
			zap.String("conversation_id", c.ID.Hex()),
			zap.String("post_id", c.PostID),
			zap.Error(err),
		)
		return "", false
	}
	if !exists {
		return ReasonPostNotFound, true
	}
	return "", false
}

// DetectOrphanedMessages lists the messages of every conversation whose
// document is no longer fetchable.
func (s *integrityService) DetectOrphanedMessages(ctx context.Context) ([]OrphanedMessage, error) {
	conversationIDs, err := s.messages.DistinctConversationIDs(ctx)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var orphans []OrphanedMessage

	for _, conversationID := range conversationIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			_, err := s.conversations.Get(ctx, id)
			if err == nil {
				return
			}
			if !apperror.IsGone(err) {
				s.logger.Warn("conversation fetch failed during orphan scan",
					zap.String("conversation_id", id),
					zap.Error(err),
				)
				return
			}

			msgs, err := s.messages.ListAllByConversation(ctx, id)
			if err != nil {
				s.logger.Warn("orphan listing failed",
					zap.String("conversation_id", id),
					zap.Error(err),
				)
				return
			}

			mu.Lock()
			for _, msg := range msgs {
				orphans = append(orphans, OrphanedMessage{
					ConversationID: id,
					MessageID:      msg.ID.Hex(),
					Reason:         "Parent conversation no longer exists",
				})
			}
			mu.Unlock()
		}(conversationID)
	}
	wg.Wait()

	return orphans, nil
}

// QuickHealthCheck samples up to 10 conversations and extrapolates a ghost
// estimate: ceil(sampledGhosts / sampleSize * total). Cheap enough for
// routine polling; use the comprehensive check for exact numbers.
func (s *integrityService) QuickHealthCheck(ctx context.Context) (*HealthSummary, error) {
	total, err := s.conversations.Count(ctx)
	if err != nil {
		return nil, err
	}

	sampled, err := s.conversations.Sample(ctx, healthSampleSize)
	if err != nil {
		return nil, err
	}

	summary := &HealthSummary{
		Healthy:            true,
		TotalConversations: total,
		Issues:             []string{},
	}
	if len(sampled) == 0 {
		return summary, nil
	}

	sampledGhosts := 0
	for i := range sampled {
		if reason, ok := s.ghostReason(ctx, &sampled[i]); ok {
			sampledGhosts++
			summary.Issues = append(summary.Issues, sampled[i].ID.Hex()+": "+reason)
		}
	}

	summary.GhostCount = int(math.Ceil(float64(sampledGhosts) / float64(len(sampled)) * float64(total)))
	summary.Healthy = summary.GhostCount == 0
	return summary, nil
}

// ComprehensiveHealthCheck runs both full detectors and reports exact
// counts. Strictly more expensive; meant for admin-triggered audits.
func (s *integrityService) ComprehensiveHealthCheck(ctx context.Context) (*IntegrityReport, error) {
	total, err := s.conversations.Count(ctx)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var ghosts []GhostConversation
	var orphans []OrphanedMessage
	var ghostErr, orphanErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		ghosts, ghostErr = s.DetectGhostConversations(ctx)
	}()
	go func() {
		defer wg.Done()
		orphans, orphanErr = s.DetectOrphanedMessages(ctx)
	}()
	wg.Wait()

	if ghostErr != nil {
		return nil, ghostErr
	}
	if orphanErr != nil {
		return nil, orphanErr
	}

	return &IntegrityReport{
		TotalConversations: total,
		Ghosts:             ghosts,
		Orphans:            orphans,
	}, nil
}
