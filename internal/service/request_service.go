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

// SendRequestInput carries everything needed to open a handover or claim
// request inside an existing conversation.
type SendRequestInput struct {
	Kind           string
	ConversationID string
	SenderID       string
	Reason         string
	IDPhotoURL     string
	Photos         []model.EvidencePhoto
}

// RespondInput carries a response to a pending request
type RespondInput struct {
	Kind            string
	ConversationID  string
	MessageID       string
	Status          string // accepted | rejected
	ResponderID     string
	CounterPhotoURL string
}

// ConfirmResult reports a confirmation. Steps (1)-(3) of the confirmation
// either all happened or an error was returned; CleanupComplete reports
// whether the conversation teardown that follows them fully succeeded.
type ConfirmResult struct {
	PostID          string   `json:"postId"`
	PostStatus      string   `json:"postStatus"`
	CleanupComplete bool     `json:"cleanupComplete"`
	CleanupErrors   []string `json:"cleanupErrors"`
}

// RequestService is the state machine governing handover and claim requests.
// Both kinds share one lifecycle:
//
//	pending  --accept (no counter photo)-->  accepted
//	pending  --accept (counter photo)-->     pending_confirmation
//	pending  --reject-->                     rejected
//	pending_confirmation --confirm-->        accepted (terminal, resolves post)
//	pending_confirmation / accepted --reject_after_confirmation--> rejected
//
// Every transition re-checks the record's current status first, so a stale
// caller gets ErrInvalidState instead of corrupting a completed record.
type RequestService interface {
	SendRequest(ctx context.Context, input SendRequestInput) (*model.Message, error)
	Respond(ctx context.Context, input RespondInput) (*model.RequestRecord, error)
	Confirm(ctx context.Context, kind, conversationID, messageID, confirmingUserID string) (*ConfirmResult, error)
	RejectAfterConfirmation(ctx context.Context, kind, conversationID, messageID, rejecterID string) (*model.RequestRecord, error)
}

type requestService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	posts         repo.PostRepository
	users         repo.UserRepository
	evidence      EvidenceService
	notifier      Notifier
	cleanup       CleanupService
	txn           db.TxnFunc
	logger        *zap.Logger
}

func NewRequestService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	posts repo.PostRepository,
	users repo.UserRepository,
	evidence EvidenceService,
	notifier Notifier,
	cleanup CleanupService,
	txn db.TxnFunc,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		conversations: conversations,
		messages:      messages,
		posts:         posts,
		users:         users,
		evidence:      evidence,
		notifier:      notifier,
		cleanup:       cleanup,
		txn:           txn,
		logger:        logger,
	}
}

// SendRequest appends a request message in pending state, flags the
// conversation, and bumps the other participants' unread counters in the
// same batch as the message write. Notification is best-effort.
func (s *requestService) SendRequest(ctx context.Context, input SendRequestInput) (*model.Message, error) {
	if err := validKind(input.Kind); err != nil {
		return nil, err
	}
	if err := s.evidence.ValidatePhotoURL(input.IDPhotoURL); err != nil {
		return nil, err
	}
	for _, photo := range input.Photos {
		if err := s.evidence.ValidatePhotoURL(photo.URL); err != nil {
			return nil, err
		}
	}

	conversation, err := s.conversations.Get(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !contains(conversation.ParticipantIDs, input.SenderID) {
		return nil, fmt.Errorf("%w: sender is not a participant", apperror.ErrValidation)
	}

	post, err := s.posts.Get(ctx, conversation.PostID)
	if err != nil {
		return nil, err
	}
	if len(input.Photos) == 0 && !post.Trusted {
		return nil, fmt.Errorf("%w: at least one evidence photo is required", apperror.ErrValidation)
	}

	sender, err := s.users.Get(ctx, input.SenderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &model.RequestRecord{
		PostID:         conversation.PostID,
		PostTitle:      conversation.PostTitle,
		Reason:         input.Reason,
		IDPhotoURL:     input.IDPhotoURL,
		EvidencePhotos: input.Photos,
		RequestedAt:    now,
		Status:         model.RequestStatusPending,
	}

	msg := &model.Message{
		SenderID:             input.SenderID,
		SenderName:           sender.Name,
		SenderProfilePicture: sender.ProfilePicture,
		Text:                 requestText(input.Kind, sender.Name),
		Timestamp:            now,
		ReadBy:               []string{input.SenderID},
	}
	msg.ConversationID, _ = primitive.ObjectIDFromHex(input.ConversationID)
	if input.Kind == model.RequestKindHandover {
		msg.MessageType = model.MessageTypeHandoverRequest
		msg.HandoverData = record
	} else {
		msg.MessageType = model.MessageTypeClaimRequest
		msg.ClaimData = record
	}

	recipients := Filter(conversation.ParticipantIDs, func(id string) bool { return id != input.SenderID })

	err = s.txn(ctx, func(ctx context.Context) error {
		messageID, err := s.messages.Insert(ctx, msg)
		if err != nil {
			return err
		}
		msg.ID, _ = primitive.ObjectIDFromHex(messageID)

		if err := s.conversations.SetRequestState(ctx, input.ConversationID, input.Kind, messageID, model.RequestStatusPending); err != nil {
			return err
		}
		if err := s.conversations.SetLastMessage(ctx, input.ConversationID, &model.LastMessage{
			Text:      msg.Text,
			SenderID:  input.SenderID,
			Timestamp: now,
		}); err != nil {
			return err
		}
		return s.conversations.IncrementUnread(ctx, input.ConversationID, recipients)
	})
	if err != nil {
		return nil, err
	}

	if input.Kind == model.RequestKindClaim {
		s.notifier.SendClaimRequestNotification(ctx, ClaimRequestNotification{
			PostID:       conversation.PostID,
			PostTitle:    conversation.PostTitle,
			PostType:     conversation.PostType,
			SenderID:     input.SenderID,
			SenderName:   sender.Name,
			RecipientIDs: recipients,
		})
	}
	s.notifier.SendMessageNotification(ctx, MessageNotification{
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		SenderName:     sender.Name,
		Text:           msg.Text,
		PostTitle:      conversation.PostTitle,
		RecipientIDs:   recipients,
	})
	return msg, nil
}

// Respond resolves a pending request. Rejection deletes the request's photos
// best-effort: the record is the source of truth, not the media, so the
// transition proceeds regardless of deletion outcome. Acceptance with a
// counter photo parks the record in pending_confirmation until the requester
// confirms the responder's identity. The record update and the
// conversation's status mirror commit as one batch where the store supports
// it.
func (s *requestService) Respond(ctx context.Context, input RespondInput) (*model.RequestRecord, error) {
	if err := validKind(input.Kind); err != nil {
		return nil, err
	}
	if input.Status != model.RequestStatusAccepted && input.Status != model.RequestStatusRejected {
		return nil, fmt.Errorf("%w: response status must be accepted or rejected", apperror.ErrValidation)
	}

	msg, err := s.messages.Get(ctx, input.ConversationID, input.MessageID)
	if err != nil {
		return nil, err
	}
	record := msg.RecordForKind(input.Kind)
	if record == nil {
		return nil, fmt.Errorf("%w: message %s is not a %s request", apperror.ErrInvalidState, input.MessageID, input.Kind)
	}
	if record.Status != model.RequestStatusPending {
		return nil, fmt.Errorf("%w: request is %s, expected pending", apperror.ErrInvalidState, record.Status)
	}

	now := time.Now()
	record.RespondedAt = &now
	record.ResponderID = input.ResponderID

	switch input.Status {
	case model.RequestStatusRejected:
		report := s.evidence.DeleteEvidence(ctx, ExtractEvidenceURLs(msg))
		if len(report.Failed) > 0 {
			s.logger.Warn("rejection photo cleanup incomplete",
				zap.String("message_id", input.MessageID),
				zap.Int("failed", len(report.Failed)),
			)
		}
		record.Status = model.RequestStatusRejected
		record.PhotosDeleted = true

	case model.RequestStatusAccepted:
		if input.CounterPhotoURL != "" {
			if err := s.evidence.ValidatePhotoURL(input.CounterPhotoURL); err != nil {
				return nil, err
			}
			record.Status = model.RequestStatusPendingConfirmation
			record.OwnerIDPhoto = input.CounterPhotoURL
		} else {
			record.Status = model.RequestStatusAccepted
		}
	}

	err = s.txn(ctx, func(ctx context.Context) error {
		if err := s.messages.UpdateRequestRecord(ctx, input.ConversationID, input.MessageID, record); err != nil {
			return err
		}
		return s.conversations.SetRequestStatus(ctx, input.ConversationID, input.Kind, record.Status)
	})
	if err != nil {
		return nil, err
	}

	s.notifyResponse(ctx, input.Kind, input.ConversationID, input.ResponderID, record)

	s.logger.Info("request responded",
		zap.String("kind", input.Kind),
		zap.String("message_id", input.MessageID),
		zap.String("status", record.Status),
	)
	return record, nil
}

// Confirm finalizes an accepted request: the record turns terminal, the post
// gets its resolution snapshot and final status, and every conversation tied
// to the post is torn down. Partial teardown failure is reported in the
// result, never by undoing steps that already happened.
func (s *requestService) Confirm(ctx context.Context, kind, conversationID, messageID, confirmingUserID string) (*ConfirmResult, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}

	msg, err := s.messages.Get(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	record := msg.RecordForKind(kind)
	if record == nil {
		return nil, fmt.Errorf("%w: message %s is not a %s request", apperror.ErrInvalidState, messageID, kind)
	}
	if record.Status != model.RequestStatusAccepted && record.Status != model.RequestStatusPendingConfirmation {
		return nil, fmt.Errorf("%w: request is %s, cannot confirm", apperror.ErrInvalidState, record.Status)
	}

	post, err := s.posts.Get(ctx, record.PostID)
	if err != nil {
		return nil, err
	}
	if post.Status == model.PostStatusCompleted || post.Status == model.PostStatusResolved {
		return nil, fmt.Errorf("%w: post %s is already %s", apperror.ErrInvalidState, record.PostID, post.Status)
	}

	// (1) request record turns terminal
	now := time.Now()
	respondedAt := now
	if record.RespondedAt != nil {
		respondedAt = *record.RespondedAt
	}
	// The counter-party is whoever responded during the accept step. In the
	// counter-photo flow the requester is the one confirming, so the
	// confirming user and the counter-party are different people and the
	// resolution snapshot must keep both.
	counterPartyID := record.ResponderID
	if counterPartyID == "" || counterPartyID == msg.SenderID {
		counterPartyID = confirmingUserID
	}
	record.Status = model.RequestStatusAccepted
	record.IDPhotoConfirmed = true
	record.RespondedAt = &now
	record.ResponderID = confirmingUserID

	err = s.txn(ctx, func(ctx context.Context) error {
		if err := s.messages.UpdateRequestRecord(ctx, conversationID, messageID, record); err != nil {
			return err
		}
		return s.conversations.SetRequestStatus(ctx, conversationID, kind, record.Status)
	})
	if err != nil {
		return nil, err
	}

	// (2) denormalized resolution snapshot onto the post
	requester, err := s.users.Get(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	counterParty, err := s.users.Get(ctx, counterPartyID)
	if err != nil {
		return nil, err
	}

	evidenceURLs := make([]string, 0, len(record.EvidencePhotos))
	for _, photo := range record.EvidencePhotos {
		evidenceURLs = append(evidenceURLs, photo.URL)
	}

	postStatus := model.PostStatusCompleted
	if kind == model.RequestKindClaim {
		postStatus = model.PostStatusResolved
	}

	details := &model.ResolutionDetails{
		Requester:      requester.Snapshot(),
		Owner:          counterParty.Snapshot(),
		Reason:         record.Reason,
		IDPhotoURL:     record.IDPhotoURL,
		EvidenceURLs:   evidenceURLs,
		OwnerIDPhoto:   record.OwnerIDPhoto,
		RequestedAt:    record.RequestedAt,
		RespondedAt:    respondedAt,
		ConfirmedAt:    now,
		ConversationID: conversationID,
	}
	if err := s.posts.SetResolution(ctx, record.PostID, kind, postStatus, details); err != nil {
		return nil, err
	}

	// (3) best-effort confirmation notification
	s.notifyResponse(ctx, kind, conversationID, confirmingUserID, record)

	// (4) tear down every conversation referencing the post, continuing
	// past individual failures
	result := &ConfirmResult{
		PostID:          record.PostID,
		PostStatus:      postStatus,
		CleanupComplete: true,
		CleanupErrors:   []string{},
	}

	siblings, err := s.conversations.ListByPost(ctx, record.PostID)
	if err != nil {
		result.CleanupComplete = false
		result.CleanupErrors = append(result.CleanupErrors, fmt.Sprintf("listing conversations: %v", err))
		return result, nil
	}
	for _, sibling := range siblings {
		if err := s.cleanup.DeleteConversationCascade(ctx, sibling.ID.Hex()); err != nil {
			result.CleanupComplete = false
			result.CleanupErrors = append(result.CleanupErrors, fmt.Sprintf("conversation %s: %v", sibling.ID.Hex(), err))
		}
	}

	s.logger.Info("request confirmed",
		zap.String("kind", kind),
		zap.String("post_id", record.PostID),
		zap.String("post_status", postStatus),
		zap.Bool("cleanup_complete", result.CleanupComplete),
	)
	return result, nil
}

// RejectAfterConfirmation reverses an acceptance before it was confirmed: a
// counter photo was supplied (or the acceptance stands unconfirmed) and the
// requester rejects it. All photos including the counter photo are deleted.
func (s *requestService) RejectAfterConfirmation(ctx context.Context, kind, conversationID, messageID, rejecterID string) (*model.RequestRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}

	msg, err := s.messages.Get(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	record := msg.RecordForKind(kind)
	if record == nil {
		return nil, fmt.Errorf("%w: message %s is not a %s request", apperror.ErrInvalidState, messageID, kind)
	}
	if record.Status != model.RequestStatusPendingConfirmation &&
		!(record.Status == model.RequestStatusAccepted && !record.IDPhotoConfirmed) {
		return nil, fmt.Errorf("%w: request is %s, cannot reject after confirmation", apperror.ErrInvalidState, record.Status)
	}

	report := s.evidence.DeleteEvidence(ctx, ExtractEvidenceURLs(msg))
	if len(report.Failed) > 0 {
		s.logger.Warn("post-confirmation rejection photo cleanup incomplete",
			zap.String("message_id", messageID),
			zap.Int("failed", len(report.Failed)),
		)
	}

	now := time.Now()
	record.Status = model.RequestStatusRejected
	record.PhotosDeleted = true
	record.RespondedAt = &now
	record.ResponderID = rejecterID

	err = s.txn(ctx, func(ctx context.Context) error {
		if err := s.messages.UpdateRequestRecord(ctx, conversationID, messageID, record); err != nil {
			return err
		}
		return s.conversations.SetRequestStatus(ctx, conversationID, kind, record.Status)
	})
	if err != nil {
		return nil, err
	}

	s.notifyResponse(ctx, kind, conversationID, rejecterID, record)
	return record, nil
}

func (s *requestService) notifyResponse(ctx context.Context, kind, conversationID, responderID string, record *model.RequestRecord) {
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		s.logger.Debug("skipping response notification, conversation unavailable",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	responderName := responderID
	if responder, err := s.users.Get(ctx, responderID); err == nil {
		responderName = responder.Name
	}

	responseType := ResponseTypeHandover
	if kind == model.RequestKindClaim {
		responseType = ResponseTypeClaim
	}

	s.notifier.SendResponseNotification(ctx, ResponseNotification{
		ConversationID: conversationID,
		ResponderID:    responderID,
		ResponderName:  responderName,
		ResponseType:   responseType,
		Status:         record.Status,
		PostTitle:      record.PostTitle,
		PostID:         record.PostID,
		RecipientIDs:   Filter(conversation.ParticipantIDs, func(id string) bool { return id != responderID }),
	})
}

func validKind(kind string) error {
	if kind != model.RequestKindHandover && kind != model.RequestKindClaim {
		return fmt.Errorf("%w: unknown request kind %q", apperror.ErrValidation, kind)
	}
	return nil
}

func requestText(kind, senderName string) string {
	if kind == model.RequestKindClaim {
		return senderName + " sent a claim request"
	}
	return senderName + " sent a handover request"
}
