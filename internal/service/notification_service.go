package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/event"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.uber.org/zap"
)

const expoPushEndpoint = "https://exp.host/--/api/v2/push/send"

// Response type values carried in response notifications
const (
	ResponseTypeHandover = "handover_response"
	ResponseTypeClaim    = "claim_response"
)

// MessageNotification announces a new message to the other participants
type MessageNotification struct {
	ConversationID string   `json:"conversationId"`
	SenderID       string   `json:"senderId"`
	SenderName     string   `json:"senderName"`
	Text           string   `json:"text"`
	PostTitle      string   `json:"postTitle"`
	RecipientIDs   []string `json:"-"`
}

// ResponseNotification announces a request response or confirmation
type ResponseNotification struct {
	ConversationID string   `json:"conversationId"`
	ResponderID    string   `json:"responderId"`
	ResponderName  string   `json:"responderName"`
	ResponseType   string   `json:"responseType"`
	Status         string   `json:"status"`
	PostTitle      string   `json:"postTitle"`
	PostID         string   `json:"postId,omitempty"`
	RecipientIDs   []string `json:"-"`
}

// ClaimRequestNotification alerts a post owner that someone claims the item
type ClaimRequestNotification struct {
	PostID       string   `json:"postId"`
	PostTitle    string   `json:"postTitle"`
	PostType     string   `json:"postType"`
	SenderID     string   `json:"senderId"`
	SenderName   string   `json:"senderName"`
	RecipientIDs []string `json:"-"`
}

// Notifier fans typed events out to participants. Every call is
// fire-and-forget from the core workflow's perspective: failures are logged
// and never propagate.
type Notifier interface {
	SendMessageNotification(ctx context.Context, n MessageNotification)
	SendResponseNotification(ctx context.Context, n ResponseNotification)
	SendClaimRequestNotification(ctx context.Context, n ClaimRequestNotification)
}

// EventPusher is the live-delivery half of the dispatcher, implemented by the
// websocket hub.
type EventPusher interface {
	PushToUser(userID string, ev event.WsEvent)
}

type notificationService struct {
	pusher EventPusher
	users  repo.UserRepository
	client *http.Client
	logger *zap.Logger
}

func NewNotificationService(pusher EventPusher, users repo.UserRepository, logger *zap.Logger) Notifier {
	return &notificationService{
		pusher: pusher,
		users:  users,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *notificationService) SendMessageNotification(ctx context.Context, n MessageNotification) {
	ev := event.New(event.EventNewMessage, n.ConversationID, n)
	title := n.SenderName
	body := n.Text
	if n.PostTitle != "" {
		title = fmt.Sprintf("%s · %s", n.SenderName, n.PostTitle)
	}
	s.fanOut(ctx, n.RecipientIDs, ev, title, body)
}

func (s *notificationService) SendResponseNotification(ctx context.Context, n ResponseNotification) {
	ev := event.New(event.EventRequestResponse, n.ConversationID, n)
	title := fmt.Sprintf("Update on %s", n.PostTitle)
	body := fmt.Sprintf("%s marked the request %s", n.ResponderName, n.Status)
	s.fanOut(ctx, n.RecipientIDs, ev, title, body)
}

func (s *notificationService) SendClaimRequestNotification(ctx context.Context, n ClaimRequestNotification) {
	ev := event.New(event.EventClaimAlert, "", n)
	title := fmt.Sprintf("New claim on %s", n.PostTitle)
	body := fmt.Sprintf("%s claims to be the owner", n.SenderName)
	s.fanOut(ctx, n.RecipientIDs, ev, title, body)
}

// fanOut delivers over both channels: websocket for connected clients and
// Expo push for everyone else. All failures are logged only.
func (s *notificationService) fanOut(ctx context.Context, recipientIDs []string, ev event.WsEvent, title, body string) {
	for _, userID := range recipientIDs {
		if s.pusher != nil {
			s.pusher.PushToUser(userID, ev)
		}

		user, err := s.users.Get(ctx, userID)
		if err != nil {
			s.logger.Debug("push token lookup failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		for _, token := range user.PushTokens {
			if err := s.sendPush(ctx, token, title, body, ev); err != nil {
				s.logger.Warn("push delivery failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *notificationService) sendPush(ctx context.Context, token, title, body string, ev event.WsEvent) error {
	payload, err := json.Marshal(map[string]interface{}{
		"to":    token,
		"title": title,
		"body":  body,
		"data":  ev,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, expoPushEndpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("push endpoint returned status %d", res.StatusCode)
	}
	return nil
}
