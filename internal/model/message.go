package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message type values
const (
	MessageTypeText            = "text"
	MessageTypeHandoverRequest = "handover_request"
	MessageTypeClaimRequest    = "claim_request"
)

// Request status values. Transitions:
//
//	pending -> accepted | rejected
//	accepted -> pending_confirmation (counter-photo supplied)
//	pending_confirmation -> accepted (confirmed) | rejected
//
// rejected is terminal from any non-terminal state; a confirmed accepted
// record is terminal and triggers post resolution.
const (
	RequestStatusPending             = "pending"
	RequestStatusAccepted            = "accepted"
	RequestStatusPendingConfirmation = "pending_confirmation"
	RequestStatusRejected            = "rejected"
)

// Request kind values
const (
	RequestKindHandover = "handover"
	RequestKindClaim    = "claim"
)

// Message represents a chat message in MongoDB. Messages live in their own
// collection keyed by conversation_id.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`

	SenderID             string `json:"senderId" bson:"sender_id"`
	SenderName           string `json:"senderName" bson:"sender_name"`
	SenderProfilePicture string `json:"senderProfilePicture" bson:"sender_profile_picture"`

	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// ReadBy is seeded with the sender and only ever grows
	ReadBy []string `json:"readBy" bson:"read_by"`

	MessageType string `json:"messageType" bson:"message_type"`

	// Present iff MessageType matches; mutually exclusive with each other
	HandoverData *RequestRecord `json:"handoverData" bson:"handover_data,omitempty"`
	ClaimData    *RequestRecord `json:"claimData" bson:"claim_data,omitempty"`
}

// RequestRecord carries a handover or claim request embedded in a message.
// The same shape serves both kinds; EvidencePhotos are item photos for a
// handover and ownership-evidence photos for a claim.
type RequestRecord struct {
	PostID           string          `json:"postId" bson:"post_id"`
	PostTitle        string          `json:"postTitle" bson:"post_title"`
	Reason           string          `json:"reason" bson:"reason"`
	IDPhotoURL       string          `json:"idPhotoUrl" bson:"id_photo_url"`
	EvidencePhotos   []EvidencePhoto `json:"evidencePhotos" bson:"evidence_photos"`
	RequestedAt      time.Time       `json:"requestedAt" bson:"requested_at"`
	Status           string          `json:"status" bson:"status"`
	RespondedAt      *time.Time      `json:"respondedAt" bson:"responded_at,omitempty"`
	ResponderID      string          `json:"responderId" bson:"responder_id,omitempty"`
	OwnerIDPhoto     string          `json:"ownerIdPhoto" bson:"owner_id_photo,omitempty"`
	IDPhotoConfirmed bool            `json:"idPhotoConfirmed" bson:"id_photo_confirmed,omitempty"`
	PhotosDeleted    bool            `json:"photosDeleted" bson:"photos_deleted,omitempty"`
}

// EvidencePhoto is one uploaded photo attached to a request
type EvidencePhoto struct {
	URL         string    `json:"url" bson:"url"`
	UploadedAt  time.Time `json:"uploadedAt" bson:"uploaded_at"`
	Description string    `json:"description" bson:"description,omitempty"`
}

// Record returns whichever request record the message carries, or nil for a
// plain text message.
func (m *Message) Record() *RequestRecord {
	switch m.MessageType {
	case MessageTypeHandoverRequest:
		return m.HandoverData
	case MessageTypeClaimRequest:
		return m.ClaimData
	}
	return nil
}

// RecordForKind returns the request record matching kind, or nil when the
// message is not a request of that kind.
func (m *Message) RecordForKind(kind string) *RequestRecord {
	switch kind {
	case RequestKindHandover:
		if m.MessageType == MessageTypeHandoverRequest {
			return m.HandoverData
		}
	case RequestKindClaim:
		if m.MessageType == MessageTypeClaimRequest {
			return m.ClaimData
		}
	}
	return nil
}
