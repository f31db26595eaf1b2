package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post status values
const (
	PostStatusPending   = "pending"
	PostStatusResolved  = "resolved"
	PostStatusUnclaimed = "unclaimed"
	PostStatusCompleted = "completed"
)

// Post type values
const (
	PostTypeLost  = "lost"
	PostTypeFound = "found"
)

// Post represents a lost/found item post in MongoDB
type Post struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Type        string             `json:"type" bson:"type"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Status      string             `json:"status" bson:"status"`
	CreatorID   string             `json:"creatorId" bson:"creator_id"`
	Location    string             `json:"location" bson:"location"`
	PhotoURLs   []string           `json:"photoUrls" bson:"photo_urls"`
	// Trusted marks posts created by campus security / admins; requests
	// against a trusted post may omit evidence photos.
	Trusted         bool               `json:"trusted" bson:"trusted"`
	HandoverDetails *ResolutionDetails `json:"handoverDetails" bson:"handover_details,omitempty"`
	ClaimDetails    *ResolutionDetails `json:"claimDetails" bson:"claim_details,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updated_at"`
}

// ResolutionDetails is the denormalized snapshot written onto a post when a
// handover or claim request is confirmed. It is written exactly once, by the
// request workflow, and never touched by the messaging layer otherwise.
type ResolutionDetails struct {
	Requester      ProfileSnapshot `json:"requester" bson:"requester"`
	Owner          ProfileSnapshot `json:"owner" bson:"owner"`
	Reason         string          `json:"reason" bson:"reason"`
	IDPhotoURL     string          `json:"idPhotoUrl" bson:"id_photo_url"`
	EvidenceURLs   []string        `json:"evidenceUrls" bson:"evidence_urls"`
	OwnerIDPhoto   string          `json:"ownerIdPhoto" bson:"owner_id_photo,omitempty"`
	RequestedAt    time.Time       `json:"requestedAt" bson:"requested_at"`
	RespondedAt    time.Time       `json:"respondedAt" bson:"responded_at"`
	ConfirmedAt    time.Time       `json:"confirmedAt" bson:"confirmed_at"`
	ConversationID string          `json:"conversationId" bson:"conversation_id"`
}
