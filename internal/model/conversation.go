package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation represents a chat thread between two users about one post.
// At most one conversation exists per (post, pair-of-users); a conversation
// with fewer than two participants is invalid and eligible for cleanup.
type Conversation struct {
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Snapshot of the referenced post, refreshed lazily on access
	PostID        string `json:"postId" bson:"post_id"`
	PostTitle     string `json:"postTitle" bson:"post_title"`
	PostType      string `json:"postType" bson:"post_type"`
	PostStatus    string `json:"postStatus" bson:"post_status"`
	PostCreatorID string `json:"postCreatorId" bson:"post_creator_id"`

	Participants   []ProfileSnapshot `json:"participants" bson:"participants"`
	ParticipantIDs []string          `json:"participantIds" bson:"participant_ids"`
	UnreadCounts   map[string]int    `json:"unreadCounts" bson:"unread_counts"`
	LastMessage    *LastMessage      `json:"lastMessage" bson:"last_message"`

	HasHandoverRequest    bool   `json:"hasHandoverRequest" bson:"has_handover_request"`
	HasClaimRequest       bool   `json:"hasClaimRequest" bson:"has_claim_request"`
	HandoverRequestID     string `json:"handoverRequestId" bson:"handover_request_id,omitempty"`
	ClaimRequestID        string `json:"claimRequestId" bson:"claim_request_id,omitempty"`
	HandoverRequestStatus string `json:"handoverRequestStatus" bson:"handover_request_status,omitempty"`
	ClaimRequestStatus    string `json:"claimRequestStatus" bson:"claim_request_status,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// ProfileSnapshot is the single denormalized view of a user that gets embedded
// everywhere a participant appears: conversation participants, message sender
// fields, and post resolution details. One refresh routine fans it out.
type ProfileSnapshot struct {
	UserID         string `json:"userId" bson:"user_id"`
	Name           string `json:"name" bson:"name"`
	ProfilePicture string `json:"profilePicture" bson:"profile_picture"`
	Contact        string `json:"contact" bson:"contact"`
}

// LastMessage stores the most recent message preview on the conversation
type LastMessage struct {
	Text      string    `json:"text" bson:"text"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
