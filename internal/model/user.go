package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in MongoDB
type User struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID         string             `json:"userId" bson:"user_id"`
	Name           string             `json:"name" bson:"name"`
	Email          string             `json:"email" bson:"email"`
	Contact        string             `json:"contact" bson:"contact"`
	ProfilePicture string             `json:"profilePicture" bson:"profile_picture"`
	PushTokens     []string           `json:"pushTokens" bson:"push_tokens"`
	IsAdmin        bool               `json:"isAdmin" bson:"is_admin"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
}

// Snapshot returns the denormalized profile view embedded in conversations,
// messages and post resolution details.
func (u *User) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		UserID:         u.UserID,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		Contact:        u.Contact,
	}
}
