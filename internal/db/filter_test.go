package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFilterBuilder(t *testing.T) {
	id := primitive.NewObjectID()

	filter := NewFilter().
		Eq("post_id", "p1").
		Ne("status", "rejected").
		In("sender_id", []string{"a", "b"}).
		All("participant_ids", []string{"a", "b"}).
		Exists("last_message", true).
		ObjectID("_id", id.Hex()).
		Build()

	assert.Equal(t, "p1", filter["post_id"])
	assert.Equal(t, bson.M{"$ne": "rejected"}, filter["status"])
	assert.Equal(t, bson.M{"$in": []string{"a", "b"}}, filter["sender_id"])
	assert.Equal(t, bson.M{"$all": []string{"a", "b"}}, filter["participant_ids"])
	assert.Equal(t, bson.M{"$exists": true}, filter["last_message"])
	assert.Equal(t, id, filter["_id"])
}

func TestFilterBuilderInvalidObjectID(t *testing.T) {
	filter := NewFilter().ObjectID("conversation_id", "not-a-hex-id").Build()

	// must never degrade to the match-all filter: a delete scoped by this
	// condition would otherwise hit the whole collection
	assert.NotEqual(t, bson.M{}, filter)
	assert.Equal(t, bson.M{"$in": bson.A{}}, filter["conversation_id"])
}

func TestFilterBuilderOr(t *testing.T) {
	branches := []bson.M{{"a": 1}, {"b": 2}}
	filter := NewFilter().Or(branches...).Build()
	assert.Equal(t, branches, filter["$or"])

	empty := NewFilter().Or().Build()
	assert.Empty(t, empty)
}

func TestEmpty(t *testing.T) {
	assert.Equal(t, bson.M{}, Empty())
}
