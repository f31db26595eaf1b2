package repo

import (
	"context"
	"testing"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// The ID guards run before any store access, so a nil mongo repository never
// gets touched in these tests.

func TestMessageRepositoryRejectsMalformedIDs(t *testing.T) {
	r := NewMessageRepository(nil, zap.NewNop())
	ctx := context.Background()

	_, err := r.Get(ctx, "c1", "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	// a malformed conversation ID must never widen the delete to the
	// whole collection
	_, err = r.DeleteByConversation(ctx, "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = r.Delete(ctx, "not-a-hex-id", "also-not-hex")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = r.ListByConversation(ctx, "", 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = r.ListAllByConversation(ctx, "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestConversationRepositoryRejectsMalformedIDs(t *testing.T) {
	r := NewConversationRepository(nil, zap.NewNop())
	ctx := context.Background()

	_, err := r.Get(ctx, "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = r.Delete(ctx, "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestPostRepositoryMalformedID(t *testing.T) {
	r := NewPostRepository(nil, zap.NewNop())
	ctx := context.Background()

	_, err := r.Get(ctx, "not-a-hex-id")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	// a malformed reference can name no post: report it missing so the
	// conversation carrying it is classified as a ghost
	exists, err := r.Exists(ctx, "not-a-hex-id")
	assert.NoError(t, err)
	assert.False(t, exists)
}
