package hub

import (
	"context"
	"sync"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const defaultPollInterval = 10 * time.Second

// Reconciler is the single registration point for "this conversation is
// gone" notifications. Behind it run a change-stream subscription on deletes
// and a backup poll, but callers see one interface and each callback fires at
// most once per conversation.
type Reconciler struct {
	database      *mongo.Database
	conversations repo.ConversationRepository
	logger        *zap.Logger
	interval      time.Duration

	mu        sync.Mutex
	callbacks map[string][]func(conversationID string)
	fired     map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReconciler(database *mongo.Database, conversations repo.ConversationRepository, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		database:      database,
		conversations: conversations,
		logger:        logger,
		interval:      interval,
		callbacks:     make(map[string][]func(string)),
		fired:         make(map[string]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// OnConversationGone registers a callback for one conversation's deletion.
// If the conversation is already known to be gone the callback fires
// immediately.
func (r *Reconciler) OnConversationGone(conversationID string, callback func(conversationID string)) {
	r.mu.Lock()
	if _, done := r.fired[conversationID]; done {
		r.mu.Unlock()
		callback(conversationID)
		return
	}
	r.callbacks[conversationID] = append(r.callbacks[conversationID], callback)
	r.mu.Unlock()
}

// Start launches the change-stream watcher and the backup poll
func (r *Reconciler) Start() {
	r.wg.Add(2)
	go r.watch()
	go r.poll()
}

func (r *Reconciler) Stop() {
	r.cancel()
	r.wg.Wait()
}

// watch subscribes to delete events on the conversations collection. On a
// topology without change streams it logs once and leaves the poll as the
// only mechanism.
func (r *Reconciler) watch() {
	defer r.wg.Done()

	if r.database == nil {
		return
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"operationType": "delete"}}},
	}
	stream, err := r.database.Collection("conversations").Watch(r.ctx, pipeline)
	if err != nil {
		r.logger.Warn("change streams unavailable, relying on poll", zap.Error(err))
		return
	}
	defer stream.Close(r.ctx)

	for stream.Next(r.ctx) {
		var changeEvent struct {
			DocumentKey struct {
				ID primitive.ObjectID `bson:"_id"`
			} `bson:"documentKey"`
		}
		if err := stream.Decode(&changeEvent); err != nil {
			r.logger.Warn("failed to decode change event", zap.Error(err))
			continue
		}
		r.fire(changeEvent.DocumentKey.ID.Hex())
	}

	if err := stream.Err(); err != nil && r.ctx.Err() == nil {
		r.logger.Warn("change stream ended, relying on poll", zap.Error(err))
	}
}

// poll re-checks every watched conversation on a timer. "Already deleted"
// between detection and firing is the expected case, not an error.
func (r *Reconciler) poll() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		watched := make([]string, 0, len(r.callbacks))
		for conversationID := range r.callbacks {
			watched = append(watched, conversationID)
		}
		r.mu.Unlock()

		for _, conversationID := range watched {
			_, err := r.conversations.Get(r.ctx, conversationID)
			if err == nil {
				continue
			}
			if apperror.IsGone(err) {
				r.fire(conversationID)
				continue
			}
			r.logger.Debug("reconciler probe failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}
}

// fire runs and clears the callbacks for one conversation, at most once
func (r *Reconciler) fire(conversationID string) {
	r.mu.Lock()
	if _, done := r.fired[conversationID]; done {
		r.mu.Unlock()
		return
	}
	r.fired[conversationID] = struct{}{}
	callbacks := r.callbacks[conversationID]
	delete(r.callbacks, conversationID)
	r.mu.Unlock()

	for _, callback := range callbacks {
		callback(conversationID)
	}

	if len(callbacks) > 0 {
		r.logger.Debug("conversation gone, watchers notified",
			zap.String("conversation_id", conversationID),
			zap.Int("watchers", len(callbacks)),
		)
	}
}
