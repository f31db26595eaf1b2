package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/db"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// In-memory fakes for the repository and media interfaces. They reproduce
// the store's observable behavior (not-found wrapping, $addToSet and $inc
// semantics, delete-of-missing tolerance) so service tests exercise the real
// workflow logic.

type fakeConversations struct {
	mu   sync.Mutex
	byID map[string]*model.Conversation

	listAllErr error
	resetErr   error
	deleteErr  map[string]error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		byID:      make(map[string]*model.Conversation),
		deleteErr: make(map[string]error),
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", apperror.ErrNotFound, what, id)
}

func (f *fakeConversations) Get(_ context.Context, conversationID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return nil, notFound("conversation", conversationID)
	}
	clone := *c
	return &clone, nil
}

func (f *fakeConversations) FindByPostPair(_ context.Context, postID, userA, userB string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.PostID == postID && containsAll(c.ParticipantIDs, userA, userB) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, notFound("conversation for post", postID)
}

func (f *fakeConversations) Create(_ context.Context, conversation *model.Conversation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation.ID = primitive.NewObjectID()
	clone := *conversation
	f.byID[conversation.ID.Hex()] = &clone
	return conversation.ID.Hex(), nil
}

func (f *fakeConversations) ListForUser(_ context.Context, userID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.byID {
		for _, id := range c.ParticipantIDs {
			if id == userID {
				out = append(out, *c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConversations) ListByPost(_ context.Context, postID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.byID {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversations) ListAll(_ context.Context) ([]model.Conversation, error) {
	if f.listAllErr != nil {
		return nil, f.listAllErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeConversations) Sample(ctx context.Context, limit int64) ([]model.Conversation, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeConversations) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeConversations) SetRequestState(_ context.Context, conversationID, kind, requestID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	if kind == model.RequestKindHandover {
		c.HasHandoverRequest = true
		c.HandoverRequestID = requestID
		c.HandoverRequestStatus = status
	} else {
		c.HasClaimRequest = true
		c.ClaimRequestID = requestID
		c.ClaimRequestStatus = status
	}
	return nil
}

func (f *fakeConversations) SetRequestStatus(_ context.Context, conversationID, kind, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	if kind == model.RequestKindHandover {
		c.HandoverRequestStatus = status
	} else {
		c.ClaimRequestStatus = status
	}
	return nil
}

func (f *fakeConversations) SetLastMessage(_ context.Context, conversationID string, last *model.LastMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	c.LastMessage = last
	return nil
}

func (f *fakeConversations) IncrementUnread(_ context.Context, conversationID string, recipientIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	for _, id := range recipientIDs {
		c.UnreadCounts[id]++
	}
	return nil
}

func (f *fakeConversations) ResetUnread(_ context.Context, conversationID, userID string) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	c.UnreadCounts[userID] = 0
	return nil
}

func (f *fakeConversations) RefreshPostSnapshot(_ context.Context, conversationID string, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[conversationID]
	if !ok {
		return notFound("conversation", conversationID)
	}
	c.PostTitle = post.Title
	c.PostType = post.Type
	c.PostStatus = post.Status
	c.PostCreatorID = post.CreatorID
	return nil
}

func (f *fakeConversations) UpdateParticipantSnapshot(_ context.Context, snapshot model.ProfileSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		for i := range c.Participants {
			if c.Participants[i].UserID == snapshot.UserID {
				c.Participants[i] = snapshot
			}
		}
	}
	return nil
}

func (f *fakeConversations) Delete(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErr[conversationID]; ok {
		return err
	}
	// delete-of-missing succeeds, matching DeletedCount==0 tolerance
	delete(f.byID, conversationID)
	return nil
}

type fakeMessages struct {
	mu             sync.Mutex
	byConversation map[string][]*model.Message

	listErr     error
	distinctErr error
	deleteErr   map[string]error

	addReadByCalls int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byConversation: make(map[string][]*model.Message),
		deleteErr:      make(map[string]error),
	}
}

func cloneMessage(m *model.Message) *model.Message {
	clone := *m
	if m.HandoverData != nil {
		record := *m.HandoverData
		clone.HandoverData = &record
	}
	if m.ClaimData != nil {
		record := *m.ClaimData
		clone.ClaimData = &record
	}
	clone.ReadBy = append([]string(nil), m.ReadBy...)
	return &clone
}

func (f *fakeMessages) Insert(_ context.Context, msg *model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	conversationID := msg.ConversationID.Hex()
	f.byConversation[conversationID] = append(f.byConversation[conversationID], cloneMessage(msg))
	return msg.ID.Hex(), nil
}

func (f *fakeMessages) Get(_ context.Context, conversationID, messageID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConversation[conversationID] {
		if m.ID.Hex() == messageID {
			return cloneMessage(m), nil
		}
	}
	return nil, notFound("message", messageID)
}

func (f *fakeMessages) ListByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	msgs, err := f.ListAllByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &db.PaginatedResult[model.Message]{
		Data:       msgs,
		Total:      int64(len(msgs)),
		Page:       page,
		PageSize:   int64(len(msgs)),
		TotalPages: 1,
	}, nil
}

func (f *fakeMessages) ListAllByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.byConversation[conversationID] {
		out = append(out, *cloneMessage(m))
	}
	return out, nil
}

func (f *fakeMessages) DistinctConversationIDs(_ context.Context) ([]string, error) {
	if f.distinctErr != nil {
		return nil, f.distinctErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.byConversation {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeMessages) AddReadBy(_ context.Context, conversationID, messageID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addReadByCalls++
	for _, m := range f.byConversation[conversationID] {
		if m.ID.Hex() != messageID {
			continue
		}
		for _, reader := range m.ReadBy {
			if reader == userID {
				return nil
			}
		}
		m.ReadBy = append(m.ReadBy, userID)
		return nil
	}
	return notFound("message", messageID)
}

func (f *fakeMessages) UpdateSenderSnapshot(_ context.Context, snapshot model.ProfileSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msgs := range f.byConversation {
		for _, m := range msgs {
			if m.SenderID == snapshot.UserID {
				m.SenderName = snapshot.Name
				m.SenderProfilePicture = snapshot.ProfilePicture
			}
		}
	}
	return nil
}

func (f *fakeMessages) UpdateRequestRecord(_ context.Context, conversationID, messageID string, record *model.RequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConversation[conversationID] {
		if m.ID.Hex() != messageID {
			continue
		}
		clone := *record
		if m.MessageType == model.MessageTypeHandoverRequest {
			m.HandoverData = &clone
		} else {
			m.ClaimData = &clone
		}
		return nil
	}
	return notFound("message", messageID)
}

func (f *fakeMessages) Delete(_ context.Context, conversationID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErr[messageID]; ok {
		return err
	}
	msgs := f.byConversation[conversationID]
	for i, m := range msgs {
		if m.ID.Hex() == messageID {
			f.byConversation[conversationID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return notFound("message", messageID)
}

func (f *fakeMessages) DeleteByConversation(_ context.Context, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := int64(len(f.byConversation[conversationID]))
	delete(f.byConversation, conversationID)
	return count, nil
}

func (f *fakeMessages) count(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byConversation[conversationID])
}

type fakePosts struct {
	mu        sync.Mutex
	byID      map[string]*model.Post
	existsErr map[string]error
}

func newFakePosts() *fakePosts {
	return &fakePosts{
		byID:      make(map[string]*model.Post),
		existsErr: make(map[string]error),
	}
}

func (f *fakePosts) Get(_ context.Context, postID string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[postID]
	if !ok {
		return nil, notFound("post", postID)
	}
	clone := *p
	return &clone, nil
}

func (f *fakePosts) Exists(_ context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.existsErr[postID]; ok {
		return false, err
	}
	_, ok := f.byID[postID]
	return ok, nil
}

func (f *fakePosts) Create(_ context.Context, post *model.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	clone := *post
	f.byID[post.ID.Hex()] = &clone
	return post.ID.Hex(), nil
}

func (f *fakePosts) SetResolution(_ context.Context, postID, kind, status string, details *model.ResolutionDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[postID]
	if !ok {
		return notFound("post", postID)
	}
	p.Status = status
	if kind == model.RequestKindHandover {
		p.HandoverDetails = details
	} else {
		p.ClaimDetails = details
	}
	return nil
}

type fakeUsers struct {
	mu          sync.Mutex
	byID        map[string]*model.User
	invalidated []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*model.User)}
}

func (f *fakeUsers) Get(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return nil, notFound("user", userID)
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUsers) InvalidateProfile(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	return nil
}

const fakeTrustedPrefix = "https://res.cloudinary.com/"

type fakeStore struct {
	mu       sync.Mutex
	uploads  int
	folders  []string
	deleted  []string
	failFor  map[string]bool
	badURL   bool
	uploaded []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{failFor: make(map[string]bool)}
}

func (f *fakeStore) Upload(_ context.Context, _ []byte, folder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	f.folders = append(f.folders, folder)
	photoURL := fmt.Sprintf("%sdemo/image/upload/v1/%s/photo-%d.jpg", fakeTrustedPrefix, folder, f.uploads)
	if f.badURL {
		photoURL = fmt.Sprintf("https://evil.example.com/%s/photo-%d.jpg", folder, f.uploads)
	}
	f.uploaded = append(f.uploaded, photoURL)
	return photoURL, nil
}

func (f *fakeStore) Delete(_ context.Context, photoURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[photoURL] {
		return false, fmt.Errorf("deletion failed for %s", photoURL)
	}
	f.deleted = append(f.deleted, photoURL)
	return true, nil
}

func (f *fakeStore) TrustedURL(photoURL string) bool {
	return strings.HasPrefix(photoURL, fakeTrustedPrefix)
}

func (f *fakeStore) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	messages  []MessageNotification
	responses []ResponseNotification
	claims    []ClaimRequestNotification
}

func (f *fakeNotifier) SendMessageNotification(_ context.Context, n MessageNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, n)
}

func (f *fakeNotifier) SendResponseNotification(_ context.Context, n ResponseNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, n)
}

func (f *fakeNotifier) SendClaimRequestNotification(_ context.Context, n ClaimRequestNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, n)
}

// fixture wires every service against the in-memory fakes
type fixture struct {
	conversations *fakeConversations
	messages      *fakeMessages
	posts         *fakePosts
	users         *fakeUsers
	store         *fakeStore
	notifier      *fakeNotifier

	evidence  EvidenceService
	integrity IntegrityService
	cleanup   CleanupService
	requests  RequestService
	chat      ChatService
	reads     ReadTracker
}

func newFixture() *fixture {
	f := &fixture{
		conversations: newFakeConversations(),
		messages:      newFakeMessages(),
		posts:         newFakePosts(),
		users:         newFakeUsers(),
		store:         newFakeStore(),
		notifier:      &fakeNotifier{},
	}
	logger := zap.NewNop()
	f.evidence = NewEvidenceService(f.store, logger)
	f.integrity = NewIntegrityService(f.conversations, f.messages, f.posts, logger)
	f.cleanup = NewCleanupService(f.conversations, f.messages, f.integrity, logger)
	f.requests = NewRequestService(f.conversations, f.messages, f.posts, f.users,
		f.evidence, f.notifier, f.cleanup, db.NoTxn(), logger)
	f.chat = NewChatService(f.conversations, f.messages, f.posts, f.users,
		f.evidence, f.notifier, db.NoTxn(), logger)
	f.reads = NewReadTracker(f.conversations, f.messages, logger)
	return f
}

func (f *fixture) seedUser(userID, name string) *model.User {
	user := &model.User{UserID: userID, Name: name, Contact: userID + "@example.edu"}
	f.users.mu.Lock()
	f.users.byID[userID] = user
	f.users.mu.Unlock()
	return user
}

func (f *fixture) seedPost(creatorID, postType string) *model.Post {
	post := &model.Post{
		Type:      postType,
		Title:     "Blue backpack",
		Status:    model.PostStatusPending,
		CreatorID: creatorID,
	}
	id, _ := f.posts.Create(context.Background(), post)
	post.ID, _ = primitive.ObjectIDFromHex(id)
	return post
}

func (f *fixture) seedConversation(post *model.Post, userA, userB string) *model.Conversation {
	conversation := &model.Conversation{
		PostID:         post.ID.Hex(),
		PostTitle:      post.Title,
		PostType:       post.Type,
		PostStatus:     post.Status,
		PostCreatorID:  post.CreatorID,
		ParticipantIDs: []string{userA, userB},
		UnreadCounts:   map[string]int{userA: 0, userB: 0},
	}
	id, _ := f.conversations.Create(context.Background(), conversation)
	conversation.ID, _ = primitive.ObjectIDFromHex(id)
	return conversation
}

func containsAll(values []string, targets ...string) bool {
	for _, target := range targets {
		if !contains(values, target) {
			return false
		}
	}
	return true
}

func trustedPhoto(name string) string {
	return fakeTrustedPrefix + "demo/image/upload/v1/id_photos/" + name
}
