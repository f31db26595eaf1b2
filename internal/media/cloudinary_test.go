package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(server *httptest.Server) *cloudinaryStore {
	return &cloudinaryStore{
		config:  Config{CloudName: "demo", APIKey: "key", APISecret: "secret"},
		client:  server.Client(),
		logger:  zap.NewNop(),
		apiBase: server.URL,
	}
}

func TestTrustedURL(t *testing.T) {
	store := NewCloudinary(Config{CloudName: "demo"}, zap.NewNop())

	assert.True(t, store.TrustedURL("https://res.cloudinary.com/demo/image/upload/v1/id_photos/a.jpg"))
	assert.False(t, store.TrustedURL("http://res.cloudinary.com/demo/image/upload/v1/id_photos/a.jpg"))
	assert.False(t, store.TrustedURL("https://evil.example.com/demo/image/upload/v1/id_photos/a.jpg"))
	assert.False(t, store.TrustedURL("res.cloudinary.com/no-scheme.jpg"))
	assert.False(t, store.TrustedURL("://broken"))
}

func TestPublicIDFromURL(t *testing.T) {
	cases := []struct {
		photoURL string
		publicID string
		wantErr  bool
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712345/id_photos/finder.jpg", "id_photos/finder", false},
		{"https://res.cloudinary.com/demo/image/upload/evidence_photos/receipt.png", "evidence_photos/receipt", false},
		{"https://res.cloudinary.com/demo/image/upload/v1/a/b/c.webp", "a/b/c", false},
		{"https://evil.example.com/demo/image/upload/v1/id_photos/x.jpg", "", true},
		{"https://res.cloudinary.com/demo/image/fetch/v1/x.jpg", "", true},
	}
	for _, tc := range cases {
		publicID, err := publicIDFromURL(tc.photoURL)
		if tc.wantErr {
			assert.Error(t, err, tc.photoURL)
			continue
		}
		require.NoError(t, err, tc.photoURL)
		assert.Equal(t, tc.publicID, publicID, tc.photoURL)
	}
}

func TestUploadSignsRequest(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"public_id": r.Form.Get("public_id"),
			"api_key":   r.Form.Get("api_key"),
			"signature": r.Form.Get("signature"),
		}
		json.NewEncoder(w).Encode(map[string]string{
			"secure_url": "https://res.cloudinary.com/demo/image/upload/v1/" + r.Form.Get("public_id") + ".jpg",
		})
	}))
	defer server.Close()

	store := testStore(server)
	photoURL, err := store.Upload(context.Background(), []byte("jpeg bytes"), FolderIDPhotos)
	require.NoError(t, err)
	assert.True(t, store.TrustedURL(photoURL))
	assert.Contains(t, gotForm["public_id"], FolderIDPhotos+"/")
	assert.Equal(t, "key", gotForm["api_key"])
	assert.NotEmpty(t, gotForm["signature"])
}

func TestUploadRejectsEmptyImage(t *testing.T) {
	store := NewCloudinary(Config{CloudName: "demo"}, zap.NewNop())
	_, err := store.Upload(context.Background(), nil, FolderIDPhotos)
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestDeleteSendsPublicID(t *testing.T) {
	var gotPublicID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPublicID = r.Form.Get("public_id")
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer server.Close()

	store := testStore(server)
	deleted, err := store.Delete(context.Background(),
		"https://res.cloudinary.com/demo/image/upload/v1/id_photos/finder.jpg")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "id_photos/finder", gotPublicID)
}

func TestDeleteNotFoundCountsAsDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"result": "not found"})
	}))
	defer server.Close()

	store := testStore(server)
	deleted, err := store.Delete(context.Background(),
		"https://res.cloudinary.com/demo/image/upload/v1/id_photos/finder.jpg")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestDeleteUntrustedURL(t *testing.T) {
	store := NewCloudinary(Config{CloudName: "demo"}, zap.NewNop())
	deleted, err := store.Delete(context.Background(), "https://evil.example.com/x.jpg")
	assert.ErrorIs(t, err, ErrDeleteFailed)
	assert.False(t, deleted)
}
