package media

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Upload folders. Every photo the request workflow touches lives under one
// of these.
const (
	FolderIDPhotos       = "id_photos"
	FolderItemPhotos     = "item_photos"
	FolderEvidencePhotos = "evidence_photos"
)

const trustedHost = "res.cloudinary.com"

const defaultAPIBase = "https://api.cloudinary.com/v1_1"

var (
	ErrUploadFailed = errors.New("media upload failed")
	ErrDeleteFailed = errors.New("media delete failed")
)

// Store is the media CDN contract the core consumes: upload bytes for a
// canonical URL, delete by URL, and decide whether a URL belongs to the
// trusted media host.
type Store interface {
	Upload(ctx context.Context, data []byte, folder string) (string, error)
	Delete(ctx context.Context, photoURL string) (bool, error)
	TrustedURL(photoURL string) bool
}

// Config holds Cloudinary credentials
type Config struct {
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

type cloudinaryStore struct {
	config  Config
	client  *http.Client
	logger  *zap.Logger
	apiBase string
}

// NewCloudinary returns a Store backed by the Cloudinary upload API
func NewCloudinary(config Config, logger *zap.Logger) Store {
	return &cloudinaryStore{
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		apiBase: defaultAPIBase,
	}
}

func (s *cloudinaryStore) Upload(ctx context.Context, data []byte, folder string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUploadFailed)
	}

	publicID := folder + "/" + uuid.New().String()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	form := url.Values{}
	form.Add("file", "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(data))
	form.Add("api_key", s.config.APIKey)
	form.Add("public_id", publicID)
	form.Add("timestamp", timestamp)
	form.Add("signature", s.sign(publicID, timestamp))

	endpoint := s.apiBase + "/" + s.config.CloudName + "/image/upload"
	body, err := s.post(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	var uploadRes struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &uploadRes); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrUploadFailed, err)
	}
	if uploadRes.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrUploadFailed, uploadRes.Error.Message)
	}

	photoURL := uploadRes.SecureURL
	if photoURL == "" {
		photoURL = uploadRes.URL
	}
	if photoURL == "" {
		return "", fmt.Errorf("%w: no URL in response", ErrUploadFailed)
	}

	s.logger.Debug("photo uploaded",
		zap.String("public_id", publicID),
		zap.String("folder", folder),
	)
	return photoURL, nil
}

func (s *cloudinaryStore) Delete(ctx context.Context, photoURL string) (bool, error) {
	publicID, err := publicIDFromURL(photoURL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	form := url.Values{}
	form.Add("public_id", publicID)
	form.Add("api_key", s.config.APIKey)
	form.Add("timestamp", timestamp)
	form.Add("signature", s.sign(publicID, timestamp))

	endpoint := s.apiBase + "/" + s.config.CloudName + "/image/destroy"
	body, err := s.post(ctx, endpoint, form)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	var deleteRes struct {
		Result string `json:"result"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &deleteRes); err != nil {
		return false, fmt.Errorf("%w: malformed response: %v", ErrDeleteFailed, err)
	}
	if deleteRes.Error.Message != "" {
		return false, fmt.Errorf("%w: %s", ErrDeleteFailed, deleteRes.Error.Message)
	}

	// "not found" counts as deleted: the asset is gone either way
	deleted := deleteRes.Result == "ok" || deleteRes.Result == "not found"
	if !deleted {
		return false, fmt.Errorf("%w: result %q", ErrDeleteFailed, deleteRes.Result)
	}

	s.logger.Debug("photo deleted", zap.String("public_id", publicID))
	return true, nil
}

// TrustedURL reports whether the URL points at the configured media host.
// The state machine refuses any photo URL that fails this check.
func (s *cloudinaryStore) TrustedURL(photoURL string) bool {
	parsed, err := url.Parse(photoURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "https" && parsed.Host == trustedHost
}

func (s *cloudinaryStore) sign(publicID, timestamp string) string {
	payload := fmt.Sprintf("public_id=%s&timestamp=%s%s", publicID, timestamp, s.config.APISecret)
	return fmt.Sprintf("%x", sha1.Sum([]byte(payload)))
}

func (s *cloudinaryStore) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, body)
	}
	return body, nil
}

// publicIDFromURL extracts a Cloudinary public ID (folder/name, no version
// prefix or extension) from a delivery URL.
func publicIDFromURL(photoURL string) (string, error) {
	parsed, err := url.Parse(photoURL)
	if err != nil {
		return "", err
	}
	if parsed.Host != trustedHost {
		return "", fmt.Errorf("not a trusted media URL: %s", photoURL)
	}

	// /{cloud_name}/image/upload/v{version}/{folder}/{name}.{ext}
	segments := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
	uploadIdx := -1
	for i, seg := range segments {
		if seg == "upload" {
			uploadIdx = i
			break
		}
	}
	if uploadIdx == -1 || uploadIdx+1 >= len(segments) {
		return "", fmt.Errorf("unrecognized media URL format: %s", photoURL)
	}

	rest := segments[uploadIdx+1:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "v") {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", fmt.Errorf("unrecognized media URL format: %s", photoURL)
	}

	joined := strings.Join(rest, "/")
	ext := path.Ext(joined)
	return strings.TrimSuffix(joined, ext), nil
}
