package service

import (
	"context"
	"fmt"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/media"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"

	"go.uber.org/zap"
)

// DeletionReport tallies a best-effort bulk delete. It is informational:
// partial failure never becomes an error.
type DeletionReport struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

type EvidenceService interface {
	UploadEvidence(ctx context.Context, kind string, files [][]byte) ([]string, error)
	DeleteEvidence(ctx context.Context, urls []string) DeletionReport
	ValidatePhotoURL(photoURL string) error
}

type evidenceService struct {
	store  media.Store
	logger *zap.Logger
}

func NewEvidenceService(store media.Store, logger *zap.Logger) EvidenceService {
	return &evidenceService{
		store:  store,
		logger: logger,
	}
}

// UploadEvidence uploads request photos one by one and returns their URLs.
// Handover requests carry item photos, claim requests ownership evidence.
// Every returned URL is re-checked against the trusted host before the state
// machine is allowed to see it.
func (s *evidenceService) UploadEvidence(ctx context.Context, kind string, files [][]byte) ([]string, error) {
	folder := media.FolderItemPhotos
	if kind == model.RequestKindClaim {
		folder = media.FolderEvidencePhotos
	}

	urls := make([]string, 0, len(files))
	for i, file := range files {
		photoURL, err := s.store.Upload(ctx, file, folder)
		if err != nil {
			return nil, fmt.Errorf("upload of photo %d failed: %w", i+1, err)
		}
		if !s.store.TrustedURL(photoURL) {
			return nil, fmt.Errorf("%w: upload returned untrusted URL %s", apperror.ErrValidation, photoURL)
		}
		urls = append(urls, photoURL)
	}
	return urls, nil
}

// DeleteEvidence removes photos best-effort. Callers treat the report as
// informational; the request record stays the source of truth regardless of
// what happens to the media.
func (s *evidenceService) DeleteEvidence(ctx context.Context, urls []string) DeletionReport {
	report := DeletionReport{}
	for _, photoURL := range urls {
		if photoURL == "" {
			continue
		}
		deleted, err := s.store.Delete(ctx, photoURL)
		if err != nil || !deleted {
			s.logger.Warn("evidence photo deletion failed",
				zap.String("url", photoURL),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, photoURL)
			continue
		}
		report.Deleted = append(report.Deleted, photoURL)
	}
	return report
}

// ValidatePhotoURL rejects malformed or untrusted photo URLs
func (s *evidenceService) ValidatePhotoURL(photoURL string) error {
	if photoURL == "" {
		return fmt.Errorf("%w: photo URL is required", apperror.ErrValidation)
	}
	if !s.store.TrustedURL(photoURL) {
		return fmt.Errorf("%w: untrusted photo URL %s", apperror.ErrValidation, photoURL)
	}
	return nil
}

// ExtractEvidenceURLs pulls every photo URL out of a message's request
// record: the requester's ID photo, the item/evidence photos, and any counter
// photo. Message deletion and request rejection both clean up through this
// one function so no photo-bearing field is ever missed.
func ExtractEvidenceURLs(msg *model.Message) []string {
	record := msg.Record()
	if record == nil {
		return nil
	}

	urls := make([]string, 0, len(record.EvidencePhotos)+2)
	if record.IDPhotoURL != "" {
		urls = append(urls, record.IDPhotoURL)
	}
	for _, photo := range record.EvidencePhotos {
		if photo.URL != "" {
			urls = append(urls, photo.URL)
		}
	}
	if record.OwnerIDPhoto != "" {
		urls = append(urls, record.OwnerIDPhoto)
	}
	return urls
}
