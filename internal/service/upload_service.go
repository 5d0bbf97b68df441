package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/repository"
	"github.com/sefazor/thumbgate/pkg/storage"
	"go.uber.org/zap"
)

type UploadService struct {
	uploadRepo *repository.UploadRepository
	backend    storage.Backend
	maxSize    int64
	log        *zap.SugaredLogger
}

func NewUploadService(uploadRepo *repository.UploadRepository, backend storage.Backend, maxSize int64, log *zap.SugaredLogger) *UploadService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &UploadService{
		uploadRepo: uploadRepo,
		backend:    backend,
		maxSize:    maxSize,
		log:        log,
	}
}

func (s *UploadService) Upload(ctx context.Context, identity *models.Identity, file *multipart.FileHeader, realmPublic bool) (*models.Upload, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if file.Size == 0 {
		return nil, ErrEmptyFile
	}
	// Dosya boyutunu kontrol et
	if s.maxSize > 0 && file.Size > s.maxSize {
		return nil, ErrFileTooLarge
	}

	name := SanitizeFileName(file.Filename)
	key := fmt.Sprintf("%d/%s/%s", identity.RealmID, strings.ReplaceAll(uuid.NewString(), "-", ""), name)
	contentType := file.Header.Get("Content-Type")

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := s.backend.Upload(ctx, key, src, file.Size, contentType); err != nil {
		return nil, err
	}

	upload := &models.Upload{
		RealmID:     identity.RealmID,
		OwnerID:     identity.UserID,
		Path:        key,
		FileName:    name,
		FileSize:    file.Size,
		MimeType:    contentType,
		Backend:     s.backend.Tag(),
		RealmPublic: realmPublic,
	}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		// Cleanup
		_ = s.backend.Delete(ctx, key)
		return nil, err
	}

	s.log.Infow("upload stored", "path", key, "owner_id", identity.UserID, "backend", upload.Backend, "size", file.Size)
	return upload, nil
}

// Delete removes an upload. Only the owner may delete; a missing upload
// is reported the same way as someone else's.
func (s *UploadService) Delete(ctx context.Context, identity *models.Identity, path string) error {
	if identity == nil {
		return ErrUnauthenticated
	}

	upload, err := s.uploadRepo.Resolve(ctx, path)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			return ErrResourceNotFound
		}
		return err
	}
	if upload.OwnerID != identity.UserID {
		return ErrUnauthorized
	}

	// Önce storage'dan sil
	if err := s.backend.Delete(ctx, upload.Path); err != nil {
		return fmt.Errorf("failed to delete from storage: %w", err)
	}
	return s.uploadRepo.Delete(ctx, upload.ID)
}

// Locate returns where the bytes of an authorized upload can be fetched.
func (s *UploadService) Locate(ctx context.Context, res *models.ClassifiedResource) (*storage.Location, error) {
	if !res.SourceType.IsUpload() {
		return nil, fmt.Errorf("%w: not an upload", ErrInvalidLocator)
	}
	if res.SourceType.Tag() != s.backend.Tag() {
		return nil, fmt.Errorf("upload stored in %s, active backend is %s", res.SourceType.Tag(), s.backend.Tag())
	}
	return s.backend.Locate(ctx, res.CanonicalPath)
}

// SanitizeFileName keeps letters, digits, '.', '-' and '_' and replaces
// everything else with '-'. Unicode letters are kept.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), ".-")
	if out == "" {
		return "uploaded-file"
	}
	return out
}
