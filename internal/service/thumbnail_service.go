package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sefazor/thumbgate/internal/config"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/repository"
	"github.com/sefazor/thumbgate/pkg/camo"
	"github.com/sefazor/thumbgate/pkg/thumbor"
	"go.uber.org/zap"
)

const (
	UploadsPrefix = "/user_uploads/"
	StaticPrefix  = "/static/"
)

// UploadResolver is the read side of the upload storage subsystem.
type UploadResolver interface {
	Resolve(ctx context.Context, path string) (*models.Upload, error)
}

// BuildOptions is the read-only renderer configuration used by BuildTarget.
type BuildOptions struct {
	Renderer      *thumbor.URLBuilder
	ThumbnailSize string
	Camo          *camo.Camo
}

type ThumbnailService struct {
	resolver     UploadResolver
	externalHost string
	opts         BuildOptions
	log          *zap.SugaredLogger
}

func NewThumbnailService(resolver UploadResolver, cfg *config.Config, log *zap.SugaredLogger) *ThumbnailService {
	size := cfg.Thumbor.ThumbnailSize
	if size == "" {
		size = config.DefaultThumbnailSize
	}

	opts := BuildOptions{
		Renderer:      thumbor.NewURLBuilder(cfg.Thumbor.URL, cfg.Thumbor.Key),
		ThumbnailSize: size,
	}
	if cfg.Camo.URL != "" {
		opts.Camo = camo.New(cfg.Camo.URL, cfg.Camo.Key)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &ThumbnailService{
		resolver:     resolver,
		externalHost: strings.ToLower(cfg.ExternalHost),
		opts:         opts,
		log:          log,
	}
}

// ParseSize validates the size query token.
func ParseSize(token string) (models.SizeSpec, error) {
	switch models.SizeSpec(token) {
	case models.SizeOriginal, models.SizeThumbnail:
		return models.SizeSpec(token), nil
	case "":
		return "", ErrMissingSize
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSize, token)
}

// Classify turns a percent-decoded locator into a ClassifiedResource.
//
// Locators without a scheme are root-relative whether or not they start
// with a slash. Absolute URLs on our own host that point into the upload
// namespace are treated as uploads, every other http(s) URL is external.
func (s *ThumbnailService) Classify(ctx context.Context, locator string) (*models.ClassifiedResource, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidLocator)
	}

	if u, ok := parseAbsolute(locator); ok {
		if s.externalHost != "" && strings.ToLower(u.Host) == s.externalHost && strings.HasPrefix(u.Path, UploadsPrefix) {
			return s.classifyUpload(ctx, strings.TrimPrefix(u.Path, UploadsPrefix))
		}
		return &models.ClassifiedResource{
			SourceType:    models.SourceExternal,
			CanonicalPath: locator,
		}, nil
	}
	if strings.Contains(locator, "://") {
		return nil, fmt.Errorf("%w: unsupported scheme", ErrInvalidLocator)
	}

	path := locator
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	switch {
	case strings.HasPrefix(path, UploadsPrefix):
		return s.classifyUpload(ctx, strings.TrimPrefix(path, UploadsPrefix))
	case strings.HasPrefix(path, StaticPrefix):
		if !cleanPath(strings.TrimPrefix(path, StaticPrefix)) {
			return nil, fmt.Errorf("%w: bad static path", ErrInvalidLocator)
		}
		return &models.ClassifiedResource{
			SourceType:    models.SourceStatic,
			CanonicalPath: path,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
}

func (s *ThumbnailService) classifyUpload(ctx context.Context, path string) (*models.ClassifiedResource, error) {
	// Upload URIs are handed out escaped; stored paths never contain '%'.
	path, err := url.PathUnescape(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if !cleanPath(path) {
		return nil, fmt.Errorf("%w: bad upload path", ErrInvalidLocator)
	}

	upload, err := s.resolver.Resolve(ctx, path)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
		}
		s.log.Errorw("upload lookup failed", "path", path, "error", err)
		return nil, fmt.Errorf("failed to resolve upload: %w", err)
	}

	sourceType, ok := models.SourceTypeForBackend(upload.Backend)
	if !ok {
		s.log.Errorw("upload has unknown backend", "upload_id", upload.ID, "backend", upload.Backend)
		return nil, fmt.Errorf("upload %d has unknown backend %q", upload.ID, upload.Backend)
	}

	realmID, ownerID := upload.RealmID, upload.OwnerID
	return &models.ClassifiedResource{
		SourceType:    sourceType,
		CanonicalPath: path,
		RealmID:       &realmID,
		OwnerID:       &ownerID,
		RealmPublic:   upload.RealmPublic,
	}, nil
}

// Authorize decides whether identity may view res. A nil identity is an
// anonymous request.
func Authorize(identity *models.Identity, res *models.ClassifiedResource) error {
	switch res.SourceType {
	case models.SourceExternal, models.SourceStatic:
		return nil
	case models.SourceLocalFile, models.SourceS3:
		if identity == nil {
			return ErrUnauthenticated
		}
		if res.OwnerID != nil && *res.OwnerID == identity.UserID {
			return nil
		}
		if res.RealmPublic && res.RealmID != nil && *res.RealmID == identity.RealmID {
			return nil
		}
		return ErrUnauthorized
	}
	return fmt.Errorf("%w: unknown source type %d", ErrUnauthorized, res.SourceType)
}

func (s *ThumbnailService) Build(res *models.ClassifiedResource, size models.SizeSpec) (string, error) {
	return BuildTarget(res, size, s.opts)
}

// BuildTarget computes the redirect target. With the renderer disabled it
// falls back to the resource's own URL so a missing renderer never fails
// a request.
func BuildTarget(res *models.ClassifiedResource, size models.SizeSpec, opts BuildOptions) (string, error) {
	if res.SourceType == models.SourceStatic {
		return res.CanonicalPath, nil
	}

	if !opts.Renderer.Enabled() {
		switch {
		case res.SourceType.IsUpload():
			return UploadURL(res.CanonicalPath), nil
		case opts.Camo.Enabled() && strings.HasPrefix(strings.ToLower(res.CanonicalPath), "http://"):
			return opts.Camo.URL(res.CanonicalPath), nil
		default:
			return res.CanonicalPath, nil
		}
	}

	token, err := thumbor.Encode(res.CanonicalPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}

	var sizeSegment string
	switch size {
	case models.SizeOriginal:
		sizeSegment = thumbor.SizeOriginal
	case models.SizeThumbnail:
		sizeSegment = opts.ThumbnailSize
		if sizeSegment == "" {
			sizeSegment = config.DefaultThumbnailSize
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSize, size)
	}

	return opts.Renderer.Build(token, sizeSegment, res.SourceType.Tag()), nil
}

// UploadURL is the root-relative URL an upload is served from.
func UploadURL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return UploadsPrefix + strings.Join(segments, "/")
}

func parseAbsolute(locator string) (*url.URL, bool) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

// cleanPath rejects empty paths and paths with empty, "." or ".." segments.
func cleanPath(p string) bool {
	if p == "" || strings.Contains(p, "\\") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
