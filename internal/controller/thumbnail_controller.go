package controller

import (
	"context"

	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
	"github.com/sefazor/thumbgate/pkg/storage"
)

type ThumbnailController struct {
	thumbnailService *service.ThumbnailService
	uploadService    *service.UploadService
}

func NewThumbnailController(thumbnailService *service.ThumbnailService, uploadService *service.UploadService) *ThumbnailController {
	return &ThumbnailController{
		thumbnailService: thumbnailService,
		uploadService:    uploadService,
	}
}

// Redirect runs size parsing, classification, authorization and URL
// building in that order. A target is only produced once authorization
// has passed.
func (c *ThumbnailController) Redirect(ctx context.Context, identity *models.Identity, locator, sizeToken string) (string, error) {
	size, err := service.ParseSize(sizeToken)
	if err != nil {
		return "", err
	}

	res, err := c.thumbnailService.Classify(ctx, locator)
	if err != nil {
		return "", err
	}

	if err := service.Authorize(identity, res); err != nil {
		return "", err
	}

	return c.thumbnailService.Build(res, size)
}

// LocateUpload authorizes access to an upload path, still percent-encoded
// as it appeared in the request URL, and returns where its bytes live.
func (c *ThumbnailController) LocateUpload(ctx context.Context, identity *models.Identity, path string) (*storage.Location, error) {
	res, err := c.thumbnailService.Classify(ctx, service.UploadsPrefix+path)
	if err != nil {
		return nil, err
	}
	if !res.SourceType.IsUpload() {
		return nil, service.ErrInvalidLocator
	}

	if err := service.Authorize(identity, res); err != nil {
		return nil, err
	}

	return c.uploadService.Locate(ctx, res)
}
