package handler

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/thumbgate/internal/controller"
	"github.com/sefazor/thumbgate/internal/middleware"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
	"go.uber.org/zap"
)

type UploadHandler struct {
	uploadService       *service.UploadService
	thumbnailController *controller.ThumbnailController
	log                 *zap.SugaredLogger
}

func NewUploadHandler(uploadService *service.UploadService, thumbnailController *controller.ThumbnailController, log *zap.SugaredLogger) *UploadHandler {
	return &UploadHandler{
		uploadService:       uploadService,
		thumbnailController: thumbnailController,
		log:                 log,
	}
}

func (h *UploadHandler) UploadFile(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("No file uploaded"))
	}

	realmPublic, _ := strconv.ParseBool(c.FormValue("realm_public"))

	upload, err := h.uploadService.Upload(c.UserContext(), middleware.IdentityFrom(c), file, realmPublic)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(models.ErrorResponse(err.Error()))
		case errors.Is(err, service.ErrEmptyFile):
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
		case errors.Is(err, service.ErrUnauthenticated):
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Authentication required"))
		}
		h.log.Errorw("upload failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Upload failed"))
	}

	return c.JSON(models.SuccessResponse(models.UploadResponse{
		URI:      service.UploadURL(upload.Path),
		FileName: upload.FileName,
		FileSize: upload.FileSize,
	}, "File uploaded successfully"))
}

func (h *UploadHandler) DeleteFile(c *fiber.Ctx) error {
	path, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgInvalidURL))
	}

	if err := h.uploadService.Delete(c.UserContext(), middleware.IdentityFrom(c), path); err != nil {
		if service.IsAccessDenied(err) {
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(MsgNotAuthorized))
		}
		h.log.Errorw("delete failed", "path", path, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Delete failed"))
	}

	return c.JSON(models.SuccessResponse(nil, "File deleted successfully"))
}

// ServeFile handles GET /user_uploads/*. Local files are sent directly,
// object-store files are redirected to a presigned URL.
func (h *UploadHandler) ServeFile(c *fiber.Ctx) error {
	// Raw path; the classifier does the one percent-decode.
	path := c.Params("*")

	loc, err := h.thumbnailController.LocateUpload(c.UserContext(), middleware.IdentityFrom(c), path)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidLocator):
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgInvalidURL))
		case service.IsAccessDenied(err):
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(MsgNotAuthorized))
		}
		h.log.Errorw("serve failed", "path", path, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Internal server error"))
	}

	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	if loc.URL != "" {
		return c.Redirect(loc.URL, fiber.StatusFound)
	}
	return c.SendFile(loc.FilePath)
}
