package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/thumbgate/internal/controller"
	"github.com/sefazor/thumbgate/internal/middleware"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
	"github.com/sefazor/thumbgate/pkg/utils"
	"go.uber.org/zap"
)

const (
	MsgNotAuthorized = "You are not authorized to view this file."
	MsgInvalidSize   = "Invalid size."
	MsgMissingSize   = "Missing 'size' argument"
	MsgMissingURL    = "Missing 'url' argument"
	MsgInvalidURL    = "Invalid URL."
)

type ThumbnailHandler struct {
	thumbnailController *controller.ThumbnailController
	validator           *utils.Validator
	log                 *zap.SugaredLogger
}

func NewThumbnailHandler(thumbnailController *controller.ThumbnailController, validator *utils.Validator, log *zap.SugaredLogger) *ThumbnailHandler {
	return &ThumbnailHandler{
		thumbnailController: thumbnailController,
		validator:           validator,
		log:                 log,
	}
}

// GetThumbnail handles GET /thumbnail?url=...&size=original|thumbnail.
func (h *ThumbnailHandler) GetThumbnail(c *fiber.Ctx) error {
	query := models.ThumbnailQuery{
		URL:  c.Query("url"),
		Size: c.Query("size"),
	}

	// Size önce kontrol edilir, geçersiz boyut storage'a hiç gitmez
	if err := h.validator.Struct(query); err != nil {
		failed := utils.FailedFields(err)
		switch {
		case failed["Size"] == "required":
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgMissingSize))
		case failed["Size"] != "":
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(MsgInvalidSize))
		case failed["URL"] != "":
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgMissingURL))
		}
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	identity := middleware.IdentityFrom(c)
	target, err := h.thumbnailController.Redirect(c.UserContext(), identity, query.URL, query.Size)
	if err != nil {
		return h.writeError(c, identity, err)
	}

	return c.Redirect(target, fiber.StatusFound)
}

func (h *ThumbnailHandler) writeError(c *fiber.Ctx, identity *models.Identity, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingSize):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgMissingSize))
	case errors.Is(err, service.ErrInvalidSize):
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(MsgInvalidSize))
	case errors.Is(err, service.ErrInvalidLocator):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(MsgInvalidURL))
	case service.IsAccessDenied(err):
		var userID uint
		if identity != nil {
			userID = identity.UserID
		}
		h.log.Infow("thumbnail access denied", "user_id", userID, "reason", err.Error())
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(MsgNotAuthorized))
	}

	h.log.Errorw("thumbnail request failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Internal server error"))
}
