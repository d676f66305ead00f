package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// Archiver is satisfied by *downloader.Archiver.
type Archiver interface {
	Archive(ctx context.Context, req models.ArchiveRequest) (*models.ArchiveResponse, error)
}

type ArchiveHandler struct {
	archiver Archiver
}

func NewArchiveHandler(archiver Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

// Archive godoc
// @Summary Copy a resolved media into object storage
// @Description Streams the target through the relay into the configured S3 bucket and returns a presigned download link.
// @Tags archive
// @Accept json
// @Produce json
// @Param request body models.ArchiveRequest true "Target media URL and title"
// @Success 200 {object} models.ArchiveResponse
// @Failure 400 {object} models.ErrorDetailResponse
// @Failure 503 {object} models.ErrorDetailResponse
// @Failure 504 {object} models.ErrorDetailResponse
// @Failure 500 {object} models.ErrorDetailResponse
// @Router /archive [post]
// @Security ApiKeyAuth
func (h *ArchiveHandler) Archive(c *gin.Context) {
	var req models.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detailResponse(c, utils.NewBadInputError("Invalid request body: target is required", nil))
		return
	}

	resp, err := h.archiver.Archive(c.Request.Context(), req)
	if err != nil {
		detailResponse(c, toAppError(c, err, "archiving media"))
		return
	}

	c.JSON(http.StatusOK, resp)
}
