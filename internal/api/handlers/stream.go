package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/mediarelay/internal/api/middleware"
	"github.com/denisAlshanov/mediarelay/internal/services/streamer"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// StreamOpener is satisfied by *streamer.Streamer.
type StreamOpener interface {
	OpenWithHeaders(ctx context.Context, target string, headers map[string]string) (*streamer.Stream, error)
}

type StreamHandler struct {
	streams StreamOpener
}

func NewStreamHandler(streams StreamOpener) *StreamHandler {
	return &StreamHandler{streams: streams}
}

// Stream godoc
// @Summary Relay media bytes from the origin
// @Description Fetches the target URL with rotating client identities and relays the body in fixed-size chunks as an attachment. Content-Length is taken from the origin, or from the size parameter when the origin sends none.
// @Tags media
// @Produce application/octet-stream
// @Param target query string true "Resolved media URL"
// @Param title query string false "Title used for the attachment file name"
// @Param size query int false "Exact size in bytes, used when the origin omits Content-Length"
// @Param token query string false "Shared secret or stream ticket"
// @Success 200 {file} binary "Media body"
// @Failure 400 {string} string "Bad input or origin blocked every identity"
// @Failure 401 {string} string "Unauthorized"
// @Failure 504 {string} string "Origin timed out"
// @Failure 500 {string} string "Internal error"
// @Router /stream [get]
// @Security ApiKeyAuth
func (h *StreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	target := strings.TrimSpace(c.Query("target"))
	if target == "" {
		textResponse(c, utils.NewBadInputError("target is required", nil))
		return
	}

	title := c.DefaultQuery("title", "media")

	var declaredSize int64
	if raw := c.Query("size"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			textResponse(c, utils.NewBadInputError("size must be a non-negative integer", nil))
			return
		}
		declaredSize = size
	}

	headers := c.GetStringMapString(middleware.StreamHeadersKey)
	stream, err := h.streams.OpenWithHeaders(ctx, target, headers)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.LogInfo(ctx, "Client went away before the stream opened")
			c.Abort()
			return
		}
		textResponse(c, toAppError(c, err, "fetching media"))
		return
	}
	defer stream.Close()

	contentType := stream.ContentType
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		contentType = utils.ContentTypeForExt(utils.ExtensionFor(contentType, target))
	}

	fileName := utils.AttachmentFileName(title, contentType, target)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	c.Header("X-Content-Type-Options", "nosniff")
	switch {
	case stream.ContentLength >= 0:
		c.Header("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	case declaredSize > 0:
		c.Header("Content-Length", strconv.FormatInt(declaredSize, 10))
	}
	c.Status(http.StatusOK)

	written, err := stream.WriteTo(c.Writer)
	if err != nil {
		// headers are already sent; the client sees a truncated body
		utils.LogWarn(ctx, "Stream interrupted", utils.Fields{
			"bytes":    written,
			"identity": stream.Identity.Name,
			"error":    err.Error(),
		})
		return
	}

	utils.LogInfo(ctx, "Stream completed", utils.Fields{
		"bytes":    written,
		"identity": stream.Identity.Name,
		"attempts": len(stream.Attempts),
	})
}
